package types

// Length caps enforced by the validate tags below and by the column types.
const (
	MaxNameLength        = 50
	MaxDescriptionLength = 200
)

// PointOfInterestForCreation is the request body for a new point of interest.
type PointOfInterestForCreation struct {
	Name        string  `json:"name" validate:"required,notblank,max=50"`
	Description *string `json:"description" validate:"omitempty,max=200"`
}

func (p PointOfInterestForCreation) Validate() error {
	return validateStruct(p)
}

// PointOfInterestForUpdate is the patchable projection of a point of interest.
// Full updates and the patch pipeline both operate on it, never on the entity.
type PointOfInterestForUpdate struct {
	Name        string  `json:"name" validate:"required,notblank,max=50"`
	Description *string `json:"description" validate:"omitempty,max=200"`
}

// NewPointOfInterestForUpdate projects an entity onto a transient copy.
func NewPointOfInterestForUpdate(p *PointOfInterest) PointOfInterestForUpdate {
	u := PointOfInterestForUpdate{Name: p.Name}
	if p.Description != nil {
		d := *p.Description
		u.Description = &d
	}
	return u
}

func (p PointOfInterestForUpdate) Validate() error {
	return validateStruct(p)
}

// ApplyTo copies validated fields back onto the entity.
func (p PointOfInterestForUpdate) ApplyTo(entity *PointOfInterest) {
	entity.Name = p.Name
	entity.Description = p.Description
}
