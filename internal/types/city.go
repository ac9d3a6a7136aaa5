package types

// City matches the cities table. PointsOfInterest is only populated when the
// repository was asked to include them.
type City struct {
	ID               int                `json:"id"`
	Name             string             `json:"name"`
	Description      *string            `json:"description,omitempty"`
	PointsOfInterest []*PointOfInterest `json:"points_of_interest,omitempty"`
}

// PointOfInterest matches the points_of_interest table. CityID is a plain
// foreign key used for scoped lookups, never a back-pointer to the city.
type PointOfInterest struct {
	ID          int     `json:"id"`
	CityID      int     `json:"city_id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// IsNew reports whether storage has not assigned an id yet.
func (p *PointOfInterest) IsNew() bool {
	return p.ID == 0
}
