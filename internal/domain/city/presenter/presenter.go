// Package presenter shapes domain entities into the JSON bodies served by the
// HTTP API.
package presenter

import "github.com/FACorreiaa/cityinfo-api/internal/types"

type PointOfInterestDto struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type CityWithoutPointsOfInterestDto struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type CityDto struct {
	ID                       int                  `json:"id"`
	Name                     string               `json:"name"`
	Description              *string              `json:"description"`
	NumberOfPointsOfInterest int                  `json:"numberOfPointsOfInterest"`
	PointsOfInterest         []PointOfInterestDto `json:"pointsOfInterest"`
}

func PointOfInterest(p *types.PointOfInterest) PointOfInterestDto {
	return PointOfInterestDto{ID: p.ID, Name: p.Name, Description: p.Description}
}

func PointsOfInterest(points []*types.PointOfInterest) []PointOfInterestDto {
	out := make([]PointOfInterestDto, 0, len(points))
	for _, p := range points {
		out = append(out, PointOfInterest(p))
	}
	return out
}

func CityWithoutPointsOfInterest(c *types.City) CityWithoutPointsOfInterestDto {
	return CityWithoutPointsOfInterestDto{ID: c.ID, Name: c.Name, Description: c.Description}
}

func Cities(cities []*types.City) []CityWithoutPointsOfInterestDto {
	out := make([]CityWithoutPointsOfInterestDto, 0, len(cities))
	for _, c := range cities {
		out = append(out, CityWithoutPointsOfInterest(c))
	}
	return out
}

// City includes the point of interest collection and its size.
func City(c *types.City) CityDto {
	return CityDto{
		ID:                       c.ID,
		Name:                     c.Name,
		Description:              c.Description,
		NumberOfPointsOfInterest: len(c.PointsOfInterest),
		PointsOfInterest:         PointsOfInterest(c.PointsOfInterest),
	}
}
