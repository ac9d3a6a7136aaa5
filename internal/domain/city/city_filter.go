package city

import (
	"strings"

	"github.com/Masterminds/squirrel"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// CityFilter holds the optional list filters for cities. Both values are
// trimmed on construction, so building a filter from an already trimmed value
// yields the same predicate.
//
// Matching is case-sensitive: equality and LIKE follow the database's default
// deterministic collation.
type CityFilter struct {
	Name        string
	SearchQuery string
}

func NewCityFilter(name, searchQuery string) CityFilter {
	return CityFilter{
		Name:        strings.TrimSpace(name),
		SearchQuery: strings.TrimSpace(searchQuery),
	}
}

// Predicate returns the WHERE clause for the cities table. With no filter set
// it is the identity predicate (1=1).
func (f CityFilter) Predicate() squirrel.Sqlizer {
	pred := squirrel.And{}

	if f.Name != "" {
		pred = append(pred, squirrel.Eq{"name": f.Name})
	}

	if f.SearchQuery != "" {
		pattern := "%" + likeEscaper.Replace(f.SearchQuery) + "%"
		pred = append(pred, squirrel.Or{
			squirrel.Like{"name": pattern},
			squirrel.And{
				squirrel.NotEq{"description": nil},
				squirrel.Like{"description": pattern},
			},
		})
	}

	return pred
}
