package geodata

import (
	"sort"

	"github.com/tingold/geocouple/internal/failure"
)

// noGeometry is reported for features without a geometry.
const noGeometry = "None"

// Kinds returns the distinct geometry kinds of the dataset, sorted.
func Kinds(d *Dataset) []string {
	if d.Len() == 0 {
		return nil
	}
	seen := make(map[string]bool)
	for _, f := range d.Features.Features {
		kind := noGeometry
		if f != nil && f.Geometry != nil {
			kind = f.Geometry.GeoJSONType()
		}
		seen[kind] = true
	}
	kinds := make([]string, 0, len(seen))
	for k := range seen {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// MatchesRole reports whether every geometry has a kind accepted by role.
func MatchesRole(d *Dataset, role Role) bool {
	allowed := role.Kinds()
	if len(allowed) == 0 {
		return false
	}
	for _, kind := range Kinds(d) {
		ok := false
		for _, a := range allowed {
			if kind == a {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Validate checks the dataset against the role. The error lists the kinds
// actually found when they do not match.
func Validate(d *Dataset, role Role) error {
	if d.Len() == 0 {
		return failure.New(failure.ErrEmptyDataset, "dataset has no features")
	}
	if !MatchesRole(d, role) {
		return failure.New(failure.ErrGeometryTypeMismatch,
			"found %v, expected %v for role %q", Kinds(d), role.Kinds(), role)
	}
	return nil
}
