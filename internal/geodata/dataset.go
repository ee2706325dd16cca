// Package geodata holds the in-memory dataset handled by the pipeline and
// the transformations applied to it between acquisition and persistence.
package geodata

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/tingold/geocouple/internal/crs"
)

// Role is the part a dataset plays inside a couple.
type Role string

const (
	Zone   Role = "zone"
	Points Role = "points"
)

// Roles lists the roles in manifest order.
var Roles = []Role{Zone, Points}

// ParseRole accepts "zone" or "points" in any case.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case Zone:
		return Zone, nil
	case Points:
		return Points, nil
	}
	return "", fmt.Errorf("geodata: unknown role %q (want zone or points)", s)
}

// Title is the key used for the role in the manifest ("Zone", "Points").
func (r Role) Title() string {
	if r == "" {
		return ""
	}
	return strings.ToUpper(string(r[:1])) + string(r[1:])
}

// Kinds returns the geometry kinds accepted for the role.
func (r Role) Kinds() []string {
	switch r {
	case Zone:
		return []string{"Polygon", "MultiPolygon"}
	case Points:
		return []string{"Point", "MultiPoint"}
	}
	return nil
}

// Dataset is an ordered feature collection with its coordinate reference
// system. CRS is nil when the source did not declare one.
type Dataset struct {
	Features *geojson.FeatureCollection
	CRS      *crs.CRS
}

// New wraps a feature collection. A nil collection becomes empty.
func New(fc *geojson.FeatureCollection, c *crs.CRS) *Dataset {
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}
	return &Dataset{Features: fc, CRS: c}
}

// Len is the number of features.
func (d *Dataset) Len() int {
	if d == nil || d.Features == nil {
		return 0
	}
	return len(d.Features.Features)
}

// Fields lists attribute names in order of first appearance.
func (d *Dataset) Fields() []string {
	if d.Len() == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var fields []string
	for _, f := range d.Features.Features {
		keys := make([]string, 0, len(f.Properties))
		for k := range f.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				fields = append(fields, k)
			}
		}
	}
	return fields
}

// withFeatures returns a dataset sharing d's CRS with the given features.
func (d *Dataset) withFeatures(features []*geojson.Feature) *Dataset {
	fc := geojson.NewFeatureCollection()
	fc.Features = features
	return &Dataset{Features: fc, CRS: d.CRS}
}
