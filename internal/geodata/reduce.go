package geodata

import (
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/tingold/geocouple/internal/failure"
)

// NameField is the canonical attribute kept on persisted points.
const NameField = "name"

// Reduce strips attributes for persistence. Zones keep geometry only;
// points keep the chosen field, renamed to NameField.
func Reduce(d *Dataset, role Role, field string) (*Dataset, error) {
	switch role {
	case Zone:
		features := make([]*geojson.Feature, 0, d.Len())
		for _, f := range d.Features.Features {
			out := geojson.NewFeature(f.Geometry)
			out.ID = f.ID
			features = append(features, out)
		}
		return d.withFeatures(features), nil

	case Points:
		if strings.TrimSpace(field) == "" {
			return nil, failure.New(failure.ErrNoFieldSelected, "choose one of %v", d.Fields())
		}
		if !hasField(d, field) {
			return nil, failure.New(failure.ErrNoFieldSelected, "field %q not present, available %v", field, d.Fields())
		}
		features := make([]*geojson.Feature, 0, d.Len())
		for _, f := range d.Features.Features {
			out := geojson.NewFeature(f.Geometry)
			out.ID = f.ID
			if v, ok := f.Properties[field]; ok && v != nil {
				out.Properties[NameField] = v
			}
			features = append(features, out)
		}
		return d.withFeatures(features), nil
	}
	return nil, failure.New(failure.ErrGeometryTypeMismatch, "unknown role %q", role)
}

func hasField(d *Dataset, field string) bool {
	for _, name := range d.Fields() {
		if name == field {
			return true
		}
	}
	return false
}
