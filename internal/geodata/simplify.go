package geodata

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"
)

// DefaultTolerance is the simplification tolerance in degrees.
const DefaultTolerance = 0.001

// Simplify applies Douglas-Peucker with the given tolerance to every
// geometry. Rings that would collapse below four points are left as they
// were. A tolerance <= 0 returns d unchanged.
func Simplify(d *Dataset, tolerance float64) *Dataset {
	if tolerance <= 0 || d.Len() == 0 {
		return d
	}
	s := simplify.DouglasPeucker(tolerance)

	features := make([]*geojson.Feature, 0, d.Len())
	for _, f := range d.Features.Features {
		out := *f
		out.Geometry = simplifyGeometry(s, f.Geometry)
		features = append(features, &out)
	}
	return d.withFeatures(features)
}

func simplifyGeometry(s *simplify.DouglasPeuckerSimplifier, g orb.Geometry) orb.Geometry {
	switch v := g.(type) {
	case orb.Polygon:
		return simplifyPolygon(s, v)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(v))
		for i, poly := range v {
			out[i] = simplifyPolygon(s, poly)
		}
		return out
	case orb.LineString, orb.MultiLineString:
		return s.Simplify(orb.Clone(v))
	}
	// Points carry nothing to simplify.
	return g
}

func simplifyPolygon(s *simplify.DouglasPeuckerSimplifier, poly orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(poly))
	for i, ring := range poly {
		ls := orb.LineString(ring.Clone())
		result, ok := s.Simplify(ls).(orb.LineString)
		if !ok || len(result) < 4 {
			out[i] = ring
			continue
		}
		out[i] = orb.Ring(result)
	}
	return out
}
