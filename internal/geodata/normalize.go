package geodata

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
	"github.com/tingold/geocouple/internal/crs"
	"github.com/tingold/geocouple/internal/failure"
)

// Normalize returns the dataset expressed in WGS84. A dataset without a
// CRS is rejected rather than assumed to be WGS84. The input is not
// modified.
func Normalize(d *Dataset) (*Dataset, error) {
	if d == nil || d.CRS == nil {
		return nil, failure.New(failure.ErrMissingCRS, "dataset declares no coordinate reference system")
	}
	if d.CRS.IsWGS84() {
		return d, nil
	}

	proj, err := d.CRS.ToWGS84()
	if err != nil {
		return nil, failure.Wrap(failure.ErrUnsupportedCRS, err, "cannot reproject %s", d.CRS)
	}

	features := make([]*geojson.Feature, 0, d.Len())
	for _, f := range d.Features.Features {
		if f == nil {
			continue
		}
		out := *f
		if f.Geometry != nil {
			out.Geometry = project.Geometry(orb.Clone(f.Geometry), proj)
			if !finite(out.Geometry) {
				return nil, failure.New(failure.ErrUnsupportedCRS,
					"coordinates fall outside the area of %s", d.CRS)
			}
		}
		features = append(features, &out)
	}

	result := d.withFeatures(features)
	result.CRS = crs.WGS84()
	return result, nil
}

// finite reports whether every coordinate of g is a real number.
func finite(g orb.Geometry) bool {
	ok := true
	walkPoints(g, func(p orb.Point) {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			ok = false
		}
	})
	return ok
}

func walkPoints(g orb.Geometry, fn func(orb.Point)) {
	switch g := g.(type) {
	case orb.Point:
		fn(g)
	case orb.MultiPoint:
		for _, p := range g {
			fn(p)
		}
	case orb.LineString:
		for _, p := range g {
			fn(p)
		}
	case orb.Ring:
		for _, p := range g {
			fn(p)
		}
	case orb.MultiLineString:
		for _, ls := range g {
			walkPoints(ls, fn)
		}
	case orb.Polygon:
		for _, r := range g {
			walkPoints(r, fn)
		}
	case orb.MultiPolygon:
		for _, poly := range g {
			walkPoints(poly, fn)
		}
	case orb.Collection:
		for _, c := range g {
			walkPoints(c, fn)
		}
	case orb.Bound:
		fn(g.Min)
		fn(g.Max)
	}
}
