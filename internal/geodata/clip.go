package geodata

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/tingold/geocouple/internal/failure"
)

// ClipPolicy decides which point features survive the clip.
type ClipPolicy string

const (
	// Intersects is an overlay intersection: points inside or on the
	// boundary of a zone polygon are kept, and multipoints are cut down to
	// their intersecting members.
	Intersects ClipPolicy = "intersects"
	// Within keeps only features strictly inside a zone polygon.
	Within ClipPolicy = "within"
)

// ParseClipPolicy accepts "intersects" (default when empty) or "within".
func ParseClipPolicy(s string) (ClipPolicy, error) {
	switch ClipPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Intersects:
		return Intersects, nil
	case Within:
		return Within, nil
	}
	return "", fmt.Errorf("geodata: unknown clip policy %q", s)
}

// zonePart is a zone polygon with its precomputed bound and attributes.
type zonePart struct {
	shape orb.MultiPolygon
	bound orb.Bound
	props geojson.Properties
}

// Clip keeps the point features of points that fall in zone. Both datasets
// must already be WGS84. One output feature is produced per pair of point
// feature and zone feature it intersects; zone attributes are merged into
// the point attributes, suffixed with "_zone" on collision.
func Clip(points, zone *Dataset, policy ClipPolicy) (*Dataset, error) {
	if zone.Len() == 0 {
		return nil, failure.New(failure.ErrInvalidZone, "zone layer has no features")
	}
	if !points.CRS.IsWGS84() || !zone.CRS.IsWGS84() {
		return nil, failure.New(failure.ErrMissingCRS, "clip operands must be WGS84 (points %s, zone %s)", points.CRS, zone.CRS)
	}

	parts := make([]zonePart, 0, zone.Len())
	for _, f := range zone.Features.Features {
		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		default:
			continue
		}
		parts = append(parts, zonePart{shape: mp, bound: mp.Bound(), props: f.Properties})
	}
	if len(parts) == 0 {
		return nil, failure.New(failure.ErrInvalidZone, "zone layer has no polygon geometry")
	}

	var kept []*geojson.Feature
	for _, f := range points.Features.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		for _, part := range parts {
			g, ok := clipGeometry(f.Geometry, part, policy)
			if !ok {
				continue
			}
			out := geojson.NewFeature(g)
			out.ID = f.ID
			out.Properties = mergeProperties(f.Properties, part.props)
			kept = append(kept, out)
		}
	}
	if len(kept) == 0 {
		return nil, failure.New(failure.ErrEmptyDataset, "no point falls inside the zone (%s policy)", policy)
	}

	return points.withFeatures(kept), nil
}

// clipGeometry returns the part of g retained by the zone part.
func clipGeometry(g orb.Geometry, part zonePart, policy ClipPolicy) (orb.Geometry, bool) {
	switch v := g.(type) {
	case orb.Point:
		return v, pointIn(part, v, policy)
	case orb.MultiPoint:
		if policy == Within {
			for _, p := range v {
				if !pointIn(part, p, Within) {
					return nil, false
				}
			}
			return v, len(v) > 0
		}
		var inside orb.MultiPoint
		for _, p := range v {
			if pointIn(part, p, Intersects) {
				inside = append(inside, p)
			}
		}
		if len(inside) == 0 {
			return nil, false
		}
		return inside, true
	}
	return nil, false
}

func pointIn(part zonePart, p orb.Point, policy ClipPolicy) bool {
	if !part.bound.Contains(p) {
		return false
	}
	// planar treats boundary points as inside.
	if !planar.MultiPolygonContains(part.shape, p) {
		return false
	}
	if policy == Within {
		return !onBoundary(part.shape, p)
	}
	return true
}

const boundaryEpsilon = 1e-12

func onBoundary(mp orb.MultiPolygon, p orb.Point) bool {
	for _, poly := range mp {
		for _, ring := range poly {
			for i := 1; i < len(ring); i++ {
				if onSegment(ring[i-1], ring[i], p) {
					return true
				}
			}
		}
	}
	return false
}

func onSegment(a, b, p orb.Point) bool {
	cross := (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
	if math.Abs(cross) > boundaryEpsilon {
		return false
	}
	return p[0] >= math.Min(a[0], b[0]) && p[0] <= math.Max(a[0], b[0]) &&
		p[1] >= math.Min(a[1], b[1]) && p[1] <= math.Max(a[1], b[1])
}

func mergeProperties(pointProps, zoneProps geojson.Properties) geojson.Properties {
	out := make(geojson.Properties, len(pointProps)+len(zoneProps))
	for k, v := range pointProps {
		out[k] = v
	}
	for k, v := range zoneProps {
		if _, taken := out[k]; taken {
			k += "_zone"
		}
		out[k] = v
	}
	return out
}
