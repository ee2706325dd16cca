package flatgeobuf

import (
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
)

// geometryType maps an orb geometry to its FlatGeobuf type.
func geometryType(geom orb.Geometry) flattypes.GeometryType {
	switch geom.(type) {
	case orb.Point:
		return flattypes.GeometryTypePoint
	case orb.MultiPoint:
		return flattypes.GeometryTypeMultiPoint
	case orb.LineString:
		return flattypes.GeometryTypeLineString
	case orb.MultiLineString:
		return flattypes.GeometryTypeMultiLineString
	case orb.Ring, orb.Polygon:
		return flattypes.GeometryTypePolygon
	case orb.MultiPolygon:
		return flattypes.GeometryTypeMultiPolygon
	case orb.Collection:
		return flattypes.GeometryTypeGeometryCollection
	default:
		return flattypes.GeometryTypeUnknown
	}
}

// layerType is the header geometry type: the common type of all geometries,
// or Unknown when they differ.
func layerType(geoms []orb.Geometry) flattypes.GeometryType {
	t := flattypes.GeometryTypeUnknown
	for i, g := range geoms {
		gt := geometryType(g)
		if i == 0 {
			t = gt
			continue
		}
		if gt != t {
			return flattypes.GeometryTypeUnknown
		}
	}
	return t
}

// geometryToFGB builds the FlatGeobuf geometry table for geom, or nil when
// the type has no FlatGeobuf representation.
func geometryToFGB(geom orb.Geometry, builder *flatbuffers.Builder) *writer.Geometry {
	if geom == nil {
		return nil
	}

	g := writer.NewGeometry(builder)
	g.SetType(geometryType(geom))

	switch v := geom.(type) {
	case orb.Point:
		g.SetXY([]float64{v[0], v[1]})

	case orb.MultiPoint:
		xy, _ := xyEnds([]orb.Point(v))
		g.SetXY(xy)

	case orb.LineString:
		xy, _ := xyEnds([]orb.Point(v))
		g.SetXY(xy)

	case orb.MultiLineString:
		parts := make([][]orb.Point, len(v))
		for i, ls := range v {
			parts[i] = ls
		}
		xy, ends := xyEnds(parts...)
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.Ring:
		setPolygon(g, orb.Polygon{v})

	case orb.Polygon:
		setPolygon(g, v)

	case orb.MultiPolygon:
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			pg := writer.NewGeometry(builder)
			pg.SetType(flattypes.GeometryTypePolygon)
			setPolygon(pg, poly)
			parts = append(parts, *pg)
		}
		g.SetParts(parts)

	case orb.Collection:
		parts := make([]writer.Geometry, 0, len(v))
		for _, child := range v {
			if cg := geometryToFGB(child, builder); cg != nil {
				parts = append(parts, *cg)
			}
		}
		g.SetParts(parts)

	default:
		return nil
	}

	return g
}

func setPolygon(g *writer.Geometry, poly orb.Polygon) {
	rings := make([][]orb.Point, len(poly))
	for i, r := range poly {
		rings[i] = r
	}
	xy, ends := xyEnds(rings...)
	g.SetXY(xy)
	g.SetEnds(ends)
}

// xyEnds flattens parts into interleaved coordinates and cumulative end
// offsets counted in points.
func xyEnds(parts ...[]orb.Point) ([]float64, []uint32) {
	total := 0
	for _, p := range parts {
		total += len(p)
	}

	xy := make([]float64, 0, total*2)
	ends := make([]uint32, 0, len(parts))
	for _, p := range parts {
		for _, pt := range p {
			xy = append(xy, pt[0], pt[1])
		}
		ends = append(ends, uint32(len(xy)/2))
	}
	return xy, ends
}

// geometryFromFGB converts a FlatGeobuf geometry. Writers may omit the
// per-feature type when the header declares one; fallback is then used.
func geometryFromFGB(g *flattypes.Geometry, fallback flattypes.GeometryType) orb.Geometry {
	if g == nil {
		return nil
	}

	t := g.Type()
	if t == flattypes.GeometryTypeUnknown {
		t = fallback
	}

	switch t {
	case flattypes.GeometryTypePoint:
		if g.XyLength() < 2 {
			return nil
		}
		return orb.Point{g.Xy(0), g.Xy(1)}

	case flattypes.GeometryTypeMultiPoint:
		return orb.MultiPoint(readPoints(g, 0, g.XyLength()/2))

	case flattypes.GeometryTypeLineString:
		return orb.LineString(readPoints(g, 0, g.XyLength()/2))

	case flattypes.GeometryTypeMultiLineString:
		parts := readParts(g)
		mls := make(orb.MultiLineString, len(parts))
		for i, p := range parts {
			mls[i] = p
		}
		return mls

	case flattypes.GeometryTypePolygon:
		return readPolygon(g)

	case flattypes.GeometryTypeMultiPolygon:
		n := g.PartsLength()
		if n == 0 {
			if poly := readPolygon(g); len(poly) > 0 {
				return orb.MultiPolygon{poly}
			}
			return orb.MultiPolygon{}
		}
		mp := make(orb.MultiPolygon, 0, n)
		for i := 0; i < n; i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				if poly := readPolygon(&part); len(poly) > 0 {
					mp = append(mp, poly)
				}
			}
		}
		return mp

	case flattypes.GeometryTypeGeometryCollection:
		n := g.PartsLength()
		coll := make(orb.Collection, 0, n)
		for i := 0; i < n; i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				if child := geometryFromFGB(&part, flattypes.GeometryTypeUnknown); child != nil {
					coll = append(coll, child)
				}
			}
		}
		return coll
	}

	return nil
}

func readPolygon(g *flattypes.Geometry) orb.Polygon {
	parts := readParts(g)
	poly := make(orb.Polygon, len(parts))
	for i, p := range parts {
		poly[i] = p
	}
	return poly
}

// readPoints reads points [from, to) of the coordinate array.
func readPoints(g *flattypes.Geometry, from, to int) []orb.Point {
	if n := g.XyLength() / 2; to > n {
		to = n
	}
	if from >= to {
		return []orb.Point{}
	}
	pts := make([]orb.Point, 0, to-from)
	for i := from; i < to; i++ {
		pts = append(pts, orb.Point{g.Xy(2 * i), g.Xy(2*i + 1)})
	}
	return pts
}

// readParts splits the coordinates by the ends array. Without ends the
// whole array is one part.
func readParts(g *flattypes.Geometry) [][]orb.Point {
	n := g.XyLength() / 2
	if n == 0 {
		return nil
	}
	if g.EndsLength() == 0 {
		return [][]orb.Point{readPoints(g, 0, n)}
	}

	parts := make([][]orb.Point, 0, g.EndsLength())
	start := 0
	for i := 0; i < g.EndsLength(); i++ {
		end := int(g.Ends(i))
		parts = append(parts, readPoints(g, start, end))
		start = end
	}
	return parts
}
