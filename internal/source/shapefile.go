package source

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/tingold/geocouple/internal/crs"
	"github.com/tingold/geocouple/internal/failure"
	"github.com/tingold/geocouple/internal/geodata"
	"golang.org/x/text/encoding/charmap"
)

// decodeShapefile reads a .shp with its .dbf attributes. The CRS comes from
// the .prj beside it; a shapefile without one has no CRS.
func decodeShapefile(path string) (*geodata.Dataset, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "open shapefile %s", filepath.Base(path))
	}
	defer r.Close()

	fields := r.Fields()
	latin1 := !strings.EqualFold(readSidecar(path, ".cpg"), "UTF-8")

	fc := geojson.NewFeatureCollection()
	for r.Next() {
		n, shape := r.Shape()
		g := shapeGeometry(shape)
		if g == nil {
			continue
		}

		f := geojson.NewFeature(g)
		for i, field := range fields {
			raw := strings.TrimSpace(r.ReadAttribute(n, i))
			if latin1 && !utf8.ValidString(raw) {
				if decoded, err := charmap.Windows1252.NewDecoder().String(raw); err == nil {
					raw = decoded
				}
			}
			f.Properties[field.String()] = attributeValue(raw, field)
		}
		fc.Append(f)
	}
	if err := r.Err(); err != nil {
		return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "read shapefile %s", filepath.Base(path))
	}

	return geodata.New(fc, crs.Parse(readSidecar(path, ".prj"))), nil
}

// readSidecar returns the trimmed content of the file next to path with
// the given extension, in either case, or "" when there is none.
func readSidecar(path, ext string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, candidate := range []string{base + ext, base + strings.ToUpper(ext)} {
		if data, err := os.ReadFile(candidate); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}

// attributeValue types a DBF value by its field type: numbers, logicals,
// everything else as text. Blank values are null.
func attributeValue(raw string, field shp.Field) interface{} {
	if raw == "" {
		return nil
	}
	switch field.Fieldtype {
	case 'N', 'F':
		if field.Precision == 0 {
			if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return i
			}
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
		return nil
	case 'L':
		switch raw[0] {
		case 'T', 't', 'Y', 'y':
			return true
		case 'F', 'f', 'N', 'n':
			return false
		}
		return nil
	}
	return raw
}

func shapeGeometry(shape shp.Shape) orb.Geometry {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}
	case *shp.PointZ:
		return orb.Point{s.X, s.Y}
	case *shp.PointM:
		return orb.Point{s.X, s.Y}
	case *shp.MultiPoint:
		return multiPoint(s.Points)
	case *shp.MultiPointZ:
		return multiPoint(s.Points)
	case *shp.MultiPointM:
		return multiPoint(s.Points)
	case *shp.PolyLine:
		return lines(s.Parts, s.Points)
	case *shp.PolyLineZ:
		return lines(s.Parts, s.Points)
	case *shp.PolyLineM:
		return lines(s.Parts, s.Points)
	case *shp.Polygon:
		return polygons(s.Parts, s.Points)
	case *shp.PolygonZ:
		return polygons(s.Parts, s.Points)
	case *shp.PolygonM:
		return polygons(s.Parts, s.Points)
	}
	return nil
}

func multiPoint(points []shp.Point) orb.MultiPoint {
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p.X, p.Y}
	}
	return mp
}

// split cuts the shared point array at the part offsets.
func split(parts []int32, points []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(points) {
			continue
		}
		part := make([]orb.Point, 0, end-start)
		for _, p := range points[start:end] {
			part = append(part, orb.Point{p.X, p.Y})
		}
		out = append(out, part)
	}
	return out
}

func lines(parts []int32, points []shp.Point) orb.Geometry {
	segments := split(parts, points)
	if len(segments) == 1 {
		return orb.LineString(segments[0])
	}
	mls := make(orb.MultiLineString, len(segments))
	for i, p := range segments {
		mls[i] = p
	}
	return mls
}

// polygons groups rings into polygons: clockwise rings are shells,
// counter-clockwise rings are holes of the shell that contains them.
func polygons(parts []int32, points []shp.Point) orb.Geometry {
	var mp orb.MultiPolygon
	var holes []orb.Ring
	for _, p := range split(parts, points) {
		ring := orb.Ring(p)
		if ring.Orientation() == orb.CCW {
			holes = append(holes, ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}

	for _, hole := range holes {
		placed := false
		for i := range mp {
			if len(hole) > 0 && planar.RingContains(mp[i][0], hole[0]) {
				mp[i] = append(mp[i], hole)
				placed = true
				break
			}
		}
		if !placed {
			// Writers that ignore orientation produce lone CCW shells.
			mp = append(mp, orb.Polygon{hole})
		}
	}

	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	}
	return mp
}
