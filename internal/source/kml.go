package source

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tingold/geocouple/internal/crs"
	"github.com/tingold/geocouple/internal/failure"
	"github.com/tingold/geocouple/internal/geodata"
)

type kmlPlacemark struct {
	Name         string `xml:"name"`
	Description  string `xml:"description"`
	ExtendedData struct {
		Data []struct {
			Name  string `xml:"name,attr"`
			Value string `xml:"value"`
		} `xml:"Data"`
		SchemaData []struct {
			SimpleData []struct {
				Name  string `xml:"name,attr"`
				Value string `xml:",chardata"`
			} `xml:"SimpleData"`
		} `xml:"SchemaData"`
	} `xml:"ExtendedData"`
	kmlGeometry
}

type kmlGeometry struct {
	Points      []kmlCoordinates `xml:"Point"`
	LineStrings []kmlCoordinates `xml:"LineString"`
	Polygons    []kmlPolygon     `xml:"Polygon"`
	Multi       []kmlGeometry    `xml:"MultiGeometry"`
}

type kmlCoordinates struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPolygon struct {
	Outer kmlCoordinates   `xml:"outerBoundaryIs>LinearRing"`
	Inner []kmlCoordinates `xml:"innerBoundaryIs>LinearRing"`
}

// decodeKML reads every Placemark of a KML document, at any depth of
// Document and Folder nesting. KML coordinates are always WGS84.
func decodeKML(r io.Reader) (*geodata.Dataset, error) {
	dec := xml.NewDecoder(r)
	fc := geojson.NewFeatureCollection()

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "invalid kml")
		}

		el, ok := tok.(xml.StartElement)
		if !ok || el.Name.Local != "Placemark" {
			continue
		}
		var pm kmlPlacemark
		if err := dec.DecodeElement(&pm, &el); err != nil {
			return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "invalid kml placemark")
		}

		g := pm.geometry()
		if g == nil {
			continue
		}
		f := geojson.NewFeature(g)
		if pm.Name != "" {
			f.Properties["name"] = strings.TrimSpace(pm.Name)
		}
		if pm.Description != "" {
			f.Properties["description"] = strings.TrimSpace(pm.Description)
		}
		for _, d := range pm.ExtendedData.Data {
			f.Properties[d.Name] = strings.TrimSpace(d.Value)
		}
		for _, sd := range pm.ExtendedData.SchemaData {
			for _, d := range sd.SimpleData {
				f.Properties[d.Name] = strings.TrimSpace(d.Value)
			}
		}
		fc.Append(f)
	}

	return geodata.New(fc, crs.WGS84()), nil
}

// decodeKMZ decodes the main KML document of a KMZ archive: doc.kml when
// present, otherwise the first .kml entry.
func decodeKMZ(data []byte, limit int64) (*geodata.Dataset, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "open kmz")
	}

	var doc *zip.File
	for _, zf := range zr.File {
		if !strings.EqualFold(path.Ext(zf.Name), ".kml") {
			continue
		}
		if strings.EqualFold(path.Base(zf.Name), "doc.kml") {
			doc = zf
			break
		}
		if doc == nil {
			doc = zf
		}
	}
	if doc == nil {
		return nil, failure.New(failure.ErrArchiveMissingGeometry, "kmz contains no .kml document")
	}
	if doc.UncompressedSize64 > uint64(limit) {
		return nil, failure.New(failure.ErrAcquisitionFailed, "%s in kmz expands beyond %d bytes", doc.Name, limit)
	}

	rc, err := doc.Open()
	if err != nil {
		return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "open %s in kmz", doc.Name)
	}
	defer rc.Close()
	return decodeKML(io.LimitReader(rc, limit))
}

// geometry flattens the placemark geometry. Homogeneous parts become the
// matching multi geometry; mixed parts become a collection.
func (g kmlGeometry) geometry() orb.Geometry {
	var points orb.MultiPoint
	var lines orb.MultiLineString
	var polys orb.MultiPolygon
	g.collect(&points, &lines, &polys)

	var parts orb.Collection
	switch len(points) {
	case 0:
	case 1:
		parts = append(parts, points[0])
	default:
		parts = append(parts, points)
	}
	switch len(lines) {
	case 0:
	case 1:
		parts = append(parts, lines[0])
	default:
		parts = append(parts, lines)
	}
	switch len(polys) {
	case 0:
	case 1:
		parts = append(parts, polys[0])
	default:
		parts = append(parts, polys)
	}

	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	}
	return parts
}

func (g kmlGeometry) collect(points *orb.MultiPoint, lines *orb.MultiLineString, polys *orb.MultiPolygon) {
	for _, p := range g.Points {
		if coords := parseKMLCoordinates(p.Coordinates); len(coords) > 0 {
			*points = append(*points, coords[0])
		}
	}
	for _, l := range g.LineStrings {
		if coords := parseKMLCoordinates(l.Coordinates); len(coords) > 1 {
			*lines = append(*lines, orb.LineString(coords))
		}
	}
	for _, p := range g.Polygons {
		outer := parseKMLCoordinates(p.Outer.Coordinates)
		if len(outer) < 4 {
			continue
		}
		poly := orb.Polygon{orb.Ring(outer)}
		for _, in := range p.Inner {
			if ring := parseKMLCoordinates(in.Coordinates); len(ring) >= 4 {
				poly = append(poly, orb.Ring(ring))
			}
		}
		*polys = append(*polys, poly)
	}
	for _, m := range g.Multi {
		m.collect(points, lines, polys)
	}
}

// parseKMLCoordinates parses whitespace separated "lon,lat[,alt]" tuples.
// Malformed tuples are skipped.
func parseKMLCoordinates(s string) []orb.Point {
	fields := strings.Fields(s)
	pts := make([]orb.Point, 0, len(fields))
	for _, tuple := range fields {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			continue
		}
		lon, err1 := strconv.ParseFloat(parts[0], 64)
		lat, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		pts = append(pts, orb.Point{lon, lat})
	}
	return pts
}
