package source

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/tingold/geocouple/internal/crs"
	"github.com/tingold/geocouple/internal/failure"
	"github.com/tingold/geocouple/internal/geodata"
)

// geojsonHead is the part of a document inspected before decoding: its type,
// whether it carries features, and the legacy 2008 "crs" member.
type geojsonHead struct {
	Type     string          `json:"type"`
	Features json.RawMessage `json:"features"`
	CRS      *struct {
		Type       string `json:"type"`
		Properties struct {
			Name string `json:"name"`
			Code int    `json:"code"`
		} `json:"properties"`
	} `json:"crs"`
}

// decodeGeoJSON accepts a FeatureCollection, a single Feature or a bare
// geometry. Without a "crs" member the document is WGS84 (RFC 7946).
func decodeGeoJSON(data []byte) (*geodata.Dataset, error) {
	var head geojsonHead
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "invalid geojson")
	}

	fc := geojson.NewFeatureCollection()
	switch head.Type {
	case "FeatureCollection":
		if len(head.Features) == 0 || string(head.Features) == "null" {
			return nil, failure.New(failure.ErrAcquisitionFailed, "geojson has no 'features' member")
		}
		decoded, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "invalid geojson feature collection")
		}
		fc = decoded

	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "invalid geojson feature")
		}
		fc.Append(f)

	case "Point", "MultiPoint", "LineString", "MultiLineString", "Polygon", "MultiPolygon", "GeometryCollection":
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "invalid geojson geometry")
		}
		fc.Append(geojson.NewFeature(g.Geometry()))

	default:
		if len(head.Features) == 0 {
			return nil, failure.New(failure.ErrAcquisitionFailed, "geojson has no 'features' member")
		}
		return nil, failure.New(failure.ErrUnsupportedFormat, "unknown geojson type %q", head.Type)
	}

	return geodata.New(fc, geojsonCRS(head)), nil
}

func geojsonCRS(head geojsonHead) *crs.CRS {
	if head.CRS == nil {
		return crs.WGS84()
	}
	if head.CRS.Properties.Name != "" {
		return crs.Parse(head.CRS.Properties.Name)
	}
	if head.CRS.Type == "EPSG" && head.CRS.Properties.Code > 0 {
		return crs.EPSG(head.CRS.Properties.Code)
	}
	return &crs.CRS{Name: fmt.Sprintf("unrecognized geojson crs of type %q", head.CRS.Type)}
}
