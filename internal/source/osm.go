package source

import (
	"encoding/xml"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmgeojson"
	"github.com/tingold/geocouple/internal/crs"
	"github.com/tingold/geocouple/internal/failure"
	"github.com/tingold/geocouple/internal/geodata"
)

// decodeOSM converts an OpenStreetMap XML document (an Overpass response,
// typically) to features. Tags become plain properties next to the
// element "type" and "id".
func decodeOSM(data []byte) (*geodata.Dataset, error) {
	o := &osm.OSM{}
	if err := xml.Unmarshal(data, o); err != nil {
		return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "invalid osm xml")
	}

	fc, err := osmgeojson.Convert(o, osmgeojson.NoMeta(true), osmgeojson.NoRelationMembership(true))
	if err != nil {
		return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "convert osm to features")
	}

	for _, f := range fc.Features {
		var tags map[string]string
		switch t := f.Properties["tags"].(type) {
		case map[string]string:
			tags = t
		case osm.Tags:
			tags = t.Map()
		}
		delete(f.Properties, "tags")
		for k, v := range tags {
			if _, taken := f.Properties[k]; !taken {
				f.Properties[k] = v
			}
		}
	}

	return geodata.New(fc, crs.WGS84()), nil
}
