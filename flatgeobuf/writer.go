package flatgeobuf

import (
	"io"

	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// WriteFeatures writes a feature collection as one FlatGeobuf layer. Features
// without a geometry, or with a geometry FlatGeobuf cannot hold, are
// skipped. The property schema is inferred from all features.
func WriteFeatures(w io.Writer, fc *geojson.FeatureCollection, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}
	if fc == nil || len(fc.Features) == 0 {
		return ErrNilGeometry
	}

	features := make([]*geojson.Feature, 0, len(fc.Features))
	geoms := make([]orb.Geometry, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		features = append(features, f)
		geoms = append(geoms, f.Geometry)
	}
	if len(features) == 0 {
		return ErrNilGeometry
	}

	builder := flatbuffers.NewBuilder(4096)
	header := writer.NewHeader(builder)
	header.SetGeometryType(layerType(geoms))
	if opts.Name != "" {
		header.SetName(opts.Name)
	}
	if opts.Description != "" {
		header.SetDescription(opts.Description)
	}

	s := inferSchema(features)
	if !s.empty() {
		header.SetColumns(s.columns(builder))
	}

	if opts.CRS != nil {
		header.SetCrs(buildCrs(builder, opts.CRS))
	}

	gen := &featureGenerator{features: features, schema: s}
	_, err := writer.NewWriter(header, opts.IncludeIndex, gen, nil).Write(w)
	return err
}

// WriteFeature writes a single feature as a layer.
func WriteFeature(w io.Writer, f *geojson.Feature, opts *Options) error {
	if f == nil {
		return ErrNilGeometry
	}
	return WriteFeatures(w, &geojson.FeatureCollection{Features: []*geojson.Feature{f}}, opts)
}

func buildCrs(builder *flatbuffers.Builder, c *CRS) *writer.Crs {
	crs := writer.NewCrs(builder)
	org := c.Org
	if org == "" {
		org = "EPSG"
	}
	crs.SetOrg(org)
	if c.Code > 0 {
		crs.SetCode(int32(c.Code))
	}
	if c.Name != "" {
		crs.SetName(c.Name)
	}
	switch {
	case c.Description != "":
		crs.SetDescription(c.Description)
	case c.WKT != "":
		crs.SetDescription(c.WKT)
	}
	return crs
}

// featureGenerator feeds features to the library writer one at a time.
type featureGenerator struct {
	features []*geojson.Feature
	schema   *schema
	next     int
}

func (g *featureGenerator) Generate() *writer.Feature {
	for g.next < len(g.features) {
		f := g.features[g.next]
		g.next++

		builder := flatbuffers.NewBuilder(1024)
		geom := geometryToFGB(f.Geometry, builder)
		if geom == nil {
			continue
		}

		feature := writer.NewFeature(builder)
		feature.SetGeometry(geom)
		if props := g.schema.encode(f.Properties); len(props) > 0 {
			feature.SetProperties(props)
		}
		return feature
	}
	return nil
}
