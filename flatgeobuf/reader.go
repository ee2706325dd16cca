package flatgeobuf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// magic is the file signature up to the major version byte.
var magic = []byte{0x66, 0x67, 0x62, 0x03}

// Reader provides read access to a FlatGeobuf file held in memory.
type Reader struct {
	fgb  *flatgeobuf.FlatGeoBuf
	data []byte
}

// NewReader reads the file at path into memory.
func NewReader(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewReaderFromData(data)
}

// NewReaderFromData creates a reader over data. The slice must not be
// modified while the reader is in use.
func NewReaderFromData(data []byte) (*Reader, error) {
	if len(data) < 12 || !bytes.Equal(data[:len(magic)], magic) {
		return nil, ErrInvalidData
	}

	fgb, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	return &Reader{fgb: fgb, data: data}, nil
}

// Header returns the file metadata.
func (r *Reader) Header() *Header {
	h := r.fgb.Header()
	if h == nil {
		return nil
	}

	header := &Header{
		Name:          string(h.Name()),
		Description:   string(h.Description()),
		GeometryType:  flattypes.EnumNamesGeometryType[h.GeometryType()],
		FeaturesCount: h.FeaturesCount(),
		HasIndex:      h.IndexNodeSize() > 0,
	}

	if h.EnvelopeLength() >= 4 {
		header.Envelope = [4]float64{h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3)}
	}

	var crs flattypes.Crs
	if h.Crs(&crs) != nil {
		header.CRS = &CRS{
			Org:         string(crs.Org()),
			Code:        int(crs.Code()),
			Name:        string(crs.Name()),
			Description: string(crs.Description()),
			WKT:         string(crs.Wkt()),
		}
	}

	if n := h.ColumnsLength(); n > 0 {
		header.Columns = make([]ColumnInfo, 0, n)
		for i := 0; i < n; i++ {
			var col flattypes.Column
			if h.Columns(&col, i) {
				header.Columns = append(header.Columns, ColumnInfo{
					Name:        string(col.Name()),
					Type:        flattypes.EnumNamesColumnType[col.Type()],
					Title:       string(col.Title()),
					Description: string(col.Description()),
					Nullable:    col.Nullable(),
				})
			}
		}
	}

	return header
}

// ReadAll reads every feature. Indexed files are read through the index,
// other files by walking the feature section in order.
func (r *Reader) ReadAll() (*geojson.FeatureCollection, error) {
	h := r.fgb.Header()
	fc := geojson.NewFeatureCollection()
	if h.FeaturesCount() == 0 {
		return fc, nil
	}

	if h.IndexNodeSize() == 0 {
		features, err := r.scan(h)
		if err != nil {
			return nil, err
		}
		fc.Features = features
		return fc, nil
	}

	features, err := r.fgb.Search(-math.MaxFloat64, -math.MaxFloat64, math.MaxFloat64, math.MaxFloat64)
	if err != nil {
		return nil, err
	}
	for _, f := range features {
		if feature := convertFeature(f, h); feature != nil {
			fc.Append(feature)
		}
	}
	return fc, nil
}

// scan decodes the size-prefixed features that follow the header of a file
// written without an index.
func (r *Reader) scan(h *flattypes.Header) ([]*geojson.Feature, error) {
	offset := 12 + int(binary.LittleEndian.Uint32(r.data[8:12]))
	features := make([]*geojson.Feature, 0, h.FeaturesCount())

	for offset+4 <= len(r.data) {
		size := int(binary.LittleEndian.Uint32(r.data[offset : offset+4]))
		start := offset + 4
		if size == 0 || start+size > len(r.data) {
			return nil, fmt.Errorf("%w: truncated feature at offset %d", ErrInvalidData, offset)
		}

		f := flattypes.GetRootAsFeature(r.data[start:start+size], 0)
		if feature := convertFeature(f, h); feature != nil {
			features = append(features, feature)
		}
		offset = start + size
	}

	return features, nil
}

// Search returns the features whose bounding boxes intersect bounds.
func (r *Reader) Search(bounds orb.Bound) (*geojson.FeatureCollection, error) {
	h := r.fgb.Header()
	if h.IndexNodeSize() == 0 {
		return nil, ErrNoIndex
	}

	features, err := r.fgb.Search(bounds.Min[0], bounds.Min[1], bounds.Max[0], bounds.Max[1])
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		if feature := convertFeature(f, h); feature != nil {
			fc.Append(feature)
		}
	}
	return fc, nil
}

// Close releases the buffer.
func (r *Reader) Close() error {
	r.fgb = nil
	r.data = nil
	return nil
}

func convertFeature(f *flattypes.Feature, header *flattypes.Header) *geojson.Feature {
	if f == nil {
		return nil
	}

	var geomObj flattypes.Geometry
	geom := f.Geometry(&geomObj)
	if geom == nil {
		return nil
	}

	g := geometryFromFGB(geom, header.GeometryType())
	if g == nil {
		return nil
	}

	feature := geojson.NewFeature(g)
	if n := f.PropertiesLength(); n > 0 && header.ColumnsLength() > 0 {
		raw := make([]byte, n)
		for i := range raw {
			raw[i] = byte(f.Properties(i))
		}
		if props := decodeProperties(raw, header); props != nil {
			feature.Properties = props
		}
	}
	return feature
}
