// Package flatgeobuf reads and writes FlatGeobuf files as orb geometries and
// geojson features. It is the artifact format of the pipeline: every verified
// dataset is written through WriteFeatures and loaded back through ReadAll.
package flatgeobuf

import (
	"errors"
)

// Errors returned by this package.
var (
	ErrNilGeometry      = errors.New("flatgeobuf: nil geometry")
	ErrUnsupportedType  = errors.New("flatgeobuf: unsupported geometry type")
	ErrInvalidData      = errors.New("flatgeobuf: invalid data")
	ErrNoIndex          = errors.New("flatgeobuf: file has no spatial index")
	ErrPropertyMismatch = errors.New("flatgeobuf: property type mismatch")
)

// CRS is the coordinate reference system stored in the file header.
type CRS struct {
	Org         string // defining organization, "EPSG" when empty
	Code        int
	Name        string
	Description string
	WKT         string
}

// WGS84 returns EPSG:4326.
func WGS84() *CRS {
	return &CRS{Org: "EPSG", Code: 4326, Name: "WGS 84"}
}

// Options configures writing.
type Options struct {
	Name         string // layer name
	Description  string
	IncludeIndex bool // packed Hilbert R-tree, needed by Search
	CRS          *CRS
}

// DefaultOptions writes an indexed WGS84 layer.
func DefaultOptions() *Options {
	return &Options{IncludeIndex: true, CRS: WGS84()}
}

// ColumnInfo describes a property column.
type ColumnInfo struct {
	Name        string
	Type        string // "Bool", "Int", "Long", "Double", "String", "Json", ...
	Title       string
	Description string
	Nullable    bool
}

// Header is the file metadata.
type Header struct {
	Name          string
	Description   string
	GeometryType  string // "Point", "Polygon", "Unknown", ...
	FeaturesCount uint64
	Envelope      [4]float64 // minX, minY, maxX, maxY
	CRS           *CRS
	HasIndex      bool
	Columns       []ColumnInfo
}

// ColumnNames lists the column names in schema order.
func (h *Header) ColumnNames() []string {
	if h == nil {
		return nil
	}
	names := make([]string, 0, len(h.Columns))
	for _, c := range h.Columns {
		names = append(names, c.Name)
	}
	return names
}
