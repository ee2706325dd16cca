// Package source acquires geospatial datasets from local files, remote URLs
// and HTTP APIs, and decodes them into geodata.Dataset values.
package source

import (
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
)

// Kind is where a dataset comes from.
type Kind string

const (
	Local Kind = "local"
	URL   Kind = "url"
	API   Kind = "api"
)

// ParseKind accepts local, url or api in any case.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Local:
		return Local, nil
	case URL:
		return URL, nil
	case API:
		return API, nil
	}
	return "", fmt.Errorf("source: unknown kind %q (want local, url or api)", s)
}

// MethodParam is the API parameter selecting the HTTP method. It is not
// forwarded to the API.
const MethodParam = "method"

// Descriptor locates one dataset.
type Descriptor struct {
	Kind     Kind              `yaml:"kind" json:"kind"`
	Location string            `yaml:"location" json:"location"`
	Params   map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s:%s", d.Kind, d.Location)
}

// Format is a recognized vector format.
type Format int

const (
	FormatUnknown Format = iota
	FormatGeoJSON
	FormatArchive
	FormatKML
	FormatKMZ
	FormatFlatGeobuf
	FormatOSMXML
	FormatShapefile
)

var formatNames = map[Format]string{
	FormatUnknown:    "unknown",
	FormatGeoJSON:    "geojson",
	FormatArchive:    "zip",
	FormatKML:        "kml",
	FormatKMZ:        "kmz",
	FormatFlatGeobuf: "flatgeobuf",
	FormatOSMXML:     "osm",
	FormatShapefile:  "shapefile",
}

func (f Format) String() string { return formatNames[f] }

// Ext is the file extension used when a body of this format is stored.
func (f Format) Ext() string {
	switch f {
	case FormatGeoJSON:
		return ".geojson"
	case FormatArchive:
		return ".zip"
	case FormatKML:
		return ".kml"
	case FormatKMZ:
		return ".kmz"
	case FormatFlatGeobuf:
		return ".fgb"
	case FormatOSMXML:
		return ".osm"
	case FormatShapefile:
		return ".shp"
	}
	return ""
}

var extFormats = map[string]Format{
	".geojson": FormatGeoJSON,
	".json":    FormatGeoJSON,
	".zip":     FormatArchive,
	".kml":     FormatKML,
	".kmz":     FormatKMZ,
	".fgb":     FormatFlatGeobuf,
	".osm":     FormatOSMXML,
	".shp":     FormatShapefile,
}

// FormatFromPath resolves a format from a file extension.
func FormatFromPath(p string) Format {
	return extFormats[strings.ToLower(filepath.Ext(p))]
}

// formatFromURL resolves a format from the extension of a URL path. Local
// shapefiles are the only format that needs sidecar files, so .shp is not
// accepted remotely.
func formatFromURL(rawPath string) Format {
	f := extFormats[strings.ToLower(path.Ext(rawPath))]
	if f == FormatShapefile || f == FormatOSMXML {
		return FormatUnknown
	}
	return f
}

// mediaType returns the lowercased media type without parameters.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mt
}

// formatFromContentType maps a download content type. Generic types return
// FormatUnknown so the caller falls back to the URL extension.
func formatFromContentType(contentType string) Format {
	mt := mediaType(contentType)
	switch {
	case mt == "", mt == "application/octet-stream", mt == "binary/octet-stream":
		return FormatUnknown
	case strings.Contains(mt, "kmz"):
		return FormatKMZ
	case strings.Contains(mt, "kml"):
		return FormatKML
	case strings.Contains(mt, "flatgeobuf"):
		return FormatFlatGeobuf
	case strings.Contains(mt, "zip"):
		return FormatArchive
	case strings.Contains(mt, "json"), mt == "text/plain":
		return FormatGeoJSON
	}
	return FormatUnknown
}

// formatFromAPIContentType maps an API response content type: JSON is
// GeoJSON, KML is KML, any other XML is OpenStreetMap XML.
func formatFromAPIContentType(contentType string) Format {
	mt := mediaType(contentType)
	switch {
	case strings.Contains(mt, "json"):
		return FormatGeoJSON
	case strings.Contains(mt, "kml"):
		return FormatKML
	case strings.Contains(mt, "xml"):
		return FormatOSMXML
	}
	return FormatUnknown
}
