// Package crs identifies coordinate reference systems from the notations
// found in vector inputs (EPSG codes, OGC URNs, WKT and ESRI .prj text) and
// builds the transformations that bring coordinates back to WGS84
// longitude/latitude.
package crs

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/wroge/wgs84"
)

// ErrUnsupported is returned when a CRS has no known transformation to
// WGS84.
var ErrUnsupported = errors.New("crs: unsupported coordinate reference system")

// WGS84Code is the EPSG code every dataset is normalized to.
const WGS84Code = 4326

// CRS is an identified coordinate reference system. Code is 0 when the
// definition could not be matched to an EPSG code; WKT keeps the raw text.
type CRS struct {
	Code int
	Name string
	WKT  string
}

// WGS84 returns EPSG:4326.
func WGS84() *CRS {
	return &CRS{Code: WGS84Code, Name: "WGS 84"}
}

// EPSG returns the CRS for an EPSG code, named when the code is known.
func EPSG(code int) *CRS {
	return &CRS{Code: code, Name: nameOf(code)}
}

// IsWGS84 reports whether coordinates are already WGS84 longitude/latitude.
func (c *CRS) IsWGS84() bool {
	return c != nil && c.Code == WGS84Code
}

func (c *CRS) String() string {
	if c == nil {
		return "<none>"
	}
	if c.Code > 0 {
		return fmt.Sprintf("EPSG:%d (%s)", c.Code, c.Name)
	}
	if c.Name != "" {
		return c.Name
	}
	return "unidentified CRS"
}

// ToWGS84 returns the projection converting coordinates of c to WGS84
// longitude/latitude, datum shift included. Web Mercator goes through orb
// directly; every other code is resolved against the EPSG registry.
func (c *CRS) ToWGS84() (orb.Projection, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil", ErrUnsupported)
	}
	if c.IsWGS84() {
		return identity, nil
	}
	if isWebMercator(c.Code) {
		return project.Mercator.ToWGS84, nil
	}
	if c.Code <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, c)
	}

	transform, err := registry.SafeTransform(c.Code, WGS84Code)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupported, c, err)
	}
	return func(p orb.Point) orb.Point {
		lon, lat, _ := transform(p[0], p[1], 0)
		return orb.Point{lon, lat}
	}, nil
}

var (
	urnPattern       = regexp.MustCompile(`(?i)(?:EPSG:(?:[\d.]*:)?|/EPSG/\d+/)(\d+)$`)
	authorityPattern = regexp.MustCompile(`(?i)(?:AUTHORITY\["EPSG",\s*"?|ID\["EPSG",\s*)(\d+)`)
	namePattern      = regexp.MustCompile(`^\s*(?:PROJCS|GEOGCS|PROJCRS|GEOGCRS|GEODCRS)\["([^"]+)"`)
	utmNamePattern   = regexp.MustCompile(`(?i)(WGS[_ ]?(?:19)?84|ETRS[_ ]?(?:19)?89|NAD[_ ]?(?:19)?83)[_ ]+UTM[_ ]+zone[_ ]+(\d{1,2})([NS])`)
)

// Parse identifies a CRS from an EPSG notation, an OGC URN/URL or WKT text.
// Empty input returns nil. Unrecognized text yields a CRS with Code 0 that
// ToWGS84 rejects.
func Parse(s string) *CRS {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	upper := strings.ToUpper(s)
	if strings.HasSuffix(upper, "CRS84") || strings.HasSuffix(upper, "CRS:84") {
		return WGS84()
	}
	if m := urnPattern.FindStringSubmatch(s); m != nil {
		if code, err := strconv.Atoi(m[1]); err == nil {
			return EPSG(code)
		}
	}
	if code, err := strconv.Atoi(s); err == nil && code > 0 {
		return EPSG(code)
	}
	return parseWKT(s)
}

func parseWKT(wkt string) *CRS {
	c := &CRS{WKT: wkt}
	if m := namePattern.FindStringSubmatch(wkt); m != nil {
		c.Name = m[1]
	}

	// In WKT1 the outermost AUTHORITY is the last one; WKT2 puts the CRS
	// ID last as well.
	if all := authorityPattern.FindAllStringSubmatch(wkt, -1); len(all) > 0 {
		if code, err := strconv.Atoi(all[len(all)-1][1]); err == nil {
			c.Code = code
			return c
		}
	}

	// ESRI .prj files carry names only.
	if code := codeFromName(c.Name); code > 0 {
		c.Code = code
	}
	return c
}

func codeFromName(name string) int {
	if name == "" {
		return 0
	}
	if m := utmNamePattern.FindStringSubmatch(name); m != nil {
		zone, _ := strconv.Atoi(m[2])
		if zone < 1 || zone > 60 {
			return 0
		}
		datum := strings.ToUpper(strings.NewReplacer("_", "", " ", "").Replace(m[1]))
		north := strings.EqualFold(m[3], "N")
		switch {
		case strings.HasPrefix(datum, "WGS") && north:
			return 32600 + zone
		case strings.HasPrefix(datum, "WGS"):
			return 32700 + zone
		case strings.HasPrefix(datum, "ETRS") && north:
			return 25800 + zone
		case strings.HasPrefix(datum, "NAD") && north:
			return 26900 + zone
		}
		return 0
	}
	key := strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_").Replace(name))
	return esriNames[key]
}

var esriNames = map[string]int{
	"GCS_WGS_1984":                           4326,
	"WGS_84":                                 4326,
	"WGS84":                                  4326,
	"GCS_ETRS_1989":                          4258,
	"ETRS89":                                 4258,
	"GCS_RGF_1993":                           4171,
	"RGF93":                                  4171,
	"GCS_NORTH_AMERICAN_1983":                4269,
	"NAD83":                                  4269,
	"RGF93_LAMBERT_93":                       2154,
	"RGF_1993_LAMBERT_93":                    2154,
	"RGF93_V1_LAMBERT_93":                    2154,
	"WGS_1984_WEB_MERCATOR_AUXILIARY_SPHERE": 3857,
	"WGS_84_PSEUDO_MERCATOR":                 3857,
	"WGS_1984_WEB_MERCATOR":                  3857,
	"BRITISH_NATIONAL_GRID":                  27700,
	"OSGB_1936_BRITISH_NATIONAL_GRID":        27700,
	"ETRS_1989_LAEA":                         3035,
	"ETRS89_LAEA_EUROPE":                     3035,
}

// names labels the codes most often met in inputs.
var names = map[int]string{
	4326:  "WGS 84",
	4258:  "ETRS89",
	4171:  "RGF93",
	4269:  "NAD83",
	3857:  "WGS 84 / Pseudo-Mercator",
	2154:  "RGF93 / Lambert-93",
	3035:  "ETRS89 / LAEA Europe",
	27700: "OSGB36 / British National Grid",
}

func nameOf(code int) string {
	if n, ok := names[code]; ok {
		return n
	}
	switch {
	case code >= 32601 && code <= 32660:
		return fmt.Sprintf("WGS 84 / UTM zone %dN", code-32600)
	case code >= 32701 && code <= 32760:
		return fmt.Sprintf("WGS 84 / UTM zone %dS", code-32700)
	case code >= 25828 && code <= 25838:
		return fmt.Sprintf("ETRS89 / UTM zone %dN", code-25800)
	}
	return fmt.Sprintf("EPSG:%d", code)
}

// registry holds the EPSG definitions and datum shifts used by ToWGS84.
var registry = wgs84.EPSG()

// isWebMercator reports the codes and ESRI aliases of EPSG:3857.
func isWebMercator(code int) bool {
	return code == 3857 || code == 900913 || code == 102100
}

func identity(p orb.Point) orb.Point { return p }
