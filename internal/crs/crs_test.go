package crs

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lambert93WKT = `PROJCS["RGF93 / Lambert-93",GEOGCS["RGF93",DATUM["Reseau_Geodesique_Francais_1993",` +
	`SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],AUTHORITY["EPSG","6171"]],` +
	`PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4171"]],` +
	`PROJECTION["Lambert_Conformal_Conic_2SP"],PARAMETER["standard_parallel_1",49],` +
	`PARAMETER["standard_parallel_2",44],PARAMETER["latitude_of_origin",46.5],` +
	`PARAMETER["central_meridian",3],PARAMETER["false_easting",700000],` +
	`PARAMETER["false_northing",6600000],UNIT["metre",1],AUTHORITY["EPSG","2154"]]`

const esriLambert93 = `PROJCS["RGF_1993_Lambert_93",GEOGCS["GCS_RGF_1993",DATUM["D_RGF_1993",` +
	`SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],` +
	`PROJECTION["Lambert_Conformal_Conic"],PARAMETER["False_Easting",700000.0],UNIT["Meter",1.0]]`

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		code int
	}{
		{"epsg short", "EPSG:2154", 2154},
		{"ogc urn", "urn:ogc:def:crs:EPSG::2154", 2154},
		{"versioned urn", "urn:ogc:def:crs:EPSG:6.6:32631", 32631},
		{"crs84", "urn:ogc:def:crs:OGC:1.3:CRS84", 4326},
		{"opengis url", "http://www.opengis.net/def/crs/EPSG/0/3857", 3857},
		{"bare code", "4326", 4326},
		{"wkt authority", lambert93WKT, 2154},
		{"esri prj", esriLambert93, 2154},
		{"esri utm", `PROJCS["WGS_1984_UTM_Zone_31N",GEOGCS["GCS_WGS_1984"]]`, 32631},
		{"esri utm south", `PROJCS["WGS_1984_UTM_Zone_33S",GEOGCS["GCS_WGS_1984"]]`, 32733},
		{"esri etrs utm", `PROJCS["ETRS_1989_UTM_Zone_32N",GEOGCS["GCS_ETRS_1989"]]`, 25832},
		{"esri geographic", `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984"]]`, 4326},
		{"esri bng", `PROJCS["British_National_Grid",GEOGCS["GCS_OSGB_1936"]]`, 27700},
		{"unknown", `PROJCS["Some_Local_Grid",GEOGCS["GCS_Unknown"]]`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Parse(tt.in)
			require.NotNil(t, c)
			assert.Equal(t, tt.code, c.Code)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	assert.Nil(t, Parse("  "))
}

func TestToWGS84Unsupported(t *testing.T) {
	_, err := Parse(`PROJCS["Some_Local_Grid"]`).ToWGS84()
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = EPSG(99999).ToWGS84()
	assert.ErrorIs(t, err, ErrUnsupported)

	var none *CRS
	_, err = none.ToWGS84()
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestIsWGS84(t *testing.T) {
	assert.True(t, WGS84().IsWGS84())
	assert.True(t, EPSG(4326).IsWGS84())
	assert.False(t, EPSG(2154).IsWGS84())

	var none *CRS
	assert.False(t, none.IsWGS84())
}

func TestTransformOrigins(t *testing.T) {
	tests := []struct {
		name string
		code int
		in   orb.Point
		want orb.Point
	}{
		{"lambert-93 origin", 2154, orb.Point{700000, 6600000}, orb.Point{3, 46.5}},
		{"laea europe origin", 3035, orb.Point{4321000, 3210000}, orb.Point{10, 52}},
		{"utm 31N central meridian", 32631, orb.Point{500000, 0}, orb.Point{3, 0}},
		{"utm 33S central meridian", 32733, orb.Point{500000, 10000000}, orb.Point{15, 0}},
		{"web mercator origin", 3857, orb.Point{0, 0}, orb.Point{0, 0}},
		{"etrs89 geographic", 4258, orb.Point{2.35, 48.85}, orb.Point{2.35, 48.85}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proj, err := EPSG(tt.code).ToWGS84()
			require.NoError(t, err)
			got := proj(tt.in)
			assert.InDelta(t, tt.want[0], got[0], 1e-6)
			assert.InDelta(t, tt.want[1], got[1], 1e-6)
		})
	}
}

func TestBritishNationalGrid(t *testing.T) {
	proj, err := EPSG(27700).ToWGS84()
	require.NoError(t, err)

	// Nelson's Column, Trafalgar Square. The OSGB36 datum shift is about
	// 100 m here, so the tolerance stays well below it.
	got := proj(orb.Point{530010, 180420})
	assert.InDelta(t, -0.1281, got[0], 5e-4)
	assert.InDelta(t, 51.5078, got[1], 5e-4)
}

func TestWebMercatorAntimeridian(t *testing.T) {
	proj, err := EPSG(3857).ToWGS84()
	require.NoError(t, err)
	got := proj(orb.Point{20037508.342789244, 0})
	assert.InDelta(t, 180, got[0], 1e-6)
}

func TestNames(t *testing.T) {
	assert.Equal(t, "RGF93 / Lambert-93", EPSG(2154).Name)
	assert.Equal(t, "WGS 84 / UTM zone 31N", EPSG(32631).Name)
	assert.Equal(t, "EPSG:31467", EPSG(31467).Name)
	assert.Equal(t, "EPSG:27700 (OSGB36 / British National Grid)", EPSG(27700).String())
}
