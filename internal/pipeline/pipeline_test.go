package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tingold/geocouple/internal/crs"
	"github.com/tingold/geocouple/internal/failure"
	"github.com/tingold/geocouple/internal/geodata"
	"github.com/tingold/geocouple/internal/source"
	"github.com/tingold/geocouple/internal/store"
)

// stubAcquirer serves datasets keyed by descriptor location.
type stubAcquirer map[string]func() (*geodata.Dataset, error)

func (s stubAcquirer) Acquire(_ context.Context, d source.Descriptor) (*geodata.Dataset, error) {
	fn, ok := s[d.Location]
	if !ok {
		return nil, failure.New(failure.ErrNotFound, "%s does not exist", d.Location)
	}
	return fn()
}

func dataset(c *crs.CRS, features ...*geojson.Feature) func() (*geodata.Dataset, error) {
	return func() (*geodata.Dataset, error) {
		fc := geojson.NewFeatureCollection()
		for _, f := range features {
			fc.Append(f)
		}
		return geodata.New(fc, c), nil
	}
}

func feature(g orb.Geometry, props geojson.Properties) *geojson.Feature {
	f := geojson.NewFeature(g)
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

var square = orb.Polygon{{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}}

func fixtures() stubAcquirer {
	return stubAcquirer{
		"zone": dataset(crs.WGS84(),
			feature(square, geojson.Properties{"code": "Z1", "label": "Square"})),
		"points": dataset(crs.WGS84(),
			feature(orb.Point{5, 5}, geojson.Properties{"nom": "Inside", "pop": 3}),
			feature(orb.Point{50, 50}, geojson.Properties{"nom": "Outside", "pop": 4})),
		"far-points": dataset(crs.WGS84(),
			feature(orb.Point{50, 50}, geojson.Properties{"nom": "Outside"})),
		"lines": dataset(crs.WGS84(),
			feature(orb.LineString{{0, 0}, {1, 1}}, nil)),
		"no-crs": dataset(nil, feature(square, nil)),
		"mercator-zone": dataset(crs.EPSG(3857),
			feature(project.Polygon(square.Clone(), project.WGS84.ToMercator), nil)),
		"broken": func() (*geodata.Dataset, error) {
			panic("decoder exploded")
		},
	}
}

func newPipeline(t *testing.T) (*Pipeline, *store.Persister, *store.Workspace) {
	t.Helper()
	ws, err := store.Open(filepath.Join(t.TempDir(), "work"))
	require.NoError(t, err)
	p := store.NewPersister(ws, nil)
	return New(fixtures(), p, Options{Tolerance: geodata.DefaultTolerance}), p, ws
}

func local(loc string) source.Descriptor {
	return source.Descriptor{Kind: source.Local, Location: loc}
}

func TestVerifyZone(t *testing.T) {
	pl, persist, _ := newPipeline(t)

	out, err := pl.Verify(context.Background(), Request{Couple: 1, Role: geodata.Zone, Source: local("zone")})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Features)
	assert.Equal(t, "data/couple1_zone.fgb", out.Artifact.RelPath)

	ds, err := persist.Load(1, geodata.Zone)
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())
	assert.Empty(t, ds.Fields(), "zone artifacts carry no attributes")
	assert.True(t, ds.CRS.IsWGS84())
}

func TestVerifyPointsBeforeZone(t *testing.T) {
	pl, persist, ws := newPipeline(t)

	_, err := pl.Verify(context.Background(), Request{Couple: 1, Role: geodata.Points, Source: local("points"), Field: "nom"})
	assert.ErrorIs(t, err, failure.ErrZonePrerequisiteMissing)
	assert.False(t, persist.Exists(1, geodata.Points))

	entries, err := os.ReadDir(ws.DataDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVerifyPointsClipsAndReduces(t *testing.T) {
	pl, persist, _ := newPipeline(t)
	ctx := context.Background()

	_, err := pl.Verify(ctx, Request{Couple: 1, Role: geodata.Zone, Source: local("zone")})
	require.NoError(t, err)

	out, err := pl.Verify(ctx, Request{Couple: 1, Role: geodata.Points, Source: local("points"), Field: "nom"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Features)

	ds, err := persist.Load(1, geodata.Points)
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, []string{"name"}, ds.Fields())
	f := ds.Features.Features[0]
	assert.Equal(t, orb.Point{5, 5}, f.Geometry)
	assert.Equal(t, "Inside", f.Properties["name"])
}

func TestVerifyPointsFailures(t *testing.T) {
	pl, persist, _ := newPipeline(t)
	ctx := context.Background()
	_, err := pl.Verify(ctx, Request{Couple: 1, Role: geodata.Zone, Source: local("zone")})
	require.NoError(t, err)

	_, err = pl.Verify(ctx, Request{Couple: 1, Role: geodata.Points, Source: local("points")})
	assert.ErrorIs(t, err, failure.ErrNoFieldSelected)

	_, err = pl.Verify(ctx, Request{Couple: 1, Role: geodata.Points, Source: local("points"), Field: "missing"})
	assert.ErrorIs(t, err, failure.ErrNoFieldSelected)
	assert.Contains(t, err.Error(), "nom")

	_, err = pl.Verify(ctx, Request{Couple: 1, Role: geodata.Points, Source: local("far-points"), Field: "nom"})
	assert.ErrorIs(t, err, failure.ErrEmptyDataset)

	assert.False(t, persist.Exists(1, geodata.Points))
}

func TestVerifyInvalidZone(t *testing.T) {
	pl, _, ws := newPipeline(t)
	require.NoError(t, os.WriteFile(ws.ArtifactPath(2, geodata.Zone), []byte("not a flatgeobuf"), 0o644))

	_, err := pl.Verify(context.Background(), Request{Couple: 2, Role: geodata.Points, Source: local("points"), Field: "nom"})
	assert.ErrorIs(t, err, failure.ErrInvalidZone)
}

func TestVerifyValidationFailures(t *testing.T) {
	pl, persist, _ := newPipeline(t)
	ctx := context.Background()

	_, err := pl.Verify(ctx, Request{Couple: 1, Role: geodata.Zone, Source: local("lines")})
	assert.ErrorIs(t, err, failure.ErrGeometryTypeMismatch)
	assert.Contains(t, err.Error(), "LineString")

	_, err = pl.Verify(ctx, Request{Couple: 1, Role: geodata.Zone, Source: local("no-crs")})
	assert.ErrorIs(t, err, failure.ErrMissingCRS)

	assert.False(t, persist.Exists(1, geodata.Zone))
}

func TestVerifyReprojects(t *testing.T) {
	pl, persist, _ := newPipeline(t)

	_, err := pl.Verify(context.Background(), Request{Couple: 1, Role: geodata.Zone, Source: local("mercator-zone")})
	require.NoError(t, err)

	ds, err := persist.Load(1, geodata.Zone)
	require.NoError(t, err)
	b := ds.Features.Features[0].Geometry.Bound()
	assert.InDelta(t, 0, b.Min[0], 1e-6)
	assert.InDelta(t, 10, b.Max[1], 1e-6)
}

func TestVerifyRecoversPanics(t *testing.T) {
	pl, _, _ := newPipeline(t)

	_, err := pl.Verify(context.Background(), Request{Couple: 1, Role: geodata.Zone, Source: local("broken")})
	assert.ErrorIs(t, err, failure.ErrAcquisitionFailed)
	assert.Contains(t, err.Error(), "decoder exploded")
}

func TestVerifyRejectsBadRequests(t *testing.T) {
	pl, _, _ := newPipeline(t)
	ctx := context.Background()

	_, err := pl.Verify(ctx, Request{Couple: 0, Role: geodata.Zone, Source: local("zone")})
	assert.Error(t, err)

	_, err = pl.Verify(ctx, Request{Couple: 1, Role: "lake", Source: local("zone")})
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	pl, _, _ := newPipeline(t)
	ctx := context.Background()

	res := pl.Run(ctx, Request{Couple: 1, Role: geodata.Zone, Source: local("zone")})
	assert.True(t, res.Success)
	assert.Equal(t, "data/couple1_zone.fgb", res.Path)
	assert.Equal(t, 1, res.Features)
	assert.Greater(t, res.Size, int64(0))

	cases := []struct {
		loc    string
		role   geodata.Role
		prefix string
	}{
		{"missing", geodata.Zone, "acquisition failed: "},
		{"lines", geodata.Zone, "validation failed: "},
	}
	for _, c := range cases {
		res := pl.Run(ctx, Request{Couple: 1, Role: c.role, Source: local(c.loc)})
		assert.False(t, res.Success)
		assert.True(t, strings.HasPrefix(res.Message, c.prefix), res.Message)
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "plain", Message(errors.New("plain")))
	assert.Equal(t, "persistence failed: write failed: disk full",
		Message(failure.New(failure.ErrWriteFailed, "disk full")))
}
