package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tingold/geocouple/internal/crs"
	"github.com/tingold/geocouple/internal/failure"
	"github.com/tingold/geocouple/internal/geodata"
)

func openWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := Open(filepath.Join(t.TempDir(), "work"))
	require.NoError(t, err)
	return ws
}

func pointsDataset() *geodata.Dataset {
	fc := geojson.NewFeatureCollection()
	for i, p := range []orb.Point{{1, 1}, {2, 2}} {
		f := geojson.NewFeature(p)
		f.Properties["name"] = []string{"a", "b"}[i]
		fc.Append(f)
	}
	return geodata.New(fc, crs.WGS84())
}

func TestWorkspace(t *testing.T) {
	ws := openWorkspace(t)

	info, err := os.Stat(ws.DataDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.Equal(t, filepath.Join(ws.DataDir(), "couple3_points.fgb"), ws.ArtifactPath(3, geodata.Points))
	assert.Equal(t, "data/couple3_points.fgb", ws.ArtifactRelPath(3, geodata.Points))
	assert.Equal(t, filepath.Join(ws.DataDir(), "report.json"), ws.ManifestPath())
	assert.False(t, strings.HasPrefix(ws.TempDir(), ws.DataDir()))

	require.NoError(t, ws.Teardown())
	_, err = os.Stat(ws.Root())
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	_, err = Open("")
	assert.Error(t, err)
}

func TestPersistAndLoad(t *testing.T) {
	ws := openWorkspace(t)
	p := NewPersister(ws, nil)

	a, err := p.Persist(pointsDataset(), 1, geodata.Points)
	require.NoError(t, err)
	assert.Equal(t, ws.ArtifactPath(1, geodata.Points), a.Path)
	assert.Equal(t, "data/couple1_points.fgb", a.RelPath)
	assert.Greater(t, a.Size, int64(0))
	assert.True(t, p.Exists(1, geodata.Points))

	ds, err := p.Load(1, geodata.Points)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
	assert.True(t, ds.CRS.IsWGS84())
	assert.Equal(t, []string{"name"}, ds.Fields())

	// No temp files left next to the artifact.
	entries, err := os.ReadDir(ws.DataDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPersistOverwrites(t *testing.T) {
	ws := openWorkspace(t)
	p := NewPersister(ws, nil)

	_, err := p.Persist(pointsDataset(), 1, geodata.Points)
	require.NoError(t, err)

	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{9, 9}))
	_, err = p.Persist(geodata.New(fc, crs.WGS84()), 1, geodata.Points)
	require.NoError(t, err)

	ds, err := p.Load(1, geodata.Points)
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())
}

func TestPersistRejects(t *testing.T) {
	ws := openWorkspace(t)
	p := NewPersister(ws, nil)

	_, err := p.Persist(geodata.New(nil, crs.WGS84()), 1, geodata.Zone)
	assert.ErrorIs(t, err, failure.ErrWriteFailed)

	ds := pointsDataset()
	ds.CRS = crs.EPSG(3857)
	_, err = p.Persist(ds, 1, geodata.Points)
	assert.ErrorIs(t, err, failure.ErrWriteFailed)
	assert.Equal(t, failure.Persistence, failure.ClassOf(err))
	assert.False(t, p.Exists(1, geodata.Points))
}

func TestPersistWriteFailure(t *testing.T) {
	ws := openWorkspace(t)
	p := NewPersister(ws, nil)

	// A directory squatting on the artifact path makes the rename fail.
	require.NoError(t, os.MkdirAll(filepath.Join(ws.ArtifactPath(1, geodata.Points), "x"), 0o755))
	_, err := p.Persist(pointsDataset(), 1, geodata.Points)
	assert.ErrorIs(t, err, failure.ErrWriteFailed)
}

func TestLoadMissing(t *testing.T) {
	p := NewPersister(openWorkspace(t), nil)
	_, err := p.Load(4, geodata.Zone)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.False(t, p.Exists(4, geodata.Zone))
}

func TestRemoveAndRename(t *testing.T) {
	ws := openWorkspace(t)
	p := NewPersister(ws, nil)

	_, err := p.Persist(pointsDataset(), 2, geodata.Points)
	require.NoError(t, err)

	require.NoError(t, p.Rename(2, 1, geodata.Points))
	assert.False(t, p.Exists(2, geodata.Points))
	assert.True(t, p.Exists(1, geodata.Points))
	assert.NoError(t, p.Rename(7, 6, geodata.Points))

	require.NoError(t, p.Remove(1, geodata.Points))
	assert.False(t, p.Exists(1, geodata.Points))
	assert.NoError(t, p.Remove(1, geodata.Points))
}

func sampleManifest() *Manifest {
	m := NewManifest()
	m.Set(1, geodata.Zone, Entry{Name: "Communes", Source: "data/couple1_zone.fgb"})
	m.Set(1, geodata.Points, Entry{Name: "Écoles <primaires>", Source: "data/couple1_points.fgb"})
	m.Set(2, geodata.Zone, Entry{Name: "Parcs", Source: "data/couple2_zone.fgb"})
	m.Set(10, geodata.Points, Entry{Name: "Arbres", Source: "data/couple10_points.fgb"})
	return m
}

func newManifestStore(t *testing.T) (*ManifestStore, *Persister, *Workspace) {
	t.Helper()
	ws := openWorkspace(t)
	p := NewPersister(ws, nil)
	return NewManifestStore(ws, p, nil), p, ws
}

func TestManifestRoundTrip(t *testing.T) {
	s, _, ws := newManifestStore(t)
	require.NoError(t, s.Write(sampleManifest()))

	m, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 10}, m.Numbers())
	e, ok := m.Get(1, geodata.Points)
	require.True(t, ok)
	assert.Equal(t, Entry{Name: "Écoles <primaires>", Source: "data/couple1_points.fgb"}, e)
	_, ok = m.Get(2, geodata.Points)
	assert.False(t, ok)

	raw, err := os.ReadFile(ws.ManifestPath())
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "\n    \"Couple 1\": {\n        \"Zone\": {")
	assert.Contains(t, text, "Écoles <primaires>")
	assert.Less(t, strings.Index(text, "Couple 2"), strings.Index(text, "Couple 10"))
	assert.Less(t, strings.Index(text, `"Zone"`), strings.Index(text, `"Points"`))
}

func TestManifestReadTolerance(t *testing.T) {
	s, _, ws := newManifestStore(t)

	m, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())

	require.NoError(t, os.WriteFile(ws.ManifestPath(), []byte("{not json"), 0o644))
	m, err = s.Read()
	assert.ErrorIs(t, err, failure.ErrManifestIO)
	assert.Equal(t, 0, m.Len())

	require.NoError(t, os.WriteFile(ws.ManifestPath(),
		[]byte(`{"Couple 1": {"zone": {"name": "z", "source": "data/couple1_zone.fgb"}, "Other": {}}, "Title": {}}`), 0o644))
	m, err = s.Read()
	require.NoError(t, err)
	assert.Equal(t, []int{1}, m.Numbers())
	_, ok := m.Get(1, geodata.Zone)
	assert.True(t, ok)
}

func TestRemoveRole(t *testing.T) {
	s, p, ws := newManifestStore(t)
	require.NoError(t, s.Write(sampleManifest()))
	_, err := p.Persist(pointsDataset(), 1, geodata.Points)
	require.NoError(t, err)

	require.NoError(t, s.RemoveRole(1, geodata.Points))
	m, err := s.Read()
	require.NoError(t, err)
	_, ok := m.Get(1, geodata.Points)
	assert.False(t, ok)
	_, ok = m.Get(1, geodata.Zone)
	assert.True(t, ok)
	assert.False(t, p.Exists(1, geodata.Points))

	// Removing the last role drops the couple.
	require.NoError(t, s.RemoveRole(2, geodata.Zone))
	m, err = s.Read()
	require.NoError(t, err)
	_, ok = m.Couple(2)
	assert.False(t, ok)

	// A corrupt manifest is left alone but the artifact still goes.
	_, err = p.Persist(pointsDataset(), 3, geodata.Points)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(ws.ManifestPath(), []byte("garbage"), 0o644))
	require.NoError(t, s.RemoveRole(3, geodata.Points))
	assert.False(t, p.Exists(3, geodata.Points))
	raw, err := os.ReadFile(ws.ManifestPath())
	require.NoError(t, err)
	assert.Equal(t, "garbage", string(raw))
}

func TestRemoveCouple(t *testing.T) {
	s, p, _ := newManifestStore(t)
	require.NoError(t, s.Write(sampleManifest()))
	for _, role := range geodata.Roles {
		ds := pointsDataset()
		_, err := p.Persist(ds, 1, role)
		require.NoError(t, err)
	}

	require.NoError(t, s.RemoveCouple(1))
	m, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 10}, m.Numbers())
	assert.False(t, p.Exists(1, geodata.Zone))
	assert.False(t, p.Exists(1, geodata.Points))

	// Missing manifest is a no-op.
	s2, _, _ := newManifestStore(t)
	assert.NoError(t, s2.RemoveCouple(1))
}

func TestRenumber(t *testing.T) {
	s, _, _ := newManifestStore(t)
	m := NewManifest()
	m.Set(1, geodata.Zone, Entry{Name: "one", Source: "data/couple1_zone.fgb"})
	m.Set(3, geodata.Zone, Entry{Name: "three", Source: "data/couple3_zone.fgb"})
	m.Set(3, geodata.Points, Entry{Name: "three-p", Source: "data/couple3_points.fgb"})
	require.NoError(t, s.Write(m))

	require.NoError(t, s.Renumber(2))
	got, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got.Numbers())
	e, ok := got.Get(2, geodata.Points)
	require.True(t, ok)
	assert.Equal(t, Entry{Name: "three-p", Source: "data/couple2_points.fgb"}, e)
	e, _ = got.Get(1, geodata.Zone)
	assert.Equal(t, "data/couple1_zone.fgb", e.Source)
}
