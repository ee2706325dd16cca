package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const zoneJSON = `{"type":"FeatureCollection","features":[
  {"type":"Feature","properties":{"nom":"Centre"},
   "geometry":{"type":"Polygon","coordinates":[[[0,0],[0,10],[10,10],[10,0],[0,0]]]}}]}`

const pointsJSON = `{"type":"FeatureCollection","features":[
  {"type":"Feature","properties":{"nom":"Mairie","pop":12},"geometry":{"type":"Point","coordinates":[5,5]}},
  {"type":"Feature","properties":{"nom":"Port","pop":3},"geometry":{"type":"Point","coordinates":[40,40]}}]}`

type fixture struct {
	workdir string
	zone    string
	points  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	f := &fixture{
		workdir: filepath.Join(dir, "work"),
		zone:    filepath.Join(dir, "zone.geojson"),
		points:  filepath.Join(dir, "points.geojson"),
	}
	require.NoError(t, os.WriteFile(f.zone, []byte(zoneJSON), 0o644))
	require.NoError(t, os.WriteFile(f.points, []byte(pointsJSON), 0o644))
	return f
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--workdir", f.workdir, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String() + errOut.String(), err
}

func (f *fixture) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := f.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func TestFullSession(t *testing.T) {
	f := newFixture(t)

	out := f.mustRun(t, "couple", "list")
	assert.Contains(t, out, "No couples yet")

	out = f.mustRun(t, "couple", "add")
	assert.Contains(t, out, "Couple 1 added")

	f.mustRun(t, "role", "set", "1", "zone", "--name", "Centre-ville", "--source", f.zone)
	out = f.mustRun(t, "role", "verify", "1", "zone")
	assert.Contains(t, out, "couple1_zone.fgb")

	f.mustRun(t, "role", "set", "1", "points", "--name", "Bâtiments", "--source", f.points)
	out = f.mustRun(t, "role", "verify", "1", "points", "--field", "nom")
	assert.Contains(t, out, "couple1_points.fgb")

	out = f.mustRun(t, "couple", "list")
	assert.Contains(t, out, "Centre-ville (verified)")
	assert.Contains(t, out, "Bâtiments (verified)")

	out = f.mustRun(t, "export")
	assert.Contains(t, out, "1 couples")
	assert.NotContains(t, out, "warning")

	raw, err := os.ReadFile(filepath.Join(f.workdir, "data", "report.json"))
	require.NoError(t, err)
	var doc map[string]map[string]map[string]string
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, map[string]string{"name": "Bâtiments", "source": "data/couple1_points.fgb"}, doc["Couple 1"]["Points"])
	assert.Equal(t, "data/couple1_zone.fgb", doc["Couple 1"]["Zone"]["source"])
}

func TestVerifyPointsWithoutZone(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "couple", "add")
	f.mustRun(t, "role", "set", "1", "points", "--source", f.points, "--field", "nom")

	out, err := f.run(t, "role", "verify", "1", "points")
	assert.ErrorIs(t, err, errVerifyFailed)
	assert.Contains(t, out, "failed: ")
	_, statErr := os.Stat(filepath.Join(f.workdir, "data", "couple1_points.fgb"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExportWarnsWhenIncomplete(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "couple", "add")
	f.mustRun(t, "role", "set", "1", "zone", "--source", f.zone)
	f.mustRun(t, "role", "verify", "1", "zone")

	out := f.mustRun(t, "export")
	assert.Contains(t, out, "warning: couple 1 is not fully verified")
	assert.FileExists(t, filepath.Join(f.workdir, "data", "report.json"))
}

func TestRemoveCoupleRenumbers(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 2; i++ {
		f.mustRun(t, "couple", "add")
	}
	f.mustRun(t, "role", "set", "2", "zone", "--source", f.zone)
	f.mustRun(t, "role", "verify", "2", "zone")

	out := f.mustRun(t, "couple", "remove", "1")
	assert.Contains(t, out, "1 left")
	assert.FileExists(t, filepath.Join(f.workdir, "data", "couple1_zone.fgb"))
	assert.NoFileExists(t, filepath.Join(f.workdir, "data", "couple2_zone.fgb"))

	_, err := f.run(t, "couple", "remove", "4")
	assert.Error(t, err)
	_, err = f.run(t, "couple", "remove", "zero")
	assert.Error(t, err)
}

func TestRoleClear(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "couple", "add")
	f.mustRun(t, "role", "set", "1", "zone", "--source", f.zone)
	f.mustRun(t, "role", "verify", "1", "zone")

	f.mustRun(t, "role", "clear", "1", "zone")
	assert.NoFileExists(t, filepath.Join(f.workdir, "data", "couple1_zone.fgb"))
	out := f.mustRun(t, "couple", "list")
	assert.NotContains(t, out, "verified")
}

func TestRoleArgs(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "couple", "add")

	_, err := f.run(t, "role", "set", "1", "lake", "--source", f.zone)
	assert.Error(t, err)
	_, err = f.run(t, "role", "set", "1", "zone", "--kind", "ftp", "--source", f.zone)
	assert.Error(t, err)
	_, err = f.run(t, "role", "set", "1", "zone")
	assert.Error(t, err, "--source is required")
	_, err = f.run(t, "role", "verify", "1", "zone")
	assert.Error(t, err, "no source set")
}

func TestInspect(t *testing.T) {
	f := newFixture(t)
	out := f.mustRun(t, "inspect", "--source", f.points)
	assert.Contains(t, out, "Features: 2")
	assert.Contains(t, out, "Point")
	assert.Contains(t, out, "Roles:    points")
	assert.Contains(t, out, "  nom\n")
	assert.Contains(t, out, "  pop\n")

	_, err := f.run(t, "inspect", "--source", filepath.Join(t.TempDir(), "nope.geojson"))
	assert.Error(t, err)
}

func TestClean(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "couple", "add")
	assert.DirExists(t, f.workdir)

	f.mustRun(t, "clean")
	assert.NoDirExists(t, f.workdir)
}

func TestConfigShow(t *testing.T) {
	f := newFixture(t)
	cfg := filepath.Join(t.TempDir(), "geocouple.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("pipeline:\n  clip_policy: within\n"), 0o644))

	out := f.mustRun(t, "--config", cfg, "config", "show")
	assert.Contains(t, out, "# "+cfg)
	assert.Contains(t, out, "clip_policy: within")
	assert.Contains(t, out, "workdir: "+f.workdir)

	t.Setenv("GEOCOUPLE_PIPELINE_CLIP_POLICY", "sideways")
	_, err := f.run(t, "config", "show")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	f := newFixture(t)
	out := f.mustRun(t, "version")
	assert.Contains(t, out, "geocouple v")
}
