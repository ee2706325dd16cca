package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/tingold/geocouple/flatgeobuf"
	"github.com/tingold/geocouple/internal/crs"
	"github.com/tingold/geocouple/internal/failure"
	"github.com/tingold/geocouple/internal/geodata"
	"github.com/tingold/geocouple/internal/logger"
)

// Artifact describes a persisted dataset.
type Artifact struct {
	Path    string
	RelPath string
	Size    int64
}

// Persister writes and reads the per-(couple, role) FlatGeobuf artifacts.
type Persister struct {
	ws  *Workspace
	log *slog.Logger
}

func NewPersister(ws *Workspace, l *slog.Logger) *Persister {
	return &Persister{ws: ws, log: logger.Or(l)}
}

// Persist writes ds as the artifact of (couple, role), replacing any
// previous one. The dataset must already be in WGS84.
func (p *Persister) Persist(ds *geodata.Dataset, couple int, role geodata.Role) (Artifact, error) {
	dst := p.ws.ArtifactPath(couple, role)
	if ds.Len() == 0 {
		return Artifact{}, failure.New(failure.ErrWriteFailed, "%s: no features to write", dst)
	}
	if !ds.CRS.IsWGS84() {
		return Artifact{}, failure.New(failure.ErrWriteFailed, "%s: dataset CRS is %s, not WGS84", dst, ds.CRS)
	}
	if err := os.MkdirAll(p.ws.DataDir(), 0o755); err != nil {
		return Artifact{}, failure.Wrap(failure.ErrWriteFailed, err, "create %s", p.ws.DataDir())
	}

	opts := flatgeobuf.DefaultOptions()
	opts.Name = fmt.Sprintf("couple%d_%s", couple, role)
	size, err := writeAtomic(dst, func(w io.Writer) error {
		return flatgeobuf.WriteFeatures(w, ds.Features, opts)
	})
	if err != nil {
		return Artifact{}, failure.Wrap(failure.ErrWriteFailed, err, "write %s", dst)
	}

	a := Artifact{Path: dst, RelPath: p.ws.ArtifactRelPath(couple, role), Size: size}
	p.log.Info("persist_ok", "couple", couple, "role", role, "path", a.RelPath, "bytes", a.Size, "features", ds.Len())
	return a, nil
}

// Exists reports whether the artifact of (couple, role) is on disk.
func (p *Persister) Exists(couple int, role geodata.Role) bool {
	info, err := os.Stat(p.ws.ArtifactPath(couple, role))
	return err == nil && info.Mode().IsRegular()
}

// Load reads an artifact back. A missing artifact returns an error
// matching fs.ErrNotExist.
func (p *Persister) Load(couple int, role geodata.Role) (*geodata.Dataset, error) {
	r, err := flatgeobuf.NewReader(p.ws.ArtifactPath(couple, role))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	fc, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	c := crs.WGS84()
	if h := r.Header(); h != nil && h.CRS != nil && h.CRS.Code > 0 {
		c = crs.EPSG(h.CRS.Code)
	}
	return geodata.New(fc, c), nil
}

// Remove deletes the artifact of (couple, role). A missing artifact is not
// an error.
func (p *Persister) Remove(couple int, role geodata.Role) error {
	dst := p.ws.ArtifactPath(couple, role)
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return failure.Wrap(failure.ErrWriteFailed, err, "remove %s", dst)
	}
	p.log.Debug("artifact_removed", "couple", couple, "role", role)
	return nil
}

// Rename moves the artifact of (from, role) to (to, role), replacing
// any artifact already there. A missing source is not an error.
func (p *Persister) Rename(from, to int, role geodata.Role) error {
	src, dst := p.ws.ArtifactPath(from, role), p.ws.ArtifactPath(to, role)
	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return failure.Wrap(failure.ErrWriteFailed, err, "rename %s", src)
	}
	p.log.Debug("artifact_renamed", "role", role, "from", from, "to", to)
	return nil
}
