// Package store owns the working directory of an authoring session: the
// persisted FlatGeobuf artifacts and the JSON manifest describing them.
package store

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/tingold/geocouple/internal/geodata"
)

const (
	DataDirName  = "data"
	ManifestName = "report.json"
	SessionName  = "session.yaml"
	tmpDirName   = "tmp"
)

// Workspace is the working directory handle passed to every component
// that reads or writes session files.
type Workspace struct {
	root string
}

// Open resolves root and creates its data directory.
func Open(root string) (*Workspace, error) {
	if root == "" {
		return nil, fmt.Errorf("store: empty workspace root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("store: resolve %s: %w", root, err)
	}
	ws := &Workspace{root: abs}
	if err := os.MkdirAll(ws.DataDir(), 0o755); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", ws.DataDir(), err)
	}
	return ws, nil
}

func (w *Workspace) Root() string    { return w.root }
func (w *Workspace) DataDir() string { return filepath.Join(w.root, DataDirName) }

// ArtifactName is the file name of a couple's role artifact.
func ArtifactName(couple int, role geodata.Role) string {
	return fmt.Sprintf("couple%d_%s.fgb", couple, role)
}

func (w *Workspace) ArtifactPath(couple int, role geodata.Role) string {
	return filepath.Join(w.DataDir(), ArtifactName(couple, role))
}

// ArtifactRelPath is the artifact path relative to the root, with forward
// slashes, as written to the manifest.
func (w *Workspace) ArtifactRelPath(couple int, role geodata.Role) string {
	return path.Join(DataDirName, ArtifactName(couple, role))
}

func (w *Workspace) ManifestPath() string { return filepath.Join(w.DataDir(), ManifestName) }
func (w *Workspace) SessionPath() string  { return filepath.Join(w.root, SessionName) }

// TempDir is the parent of acquisition scratch directories. It is never
// inside the data directory.
func (w *Workspace) TempDir() string { return filepath.Join(w.root, tmpDirName) }

// Teardown removes the whole working directory.
func (w *Workspace) Teardown() error {
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("store: teardown %s: %w", w.root, err)
	}
	return nil
}
