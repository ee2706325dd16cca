// Package session tracks the couples of an authoring session, their role
// inputs and verification state, and keeps the persisted artifacts and
// manifest consistent with that state.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/tingold/geocouple/internal/geodata"
	"github.com/tingold/geocouple/internal/logger"
	"github.com/tingold/geocouple/internal/pipeline"
	"github.com/tingold/geocouple/internal/source"
	"github.com/tingold/geocouple/internal/store"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoSuchCouple = errors.New("session: no such couple")
	ErrNoSource     = errors.New("session: role has no source")
)

// Runner verifies one (couple, role).
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.Result
}

// Input is what the user supplies for a role.
type Input struct {
	Name   string            `yaml:"name"`
	Source source.Descriptor `yaml:"source"`
	Field  string            `yaml:"field,omitempty"`
}

func (in Input) equal(other Input) bool {
	return in.Name == other.Name &&
		in.Field == other.Field &&
		in.Source.Kind == other.Source.Kind &&
		in.Source.Location == other.Source.Location &&
		maps.Equal(in.Source.Params, other.Source.Params)
}

// RoleEntry is a role's input and whether its artifact is current.
type RoleEntry struct {
	Input    `yaml:",inline"`
	Verified bool `yaml:"verified"`
}

// Couple pairs a zone with the points clipped to it. ID is stable; the
// display number is the couple's position in the session.
type Couple struct {
	ID     uuid.UUID `yaml:"id"`
	Zone   RoleEntry `yaml:"zone"`
	Points RoleEntry `yaml:"points"`
}

// Role returns the entry of role.
func (c *Couple) Role(role geodata.Role) *RoleEntry {
	switch role {
	case geodata.Zone:
		return &c.Zone
	case geodata.Points:
		return &c.Points
	}
	return nil
}

// Complete reports whether both roles are verified.
func (c *Couple) Complete() bool { return c.Zone.Verified && c.Points.Verified }

type document struct {
	Couples []*Couple `yaml:"couples"`
}

// Session is the couple registry of one working directory.
type Session struct {
	ws       *store.Workspace
	runner   Runner
	persist  *store.Persister
	manifest *store.ManifestStore
	log      *slog.Logger

	couples []*Couple
}

// Open loads the session file of ws, if any.
func Open(ws *store.Workspace, runner Runner, persist *store.Persister, manifest *store.ManifestStore, l *slog.Logger) (*Session, error) {
	s := &Session{
		ws:       ws,
		runner:   runner,
		persist:  persist,
		manifest: manifest,
		log:      logger.Or(l),
	}

	data, err := os.ReadFile(ws.SessionPath())
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", ws.SessionPath(), err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("session: parse %s: %w", ws.SessionPath(), err)
	}
	for _, c := range doc.Couples {
		if c == nil {
			continue
		}
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		s.couples = append(s.couples, c)
	}
	return s, nil
}

// Save writes the session file.
func (s *Session) Save() error {
	data, err := yaml.Marshal(document{Couples: s.couples})
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	p := s.ws.SessionPath()
	tmp := p + ".tmp"
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("session: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("session: rename %s: %w", tmp, err)
	}
	return nil
}

// Couples returns the couples in display order.
func (s *Session) Couples() []*Couple {
	out := make([]*Couple, len(s.couples))
	copy(out, s.couples)
	return out
}

func (s *Session) Len() int { return len(s.couples) }

// AddCouple appends an empty couple and returns it with its display
// number.
func (s *Session) AddCouple() (*Couple, int, error) {
	c := &Couple{ID: uuid.New()}
	s.couples = append(s.couples, c)
	if err := s.Save(); err != nil {
		return nil, 0, err
	}
	n := len(s.couples)
	s.log.Info("couple_added", "couple", n, "id", c.ID)
	return c, n, nil
}

// Couple returns the couple with display number n.
func (s *Session) Couple(n int) (*Couple, error) {
	if n < 1 || n > len(s.couples) {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrNoSuchCouple, n, len(s.couples))
	}
	return s.couples[n-1], nil
}

// DisplayNumber returns the current display number of the couple id.
func (s *Session) DisplayNumber(id uuid.UUID) (int, bool) {
	for i, c := range s.couples {
		if c.ID == id {
			return i + 1, true
		}
	}
	return 0, false
}

// RemoveCouple deletes couple n with its artifacts and manifest entry.
// Later couples move down one number, and their artifacts and manifest
// entries follow.
func (s *Session) RemoveCouple(n int) error {
	if _, err := s.Couple(n); err != nil {
		return err
	}
	if err := s.manifest.RemoveCouple(n); err != nil {
		return err
	}
	for m := n + 1; m <= len(s.couples); m++ {
		for _, role := range geodata.Roles {
			if err := s.persist.Rename(m, m-1, role); err != nil {
				return err
			}
		}
	}
	if err := s.manifest.Renumber(n); err != nil {
		return err
	}

	s.couples = append(s.couples[:n-1], s.couples[n:]...)
	s.log.Info("couple_removed", "couple", n, "remaining", len(s.couples))
	return s.Save()
}

// invalidate drops the artifact and manifest sub-entry of (n, role). A
// zone change also invalidates the points clipped against it.
func (s *Session) invalidate(n int, role geodata.Role) error {
	c := s.couples[n-1]
	roles := []geodata.Role{role}
	if role == geodata.Zone {
		roles = append(roles, geodata.Points)
	}
	for _, r := range roles {
		e := c.Role(r)
		if !e.Verified && !s.persist.Exists(n, r) {
			continue
		}
		if err := s.manifest.RemoveRole(n, r); err != nil {
			return err
		}
		e.Verified = false
		s.log.Info("role_invalidated", "couple", n, "role", r)
	}
	return nil
}

// SetRole replaces the input of (n, role). A changed input invalidates
// the role first.
func (s *Session) SetRole(n int, role geodata.Role, in Input) error {
	c, err := s.Couple(n)
	if err != nil {
		return err
	}
	e := c.Role(role)
	if e == nil {
		return fmt.Errorf("session: unknown role %q", role)
	}
	if e.Input.equal(in) {
		return nil
	}
	if err := s.invalidate(n, role); err != nil {
		return err
	}
	e.Input = in
	return s.Save()
}

// ClearRole invalidates (n, role) and forgets its input.
func (s *Session) ClearRole(n int, role geodata.Role) error {
	return s.SetRole(n, role, Input{})
}

// Verify runs the pipeline for (n, role). A non-empty field replaces the
// stored one. The role is invalidated before the run and marked verified
// only when the run succeeds.
func (s *Session) Verify(ctx context.Context, n int, role geodata.Role, field string) (pipeline.Result, error) {
	c, err := s.Couple(n)
	if err != nil {
		return pipeline.Result{}, err
	}
	e := c.Role(role)
	if e == nil {
		return pipeline.Result{}, fmt.Errorf("session: unknown role %q", role)
	}
	if e.Source.Location == "" {
		return pipeline.Result{}, fmt.Errorf("%w: couple %d %s", ErrNoSource, n, role)
	}
	if field != "" {
		e.Field = field
	}

	if err := s.invalidate(n, role); err != nil {
		return pipeline.Result{}, err
	}

	res := s.runner.Run(ctx, pipeline.Request{
		Couple: n,
		Role:   role,
		Source: e.Source,
		Field:  e.Field,
	})
	e.Verified = res.Success
	if err := s.Save(); err != nil {
		return res, err
	}
	return res, nil
}

// Manifest builds the manifest of every verified role.
func (s *Session) Manifest() *store.Manifest {
	m := store.NewManifest()
	for i, c := range s.couples {
		n := i + 1
		for _, role := range geodata.Roles {
			e := c.Role(role)
			if !e.Verified {
				continue
			}
			name := e.Name
			if name == "" {
				name = fmt.Sprintf("%s %d", role.Title(), n)
			}
			m.Set(n, role, store.Entry{Name: name, Source: s.ws.ArtifactRelPath(n, role)})
		}
	}
	return m
}

// Export rewrites the manifest file from the verified roles.
func (s *Session) Export() (*store.Manifest, error) {
	m := s.Manifest()
	if err := s.manifest.Write(m); err != nil {
		return nil, err
	}
	s.log.Info("manifest_exported", "couples", m.Len(), "path", s.ws.ManifestPath())
	return m, nil
}

// Complete reports whether there is at least one couple and every couple
// has both roles verified.
func (s *Session) Complete() bool {
	if len(s.couples) == 0 {
		return false
	}
	for _, c := range s.couples {
		if !c.Complete() {
			return false
		}
	}
	return true
}
