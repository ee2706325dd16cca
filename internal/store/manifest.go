package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/tingold/geocouple/internal/failure"
	"github.com/tingold/geocouple/internal/geodata"
	"github.com/tingold/geocouple/internal/logger"
)

const coupleKeyPrefix = "Couple "

// Entry is the manifest record of one verified role.
type Entry struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// CoupleEntry holds the verified roles of one couple.
type CoupleEntry struct {
	Zone   *Entry `json:"Zone,omitempty"`
	Points *Entry `json:"Points,omitempty"`
}

func (c CoupleEntry) get(role geodata.Role) *Entry {
	switch role {
	case geodata.Zone:
		return c.Zone
	case geodata.Points:
		return c.Points
	}
	return nil
}

func (c *CoupleEntry) set(role geodata.Role, e *Entry) {
	switch role {
	case geodata.Zone:
		c.Zone = e
	case geodata.Points:
		c.Points = e
	}
}

func (c CoupleEntry) empty() bool { return c.Zone == nil && c.Points == nil }

// Manifest maps couple display numbers to their verified roles. It
// serializes as {"Couple N": {"Zone": {...}, "Points": {...}}} in
// ascending couple order.
type Manifest struct {
	couples map[int]CoupleEntry
}

func NewManifest() *Manifest {
	return &Manifest{couples: make(map[int]CoupleEntry)}
}

// Set records the entry of (couple, role).
func (m *Manifest) Set(couple int, role geodata.Role, e Entry) {
	c := m.couples[couple]
	c.set(role, &e)
	m.couples[couple] = c
}

// Get returns the entry of (couple, role).
func (m *Manifest) Get(couple int, role geodata.Role) (Entry, bool) {
	e := m.couples[couple].get(role)
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}

// Remove drops the entry of (couple, role) and the couple once it has no
// role left. It reports whether anything was removed.
func (m *Manifest) Remove(couple int, role geodata.Role) bool {
	c, ok := m.couples[couple]
	if !ok || c.get(role) == nil {
		return false
	}
	c.set(role, nil)
	if c.empty() {
		delete(m.couples, couple)
	} else {
		m.couples[couple] = c
	}
	return true
}

// RemoveCouple drops a couple entirely.
func (m *Manifest) RemoveCouple(couple int) bool {
	if _, ok := m.couples[couple]; !ok {
		return false
	}
	delete(m.couples, couple)
	return true
}

// Couple returns the entry of a couple.
func (m *Manifest) Couple(couple int) (CoupleEntry, bool) {
	c, ok := m.couples[couple]
	return c, ok
}

// Numbers returns the couple numbers in ascending order.
func (m *Manifest) Numbers() []int {
	nums := make([]int, 0, len(m.couples))
	for n := range m.couples {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

func (m *Manifest) Len() int { return len(m.couples) }

func (m *Manifest) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i, n := range m.Numbers() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(coupleKeyPrefix + strconv.Itoa(n)); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := enc.Encode(m.couples[n]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts role keys in any case. Keys that are not
// "Couple N" are ignored.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.couples = make(map[int]CoupleEntry, len(raw))
	for key, roles := range raw {
		n, err := strconv.Atoi(strings.TrimPrefix(key, coupleKeyPrefix))
		if !strings.HasPrefix(key, coupleKeyPrefix) || err != nil || n < 1 {
			continue
		}
		for name, e := range roles {
			role, err := geodata.ParseRole(name)
			if err != nil {
				continue
			}
			m.Set(n, role, e)
		}
	}
	return nil
}

// ManifestStore reads and rewrites the manifest file. Every mutation
// reads the file again first.
type ManifestStore struct {
	ws      *Workspace
	persist *Persister
	log     *slog.Logger
}

func NewManifestStore(ws *Workspace, p *Persister, l *slog.Logger) *ManifestStore {
	return &ManifestStore{ws: ws, persist: p, log: logger.Or(l)}
}

// Read loads the manifest. A missing file is an empty manifest; a corrupt
// one is an empty manifest plus an ErrManifestIO error.
func (s *ManifestStore) Read() (*Manifest, error) {
	data, err := os.ReadFile(s.ws.ManifestPath())
	if errors.Is(err, fs.ErrNotExist) {
		return NewManifest(), nil
	}
	if err != nil {
		return NewManifest(), failure.Wrap(failure.ErrManifestIO, err, "read %s", s.ws.ManifestPath())
	}

	m := NewManifest()
	if err := json.Unmarshal(data, m); err != nil {
		return NewManifest(), failure.Wrap(failure.ErrManifestIO, err, "parse %s", s.ws.ManifestPath())
	}
	return m, nil
}

// Write replaces the manifest file atomically.
func (s *ManifestStore) Write(m *Manifest) error {
	if err := os.MkdirAll(s.ws.DataDir(), 0o755); err != nil {
		return failure.Wrap(failure.ErrManifestIO, err, "create %s", s.ws.DataDir())
	}
	_, err := writeAtomic(s.ws.ManifestPath(), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "    ")
		return enc.Encode(m)
	})
	if err != nil {
		return failure.Wrap(failure.ErrManifestIO, err, "write %s", s.ws.ManifestPath())
	}
	s.log.Debug("manifest_written", "couples", m.Len())
	return nil
}

// readTolerant reads the manifest for a mutation, treating a corrupt file
// as empty.
func (s *ManifestStore) readTolerant() (*Manifest, bool) {
	m, err := s.Read()
	if err != nil {
		s.log.Warn("manifest_unreadable", "path", s.ws.ManifestPath(), "error", err)
		return m, false
	}
	return m, true
}

// RemoveRole removes the (couple, role) sub-entry, and the couple when it
// becomes empty, then deletes the role's artifact.
func (s *ManifestStore) RemoveRole(couple int, role geodata.Role) error {
	if m, ok := s.readTolerant(); ok && m.Remove(couple, role) {
		if err := s.Write(m); err != nil {
			return err
		}
	}
	return s.persist.Remove(couple, role)
}

// RemoveCouple removes the couple entry and both artifacts.
func (s *ManifestStore) RemoveCouple(couple int) error {
	if m, ok := s.readTolerant(); ok && m.RemoveCouple(couple) {
		if err := s.Write(m); err != nil {
			return err
		}
	}
	var errs []error
	for _, role := range geodata.Roles {
		if err := s.persist.Remove(couple, role); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Renumber shifts every couple numbered above removed down by one and
// points their sources at the renumbered artifact paths.
func (s *ManifestStore) Renumber(removed int) error {
	m, ok := s.readTolerant()
	if !ok {
		return nil
	}

	changed := false
	next := NewManifest()
	for _, n := range m.Numbers() {
		target := n
		if n > removed {
			target = n - 1
			changed = true
		}
		if n == removed {
			changed = true
			continue
		}
		c := m.couples[n]
		for _, role := range geodata.Roles {
			e := c.get(role)
			if e == nil {
				continue
			}
			entry := *e
			if target != n {
				entry.Source = s.ws.ArtifactRelPath(target, role)
			}
			next.Set(target, role, entry)
		}
	}
	if !changed {
		return nil
	}
	return s.Write(next)
}
