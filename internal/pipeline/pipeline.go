// Package pipeline verifies one (couple, role) input: it acquires the
// dataset, normalizes and checks it, clips points to their zone, reduces
// and simplifies it, and persists the artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/tingold/geocouple/internal/failure"
	"github.com/tingold/geocouple/internal/geodata"
	"github.com/tingold/geocouple/internal/logger"
	"github.com/tingold/geocouple/internal/source"
	"github.com/tingold/geocouple/internal/store"
)

// Acquirer loads a dataset from a source descriptor.
type Acquirer interface {
	Acquire(ctx context.Context, d source.Descriptor) (*geodata.Dataset, error)
}

// Options tune the derivation steps.
type Options struct {
	Tolerance  float64
	ClipPolicy geodata.ClipPolicy
	Logger     *slog.Logger
}

// Request is one verification. Field is required for the points role.
type Request struct {
	Couple int
	Role   geodata.Role
	Source source.Descriptor
	Field  string
}

// Outcome is a successful verification.
type Outcome struct {
	Artifact store.Artifact
	Features int
}

// Result is the outcome of Run as reported to callers.
type Result struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Features int    `json:"features,omitempty"`
}

type Pipeline struct {
	acq     Acquirer
	persist *store.Persister
	opts    Options
	log     *slog.Logger
}

func New(acq Acquirer, p *store.Persister, opts Options) *Pipeline {
	if opts.ClipPolicy == "" {
		opts.ClipPolicy = geodata.Intersects
	}
	return &Pipeline{acq: acq, persist: p, opts: opts, log: logger.Or(opts.Logger)}
}

// Verify runs every step for req and stops at the first failure. Nothing
// is persisted unless all steps succeed.
func (p *Pipeline) Verify(ctx context.Context, req Request) (out *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = failure.New(failure.ErrAcquisitionFailed, "malformed input: %v", r)
		}
	}()

	if req.Couple < 1 {
		return nil, fmt.Errorf("pipeline: invalid couple number %d", req.Couple)
	}
	if _, err := geodata.ParseRole(string(req.Role)); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	var zone *geodata.Dataset
	if req.Role == geodata.Points {
		if zone, err = p.loadZone(req.Couple); err != nil {
			return nil, err
		}
	}

	ds, err := p.acq.Acquire(ctx, req.Source)
	if err != nil {
		return nil, err
	}
	if ds, err = geodata.Normalize(ds); err != nil {
		return nil, err
	}
	if err := geodata.Validate(ds, req.Role); err != nil {
		return nil, err
	}
	if zone != nil {
		if ds, err = geodata.Clip(ds, zone, p.opts.ClipPolicy); err != nil {
			return nil, err
		}
	}
	if ds, err = geodata.Reduce(ds, req.Role, req.Field); err != nil {
		return nil, err
	}
	ds = geodata.Simplify(ds, p.opts.Tolerance)

	a, err := p.persist.Persist(ds, req.Couple, req.Role)
	if err != nil {
		return nil, err
	}
	return &Outcome{Artifact: a, Features: ds.Len()}, nil
}

// loadZone returns the couple's persisted zone, normalized.
func (p *Pipeline) loadZone(couple int) (*geodata.Dataset, error) {
	zone, err := p.persist.Load(couple, geodata.Zone)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, failure.New(failure.ErrZonePrerequisiteMissing,
			"couple %d has no verified zone yet", couple)
	}
	if err != nil {
		return nil, failure.Wrap(failure.ErrInvalidZone, err, "couple %d zone is unreadable", couple)
	}
	if zone.Len() == 0 {
		return nil, failure.New(failure.ErrInvalidZone, "couple %d zone has no features", couple)
	}
	if zone, err = geodata.Normalize(zone); err != nil {
		return nil, failure.Wrap(failure.ErrInvalidZone, err, "couple %d zone", couple)
	}
	return zone, nil
}

// Run is Verify reported as a Result.
func (p *Pipeline) Run(ctx context.Context, req Request) Result {
	start := time.Now()
	out, err := p.Verify(ctx, req)
	if err != nil {
		p.log.Warn("verify_failed",
			"couple", req.Couple,
			"role", req.Role,
			"class", failure.ClassOf(err).String(),
			"error", err,
		)
		return Result{Message: Message(err)}
	}

	p.log.Info("verify_ok",
		"couple", req.Couple,
		"role", req.Role,
		"features", out.Features,
		"bytes", out.Artifact.Size,
		"took", time.Since(start).Round(time.Millisecond),
	)
	return Result{
		Success:  true,
		Message:  fmt.Sprintf("%s of couple %d saved to %s (%d features, %d bytes)", req.Role, req.Couple, out.Artifact.RelPath, out.Features, out.Artifact.Size),
		Path:     out.Artifact.RelPath,
		Size:     out.Artifact.Size,
		Features: out.Features,
	}
}

// Message renders err prefixed with its failure class.
func Message(err error) string {
	if err == nil {
		return ""
	}
	c := failure.ClassOf(err)
	if c == failure.Unknown {
		return err.Error()
	}
	return fmt.Sprintf("%s failed: %v", c, err)
}
