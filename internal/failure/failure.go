// Package failure defines the error taxonomy shared by the ingestion
// pipeline. Every component returns errors built here so the orchestrator
// can tell acquisition, validation and persistence failures apart.
package failure

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrAcquisitionFailed       = errors.New("acquisition failed")
	ErrNotFound                = errors.New("source not found")
	ErrUnsupportedFormat       = errors.New("unsupported format")
	ErrArchiveMissingGeometry  = errors.New("archive has no geometry file")
	ErrMissingCRS              = errors.New("missing coordinate reference system")
	ErrUnsupportedCRS          = errors.New("unsupported coordinate reference system")
	ErrGeometryTypeMismatch    = errors.New("geometry type mismatch")
	ErrEmptyDataset            = errors.New("empty dataset")
	ErrZonePrerequisiteMissing = errors.New("zone prerequisite missing")
	ErrInvalidZone             = errors.New("invalid zone")
	ErrNoFieldSelected         = errors.New("no field selected")
	ErrWriteFailed             = errors.New("write failed")
	ErrManifestIO              = errors.New("manifest i/o")
)

// Class groups kinds into the three families reported to callers.
type Class int

const (
	Unknown Class = iota
	Acquisition
	Validation
	Persistence
)

func (c Class) String() string {
	switch c {
	case Acquisition:
		return "acquisition"
	case Validation:
		return "validation"
	case Persistence:
		return "persistence"
	default:
		return "unknown"
	}
}

var classes = map[error]Class{
	ErrAcquisitionFailed:       Acquisition,
	ErrNotFound:                Acquisition,
	ErrUnsupportedFormat:       Acquisition,
	ErrArchiveMissingGeometry:  Acquisition,
	ErrMissingCRS:              Validation,
	ErrUnsupportedCRS:          Validation,
	ErrGeometryTypeMismatch:    Validation,
	ErrEmptyDataset:            Validation,
	ErrZonePrerequisiteMissing: Validation,
	ErrInvalidZone:             Validation,
	ErrNoFieldSelected:         Validation,
	ErrWriteFailed:             Persistence,
	ErrManifestIO:              Persistence,
}

// Error is a classified failure. Kind is one of the sentinels above, Err
// is the optional underlying cause.
type Error struct {
	Kind   error
	Detail string
	Err    error
}

// New returns an *Error of the given kind without a cause.
func New(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error of the given kind carrying err as its cause.
func Wrap(kind error, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ClassOf reports the class of the first known kind found in err's chain.
func ClassOf(err error) Class {
	if err == nil {
		return Unknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		if c, ok := classes[fe.Kind]; ok {
			return c
		}
	}
	for kind, c := range classes {
		if errors.Is(err, kind) {
			return c
		}
	}
	return Unknown
}

// KindOf returns the sentinel kind of err, or nil when err is not classified.
func KindOf(err error) error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	for kind := range classes {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
