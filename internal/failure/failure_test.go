package failure

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesKindAndCause(t *testing.T) {
	err := Wrap(ErrNotFound, fs.ErrNotExist, "local path %q", "/nope.geojson")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.NotErrorIs(t, err, ErrWriteFailed)
	assert.Equal(t, `source not found: local path "/nope.geojson": file does not exist`, err.Error())
}

func TestErrorWithoutCause(t *testing.T) {
	err := New(ErrGeometryTypeMismatch, "found [LineString]")
	assert.Equal(t, "geometry type mismatch: found [LineString]", err.Error())
	assert.Len(t, err.Unwrap(), 1)
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"acquisition", New(ErrAcquisitionFailed, "GET"), Acquisition},
		{"not found", New(ErrNotFound, "x"), Acquisition},
		{"archive", New(ErrArchiveMissingGeometry, "x"), Acquisition},
		{"crs", New(ErrMissingCRS, "x"), Validation},
		{"zone", New(ErrZonePrerequisiteMissing, "x"), Validation},
		{"field", New(ErrNoFieldSelected, "x"), Validation},
		{"write", New(ErrWriteFailed, "x"), Persistence},
		{"manifest", New(ErrManifestIO, "x"), Persistence},
		{"bare sentinel", ErrInvalidZone, Validation},
		{"plain error", errors.New("boom"), Unknown},
		{"nil", nil, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassOf(tt.err))
		})
	}
}

func TestKindOfWrappedError(t *testing.T) {
	inner := New(ErrEmptyDataset, "no features")
	outer := errors.Join(errors.New("context"), inner)
	assert.Equal(t, ErrEmptyDataset, KindOf(outer))
	assert.Nil(t, KindOf(errors.New("plain")))
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "acquisition", Acquisition.String())
	assert.Equal(t, "validation", Validation.String())
	assert.Equal(t, "persistence", Persistence.String())
	assert.Equal(t, "unknown", Unknown.String())
}
