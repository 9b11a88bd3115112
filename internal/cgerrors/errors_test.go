package cgerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIoError_UnwrapsUnderlying(t *testing.T) {
	underlying := errors.New("permission denied")
	err := NewIoError("read", "/src/a.go", underlying)

	assert.ErrorIs(t, err, underlying)
	assert.Contains(t, err.Error(), "/src/a.go")
}

func TestParseError_FormatsLocation(t *testing.T) {
	err := NewParseError(3, "/src/b.go", 12, 4, "func", errors.New("unexpected token"))
	assert.Contains(t, err.Error(), "/src/b.go:12:4")
}

func TestDimensionMismatchError_NotRetriable(t *testing.T) {
	err := NewDimensionMismatchError(1536, 2048)
	assert.False(t, err.Retriable)
	assert.True(t, err.DimensionMismatch)
}

func TestEmbeddingError_RetriableTransient(t *testing.T) {
	err := NewEmbeddingError(true, errors.New("rate limited"))
	assert.True(t, err.Retriable)
	assert.False(t, err.DimensionMismatch)
}

func TestCancellationError_IsMatchesAnyStage(t *testing.T) {
	err := NewCancellationError("parsing")
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestMultiError_FiltersNil(t *testing.T) {
	merr := NewMultiError([]error{nil, errors.New("a"), nil, errors.New("b")})
	assert.Len(t, merr.Errors, 2)
	assert.Contains(t, merr.Error(), "2 errors")
}

func TestMultiError_SingleUnwraps(t *testing.T) {
	only := errors.New("solo")
	merr := NewMultiError([]error{only})
	assert.Equal(t, only.Error(), merr.Error())
}
