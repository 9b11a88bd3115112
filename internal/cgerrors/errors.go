// Package cgerrors implements the error taxonomy of the indexing
// engine: typed, wrapped errors carrying enough context (file, stage,
// recoverability) for the indexer to decide whether a failure aborts a
// project's reindex, marks one file dirty for retry, or is not an
// error at all (Resolution, Cancellation).
package cgerrors

import (
	"fmt"
	"time"

	"github.com/fenwick-labs/codegraph/internal/types"
)

// Class is the error taxonomy named in the design.
type Class string

const (
	ClassConfig       Class = "config"
	ClassIo           Class = "io"
	ClassParse        Class = "parse"
	ClassResolution   Class = "resolution"
	ClassEmbedding    Class = "embedding"
	ClassStorage      Class = "storage"
	ClassCancellation Class = "cancellation"
)

// ConfigError: invalid dimension, missing required settings. Fatal at
// startup.
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Underlying: err, Timestamp: time.Now()}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: field %q value %q: %v", e.Field, e.Value, e.Underlying)
}

func (e *ConfigError) Unwrap() error { return e.Underlying }

// IoError: file read/canonicalize failure. Per-file; the file is
// skipped and recorded in parse_errors, never aborts the project.
type IoError struct {
	FilePath   string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

func NewIoError(op, path string, err error) *IoError {
	return &IoError{Operation: op, FilePath: path, Underlying: err, Timestamp: time.Now()}
}

func (e *IoError) Error() string {
	return fmt.Sprintf("io: %s failed for %s: %v", e.Operation, e.FilePath, e.Underlying)
}

func (e *IoError) Unwrap() error { return e.Underlying }

// ParseError: the file is still indexed with whatever nodes/edges were
// produced before the parser failed; a parse_errors count is stored on
// FileMetadata, never aborts the project.
type ParseError struct {
	FileID     types.FileID
	FilePath   string
	Line       int
	Column     int
	Token      string
	Underlying error
	Timestamp  time.Time
}

func NewParseError(fileID types.FileID, path string, line, column int, token string, err error) *ParseError {
	return &ParseError{FileID: fileID, FilePath: path, Line: line, Column: column, Token: token, Underlying: err, Timestamp: time.Now()}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse: %s:%d:%d (near %q): %v", e.FilePath, e.Line, e.Column, e.Token, e.Underlying)
}

func (e *ParseError) Unwrap() error { return e.Underlying }

// ResolutionCounter is not an error. It records an unresolved edge
// target for the per-file `unresolved_targets` output of §4.5, and
// under debug carries a sample for diagnostics. Code must never wrap
// this in an `error` return — see pkg/resolver.Result.
type ResolutionCounter struct {
	FromID types.NodeID
	Target string
	Stage  string // last cascade stage attempted
}

// EmbeddingError: provider failure (network, rate limit, dimension
// mismatch). Retriable for transient classes; DimensionMismatch is
// never retriable and causes the semantic stage to be skipped for the
// run, not the whole reindex.
type EmbeddingError struct {
	DimensionMismatch bool
	Retriable         bool
	Underlying        error
	Timestamp         time.Time
}

func NewEmbeddingError(retriable bool, err error) *EmbeddingError {
	return &EmbeddingError{Retriable: retriable, Underlying: err, Timestamp: time.Now()}
}

func NewDimensionMismatchError(expected, got int) *EmbeddingError {
	return &EmbeddingError{
		DimensionMismatch: true,
		Retriable:         false,
		Underlying:        fmt.Errorf("embedding dimension mismatch: expected %d, got %d", expected, got),
		Timestamp:         time.Now(),
	}
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding: %v (retriable=%v)", e.Underlying, e.Retriable)
}

func (e *EmbeddingError) Unwrap() error { return e.Underlying }

// StorageError: write failure. Retriable classes are retried by the
// writer with bounded exponential backoff; non-retriable failures
// surface to flush() and make the batch a permanent failure.
type StorageError struct {
	Operation  string
	Retriable  bool
	Underlying error
	Timestamp  time.Time
}

func NewStorageError(op string, retriable bool, err error) *StorageError {
	return &StorageError{Operation: op, Retriable: retriable, Underlying: err, Timestamp: time.Now()}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s failed (retriable=%v): %v", e.Operation, e.Retriable, e.Underlying)
}

func (e *StorageError) Unwrap() error { return e.Underlying }

// CancellationError is cooperative and is never logged as an error by
// callers that check errors.Is(err, ErrCancelled) before reporting.
type CancellationError struct {
	Stage string
}

var ErrCancelled = &CancellationError{}

func NewCancellationError(stage string) *CancellationError {
	return &CancellationError{Stage: stage}
}

func (e *CancellationError) Error() string {
	if e.Stage == "" {
		return "cancelled"
	}
	return fmt.Sprintf("cancelled during %s", e.Stage)
}

func (e *CancellationError) Is(target error) bool {
	_, ok := target.(*CancellationError)
	return ok
}

// MultiError aggregates multiple per-file errors collected during one
// reindex pass without aborting it.
type MultiError struct {
	Errors []error
}

func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
	}
}

func (e *MultiError) Unwrap() []error { return e.Errors }
