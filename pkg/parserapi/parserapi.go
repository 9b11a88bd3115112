// Package parserapi defines the external parser contract of §6: given
// a file's path and bytes, a Parser returns the nodes and raw (not yet
// resolved) edges it found. Implementations must be pure and
// deterministic for identical inputs — the same file's bytes always
// produce the same ParseResult, which is what lets the indexer treat
// Modified-file reparsing as a plain replace rather than a merge.
package parserapi

import (
	"context"

	"github.com/fenwick-labs/codegraph/internal/types"
)

// Capability enumerates the optional behaviors a Parser implementation
// supports, mirroring the teacher's capability-segregated interfaces
// (FileProvider/SymbolProvider/ReferenceProvider) narrowed to this
// package's two concerns.
type Capability int

const (
	CapParse Capability = 1 << iota
	CapEnumerateIgnore
)

// Has reports whether cap is included in c.
func (c Capability) Has(cap Capability) bool {
	return c&cap != 0
}

// RawEdge is a symbolic, not-yet-resolved relationship a Parser
// observed: FromID is the referencing node's stable id, Target is the
// symbolic string (e.g. a call expression or import path) the
// resolver's cascade will later match against the symbol map.
type RawEdge struct {
	FromID types.NodeID
	Target string
	Kind   types.EdgeKind
}

// ParseResult is one file's parse output. ParseErrors never abort
// indexing the file — whatever nodes and edges were produced before
// the error stand, and the count is recorded on FileMetadata.
type ParseResult struct {
	Nodes       []types.CodeNode
	Edges       []RawEdge
	ParseErrors []error
}

// Parser is implemented once per supported language.
type Parser interface {
	Capabilities() Capability
	Language() types.Language
	Parse(ctx context.Context, filePath string, content []byte) (ParseResult, error)
	EnumerateIgnore(root string) ([]string, error)
}
