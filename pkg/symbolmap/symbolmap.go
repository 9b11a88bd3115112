package symbolmap

import (
	"github.com/fenwick-labs/codegraph/internal/debug"
	"github.com/fenwick-labs/codegraph/internal/types"
)

// Map is the per-reindex symbol index: a short-name multimap and a
// fully-qualified-name map, built once per reindex and read by many
// concurrent resolver workers with no in-place mutation during
// resolution (§5's shared-resource policy). Mutating methods
// (Add/Remove) are not safe for concurrent use with each other or with
// reads; callers serialize the build phase before handing the map to
// resolver workers, the same single-writer-then-many-readers handoff
// the teacher's linker engine uses around its mutex-guarded tables.
type Map struct {
	byShortName map[string]map[types.NodeID]struct{}
	byFQName    map[string]types.NodeID

	// fqNameOf lets Remove locate a node's FQN entries without a
	// reverse scan, mirroring the teacher's fileRegistry/reverseRegistry
	// pairing in linker_engine.go.
	fqNameOf   map[types.NodeID]string
	shortNames map[types.NodeID][]string
}

// New returns an empty symbol map.
func New() *Map {
	return &Map{
		byShortName: make(map[string]map[types.NodeID]struct{}),
		byFQName:    make(map[string]types.NodeID),
		fqNameOf:    make(map[types.NodeID]string),
		shortNames:  make(map[types.NodeID][]string),
	}
}

// CanonicalFQName builds the canonical fully-qualified name for a node
// from its file path and identifier, in the form the resolver and
// normalizer both expect to compare against. Nodes nested in the same
// file share the file path as their module prefix; this mirrors how
// the teacher derives composite symbol ids from (FileID, Name).
func CanonicalFQName(node types.CodeNode) string {
	return node.FilePath + "::" + node.Name
}

// Add indexes a node's short name and fully-qualified name. Conflict
// policy for by_fqname is "last wins, log duplicates" per §4.4.
func (m *Map) Add(node types.CodeNode) {
	fq := CanonicalFQName(node)
	if existing, ok := m.byFQName[fq]; ok && existing != node.ID {
		debug.LogResolver("duplicate fqname %q: node %x replaced by %x\n", fq, existing, node.ID)
	}
	m.byFQName[fq] = node.ID
	m.fqNameOf[node.ID] = fq

	short := node.Name
	if m.byShortName[short] == nil {
		m.byShortName[short] = make(map[types.NodeID]struct{})
	}
	m.byShortName[short][node.ID] = struct{}{}
	m.shortNames[node.ID] = append(m.shortNames[node.ID], short)
}

// Remove deletes a node's entries from both indices. The indexer does
// not call it: it builds a fresh map from its adjacency map on every
// run (§4.6's Parsing -> Symbols transition).
func (m *Map) Remove(id types.NodeID) {
	if fq, ok := m.fqNameOf[id]; ok {
		if current, ok := m.byFQName[fq]; ok && current == id {
			delete(m.byFQName, fq)
		}
		delete(m.fqNameOf, id)
	}
	for _, short := range m.shortNames[id] {
		if set, ok := m.byShortName[short]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(m.byShortName, short)
			}
		}
	}
	delete(m.shortNames, id)
}

// LookupFQName returns the node id for an exact fully-qualified name.
func (m *Map) LookupFQName(fq string) (types.NodeID, bool) {
	id, ok := m.byFQName[fq]
	return id, ok
}

// LookupShortName returns every node id sharing a bare identifier.
// The returned slice is a defensive copy; callers may range over it
// freely.
func (m *Map) LookupShortName(short string) []types.NodeID {
	set := m.byShortName[short]
	if len(set) == 0 {
		return nil
	}
	out := make([]types.NodeID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Len returns the number of fully-qualified names currently indexed.
func (m *Map) Len() int {
	return len(m.byFQName)
}
