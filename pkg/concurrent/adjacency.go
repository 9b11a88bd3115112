package concurrent

import (
	"sort"
	"sync/atomic"

	"github.com/fenwick-labs/codegraph/internal/types"
)

// Direction selects which side of an edge tuple neighbors() scans.
type Direction int

const (
	// Outgoing returns edges where the queried id is From.
	Outgoing Direction = iota
	// Incoming returns edges where the queried id is To.
	Incoming
)

// nodeSnapshot is an immutable copy-on-write view of the node set,
// published and swapped the same way the teacher's DeletedFileTracker
// swaps its DeletedFileSet: readers load the pointer once (acquire)
// and read the map without further synchronization; writers copy,
// mutate the copy, and CAS-retry until the swap wins.
type nodeSnapshot struct {
	nodes map[types.NodeID]types.CodeNode
}

func newNodeSnapshot() *nodeSnapshot {
	return &nodeSnapshot{nodes: make(map[types.NodeID]types.CodeNode)}
}

// edgeKey is the unique (from, to, kind) tuple identifying an edge.
type edgeKey struct {
	From types.NodeID
	To   types.NodeID
	Kind types.EdgeKind
}

func lessEdgeKeyForward(a, b edgeKey) bool {
	if a.From != b.From {
		return lessNodeID(a.From, b.From)
	}
	if a.To != b.To {
		return lessNodeID(a.To, b.To)
	}
	return a.Kind < b.Kind
}

func lessEdgeKeyReverse(a, b edgeKey) bool {
	if a.To != b.To {
		return lessNodeID(a.To, b.To)
	}
	if a.From != b.From {
		return lessNodeID(a.From, b.From)
	}
	return a.Kind < b.Kind
}

func lessNodeID(a, b types.NodeID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// edgeSnapshot is an immutable, sorted view of the edge set, kept in
// two orders (by-from and by-to) so that forward and reverse adjacency
// queries are both O(log n + k) range scans rather than full scans.
type edgeSnapshot struct {
	byFrom []types.CodeEdge // sorted by (From, To, Kind)
	byTo   []types.CodeEdge // sorted by (To, From, Kind)
}

func newEdgeSnapshot() *edgeSnapshot {
	return &edgeSnapshot{}
}

func keyOf(e types.CodeEdge) edgeKey {
	return edgeKey{From: e.From, To: e.To, Kind: e.Kind}
}

// AdjacencyMap is the lock-free concurrent store of the project's node
// and edge sets (§4.3). The two structures are independently
// consistent: a combined query may observe an edge whose node was
// concurrently removed; callers must treat a missing node as
// "dropped", never as an error.
type AdjacencyMap struct {
	nodes atomic.Pointer[nodeSnapshot]
	edges atomic.Pointer[edgeSnapshot]
}

// NewAdjacencyMap returns an empty adjacency map.
func NewAdjacencyMap() *AdjacencyMap {
	m := &AdjacencyMap{}
	m.nodes.Store(newNodeSnapshot())
	m.edges.Store(newEdgeSnapshot())
	return m
}

// InsertNode adds or replaces a node. Inserting an edge never creates
// a node; nodes are only created here.
func (m *AdjacencyMap) InsertNode(node types.CodeNode) {
	for {
		old := m.nodes.Load()
		next := &nodeSnapshot{nodes: make(map[types.NodeID]types.CodeNode, len(old.nodes)+1)}
		for id, n := range old.nodes {
			next.nodes[id] = n
		}
		next.nodes[node.ID] = node
		if m.nodes.CompareAndSwap(old, next) {
			return
		}
	}
}

// RemoveNode deletes a node by id. It does not atomically remove the
// node's incident edges; callers that want referential cleanup must
// call SweepEdges for that node (see the incremental indexer's
// Deleting phase).
func (m *AdjacencyMap) RemoveNode(id types.NodeID) {
	for {
		old := m.nodes.Load()
		if _, ok := old.nodes[id]; !ok {
			return
		}
		next := &nodeSnapshot{nodes: make(map[types.NodeID]types.CodeNode, len(old.nodes))}
		for nid, n := range old.nodes {
			if nid != id {
				next.nodes[nid] = n
			}
		}
		if m.nodes.CompareAndSwap(old, next) {
			return
		}
	}
}

// ContainsNode reports whether id is currently present.
func (m *AdjacencyMap) ContainsNode(id types.NodeID) bool {
	_, ok := m.nodes.Load().nodes[id]
	return ok
}

// GetNode returns the node for id and whether it was found.
func (m *AdjacencyMap) GetNode(id types.NodeID) (types.CodeNode, bool) {
	n, ok := m.nodes.Load().nodes[id]
	return n, ok
}

// NodeIDsForFile returns the ids of every node currently recorded
// against filePath, used by the indexer's Deleting phase to sweep a
// changed file's prior nodes before reparsing it.
func (m *AdjacencyMap) NodeIDsForFile(filePath string) []types.NodeID {
	snap := m.nodes.Load()
	var out []types.NodeID
	for id, n := range snap.nodes {
		if n.FilePath == filePath {
			out = append(out, id)
		}
	}
	return out
}

// AllNodeIDs returns every node id currently present, used when
// discarding a project's entire in-memory graph on a forced reindex.
func (m *AdjacencyMap) AllNodeIDs() []types.NodeID {
	snap := m.nodes.Load()
	out := make([]types.NodeID, 0, len(snap.nodes))
	for id := range snap.nodes {
		out = append(out, id)
	}
	return out
}

// NodeCount returns the number of nodes in the current snapshot.
func (m *AdjacencyMap) NodeCount() int {
	return len(m.nodes.Load().nodes)
}

// AddEdge inserts an edge, keyed uniquely by (from, to, kind).
// Duplicate inserts of the same key are idempotent (the existing edge
// is replaced in place, not duplicated).
func (m *AdjacencyMap) AddEdge(edge types.CodeEdge) {
	key := keyOf(edge)
	for {
		old := m.edges.Load()
		next := rebuildEdgeSnapshot(old, key, &edge)
		if m.edges.CompareAndSwap(old, next) {
			return
		}
	}
}

// RemoveEdge deletes the edge uniquely identified by (from, to, kind),
// if present.
func (m *AdjacencyMap) RemoveEdge(from, to types.NodeID, kind types.EdgeKind) {
	key := edgeKey{From: from, To: to, Kind: kind}
	for {
		old := m.edges.Load()
		if !containsEdgeKey(old, key) {
			return
		}
		next := rebuildEdgeSnapshot(old, key, nil)
		if m.edges.CompareAndSwap(old, next) {
			return
		}
	}
}

func containsEdgeKey(s *edgeSnapshot, key edgeKey) bool {
	i := sort.Search(len(s.byFrom), func(i int) bool {
		return !lessEdgeKeyForward(keyOf(s.byFrom[i]), key)
	})
	return i < len(s.byFrom) && keyOf(s.byFrom[i]) == key
}

// rebuildEdgeSnapshot copies the old snapshot's edges, removing any
// edge matching key, and inserting replacement if non-nil, then
// returns a freshly sorted immutable snapshot. Called under the
// CAS-retry loop in AddEdge/RemoveEdge; readers never see this partial
// state because the pointer swap is atomic.
func rebuildEdgeSnapshot(old *edgeSnapshot, key edgeKey, replacement *types.CodeEdge) *edgeSnapshot {
	out := make([]types.CodeEdge, 0, len(old.byFrom)+1)
	for _, e := range old.byFrom {
		if keyOf(e) != key {
			out = append(out, e)
		}
	}
	if replacement != nil {
		out = append(out, *replacement)
	}

	byFrom := make([]types.CodeEdge, len(out))
	copy(byFrom, out)
	sort.Slice(byFrom, func(i, j int) bool { return lessEdgeKeyForward(keyOf(byFrom[i]), keyOf(byFrom[j])) })

	byTo := make([]types.CodeEdge, len(out))
	copy(byTo, out)
	sort.Slice(byTo, func(i, j int) bool { return lessEdgeKeyReverse(keyOf(byTo[i]), keyOf(byTo[j])) })

	return &edgeSnapshot{byFrom: byFrom, byTo: byTo}
}

// Neighbors returns a consistent snapshot of edges touching id in the
// requested direction. The node itself may have been concurrently
// removed; that is not reflected here — callers must check
// ContainsNode/GetNode separately and treat a missing node as dropped.
func (m *AdjacencyMap) Neighbors(id types.NodeID, dir Direction) []types.CodeEdge {
	snap := m.edges.Load()
	switch dir {
	case Incoming:
		return prefixScan(snap.byTo, id, func(e types.CodeEdge) types.NodeID { return e.To })
	default:
		return prefixScan(snap.byFrom, id, func(e types.CodeEdge) types.NodeID { return e.From })
	}
}

func prefixScan(sorted []types.CodeEdge, id types.NodeID, key func(types.CodeEdge) types.NodeID) []types.CodeEdge {
	lo := sort.Search(len(sorted), func(i int) bool { return !lessNodeID(key(sorted[i]), id) })
	hi := sort.Search(len(sorted), func(i int) bool { return lessNodeID(id, key(sorted[i])) })
	if lo >= hi {
		return nil
	}
	out := make([]types.CodeEdge, hi-lo)
	copy(out, sorted[lo:hi])
	return out
}

// SweepEdges removes every edge touching id, in either direction. This
// is the explicit referential-cleanup operation the incremental
// indexer's Deleting phase calls after RemoveNode, since node and edge
// removal are independently consistent and not atomic with each other.
func (m *AdjacencyMap) SweepEdges(id types.NodeID) {
	for {
		old := m.edges.Load()
		out := make([]types.CodeEdge, 0, len(old.byFrom))
		changed := false
		for _, e := range old.byFrom {
			if e.From == id || e.To == id {
				changed = true
				continue
			}
			out = append(out, e)
		}
		if !changed {
			return
		}

		byFrom := make([]types.CodeEdge, len(out))
		copy(byFrom, out)
		sort.Slice(byFrom, func(i, j int) bool { return lessEdgeKeyForward(keyOf(byFrom[i]), keyOf(byFrom[j])) })

		byTo := make([]types.CodeEdge, len(out))
		copy(byTo, out)
		sort.Slice(byTo, func(i, j int) bool { return lessEdgeKeyReverse(keyOf(byTo[i]), keyOf(byTo[j])) })

		next := &edgeSnapshot{byFrom: byFrom, byTo: byTo}
		if m.edges.CompareAndSwap(old, next) {
			return
		}
	}
}

// EdgeCount returns the number of edges in the current snapshot.
func (m *AdjacencyMap) EdgeCount() int {
	return len(m.edges.Load().byFrom)
}
