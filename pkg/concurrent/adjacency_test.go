package concurrent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-labs/codegraph/internal/types"
)

func nodeID(b byte) types.NodeID {
	var id types.NodeID
	id[15] = b
	return id
}

func TestAdjacencyMap_InsertEdgeNeverCreatesNode(t *testing.T) {
	m := NewAdjacencyMap()
	a, b := nodeID(1), nodeID(2)

	m.AddEdge(types.CodeEdge{From: a, To: b, Kind: types.EdgeCalls})

	assert.False(t, m.ContainsNode(a))
	assert.False(t, m.ContainsNode(b))
	assert.Equal(t, 1, m.EdgeCount())
}

func TestAdjacencyMap_DuplicateEdgeInsertIsIdempotent(t *testing.T) {
	m := NewAdjacencyMap()
	a, b := nodeID(1), nodeID(2)

	edge := types.CodeEdge{From: a, To: b, Kind: types.EdgeCalls, Weight: 1}
	m.AddEdge(edge)
	edge.Weight = 2
	m.AddEdge(edge)

	assert.Equal(t, 1, m.EdgeCount())
	neighbors := m.Neighbors(a, Outgoing)
	require.Len(t, neighbors, 1)
	assert.Equal(t, 2.0, neighbors[0].Weight)
}

func TestAdjacencyMap_NeighborsForwardAndReverse(t *testing.T) {
	m := NewAdjacencyMap()
	a, b, c := nodeID(1), nodeID(2), nodeID(3)

	m.AddEdge(types.CodeEdge{From: a, To: b, Kind: types.EdgeCalls})
	m.AddEdge(types.CodeEdge{From: a, To: c, Kind: types.EdgeUses})
	m.AddEdge(types.CodeEdge{From: b, To: c, Kind: types.EdgeCalls})

	out := m.Neighbors(a, Outgoing)
	assert.Len(t, out, 2)

	in := m.Neighbors(c, Incoming)
	assert.Len(t, in, 2)
}

func TestAdjacencyMap_RemoveNodeLeavesEdgesUntilSweep(t *testing.T) {
	m := NewAdjacencyMap()
	a, b := nodeID(1), nodeID(2)
	m.InsertNode(types.CodeNode{ID: a, Name: "a"})
	m.InsertNode(types.CodeNode{ID: b, Name: "b"})
	m.AddEdge(types.CodeEdge{From: a, To: b, Kind: types.EdgeCalls})

	m.RemoveNode(a)

	assert.False(t, m.ContainsNode(a))
	// edge survives remove_node; caller must treat the missing node as
	// dropped, not as an error, until SweepEdges runs.
	assert.Equal(t, 1, m.EdgeCount())
	neighbors := m.Neighbors(b, Incoming)
	require.Len(t, neighbors, 1)

	m.SweepEdges(a)
	assert.Equal(t, 0, m.EdgeCount())
}

func TestAdjacencyMap_RemoveEdge(t *testing.T) {
	m := NewAdjacencyMap()
	a, b := nodeID(1), nodeID(2)
	m.AddEdge(types.CodeEdge{From: a, To: b, Kind: types.EdgeCalls})
	m.RemoveEdge(a, b, types.EdgeCalls)
	assert.Equal(t, 0, m.EdgeCount())
}

// TestAdjacencyMap_ConcurrentReadersNeverObserveDanglingSnapshot
// verifies that a reader's acquire-loaded snapshot is internally
// consistent across a burst of concurrent insert/remove operations:
// EdgeCount and Neighbors never see a torn (partially-copied) map.
func TestAdjacencyMap_ConcurrentReadersNeverObserveDanglingSnapshot(t *testing.T) {
	m := NewAdjacencyMap()
	const n = 200
	nodes := make([]types.NodeID, n)
	for i := range nodes {
		var id types.NodeID
		id[14] = byte(i >> 8)
		id[15] = byte(i)
		nodes[i] = id
		m.InsertNode(types.CodeNode{ID: id})
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n-1; i++ {
			m.AddEdge(types.CodeEdge{From: nodes[i], To: nodes[i+1], Kind: types.EdgeCalls})
		}
		for i := 0; i < n-1; i += 2 {
			m.RemoveNode(nodes[i])
			m.SweepEdges(nodes[i])
		}
		close(stop)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = m.EdgeCount()
				_ = m.Neighbors(nodes[n/2], Outgoing)
			}
		}
	}()

	wg.Wait()
}
