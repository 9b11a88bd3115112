package resolver

import (
	"context"
	"testing"

	"github.com/fenwick-labs/codegraph/internal/config"
	"github.com/fenwick-labs/codegraph/internal/types"
	"github.com/fenwick-labs/codegraph/pkg/symbolmap"
)

func nodeID(b byte) types.NodeID {
	var id types.NodeID
	id[15] = b
	return id
}

func newFixture(nodes ...types.CodeNode) (*symbolmap.Map, func(types.NodeID) (types.CodeNode, bool)) {
	sm := symbolmap.New()
	byID := make(map[types.NodeID]types.CodeNode, len(nodes))
	for _, n := range nodes {
		sm.Add(n)
		byID[n.ID] = n
	}
	return sm, func(id types.NodeID) (types.CodeNode, bool) {
		n, ok := byID[id]
		return n, ok
	}
}

// TestResolver_GenericStripping is concrete scenario 3: edge target
// "crate::mod::Type::<T>::method(x, y)" with a single node
// "mod::Type::method" resolves via the Normalized stage; the result
// contains one resolved edge and zero unresolved.
func TestResolver_GenericStripping(t *testing.T) {
	caller := types.CodeNode{ID: nodeID(1), FilePath: "/proj/caller.go", Name: "Caller"}
	target := types.CodeNode{ID: nodeID(2), FilePath: "mod::Type", Name: "method"}
	sm, fromNode := newFixture(caller, target)

	r := New(sm, config.TieBreakLexicographic, SemanticConfig{})
	result := r.ResolveFile(context.Background(), []RawEdge{
		{From: caller.ID, Target: "crate::mod::Type::<T>::method(x, y)", Kind: types.EdgeCalls},
	}, fromNode)

	if len(result.Resolved) != 1 {
		t.Fatalf("len(Resolved) = %d, want 1", len(result.Resolved))
	}
	if len(result.UnresolvedTargets) != 0 {
		t.Fatalf("UnresolvedTargets = %v, want none", result.UnresolvedTargets)
	}
	if result.Resolved[0].To != target.ID {
		t.Fatalf("resolved To = %x, want %x", result.Resolved[0].To, target.ID)
	}
	if result.Counters.Normalized != 1 {
		t.Fatalf("Counters.Normalized = %d, want 1", result.Counters.Normalized)
	}
}

func TestResolver_ExactStageShortCircuits(t *testing.T) {
	caller := types.CodeNode{ID: nodeID(1), FilePath: "/proj/a.go", Name: "Caller"}
	target := types.CodeNode{ID: nodeID(2), FilePath: "/proj/a.go", Name: "Foo"}
	sm, fromNode := newFixture(caller, target)

	r := New(sm, config.TieBreakLexicographic, SemanticConfig{})
	result := r.ResolveFile(context.Background(), []RawEdge{
		{From: caller.ID, Target: symbolmap.CanonicalFQName(target), Kind: types.EdgeCalls},
	}, fromNode)

	if result.Counters.Exact != 1 {
		t.Fatalf("Counters.Exact = %d, want 1", result.Counters.Exact)
	}
}

func TestResolver_ShortNameBiasSameFileWins(t *testing.T) {
	caller := types.CodeNode{ID: nodeID(1), FilePath: "/proj/a.go", Name: "Caller"}
	sameFile := types.CodeNode{ID: nodeID(2), FilePath: "/proj/a.go", Name: "Run"}
	otherFile := types.CodeNode{ID: nodeID(3), FilePath: "/proj/b.go", Name: "Run"}
	sm, fromNode := newFixture(caller, sameFile, otherFile)

	r := New(sm, config.TieBreakLexicographic, SemanticConfig{})
	result := r.ResolveFile(context.Background(), []RawEdge{
		{From: caller.ID, Target: "Run", Kind: types.EdgeCalls},
	}, fromNode)

	if len(result.Resolved) != 1 || result.Resolved[0].To != sameFile.ID {
		t.Fatalf("expected same-file candidate to win, got %+v", result.Resolved)
	}
	if result.Counters.ShortName != 1 {
		t.Fatalf("Counters.ShortName = %d, want 1", result.Counters.ShortName)
	}
}

func TestResolver_ShortNameBiasAmbiguousSameFileLeavesUnresolvedByStage3(t *testing.T) {
	caller := types.CodeNode{ID: nodeID(1), FilePath: "/proj/a.go", Name: "Caller"}
	a := types.CodeNode{ID: nodeID(2), FilePath: "/proj/a.go", Name: "Run"}
	b := types.CodeNode{ID: nodeID(3), FilePath: "/proj/a.go", Name: "Run"}
	sm, fromNode := newFixture(caller, a, b)
	// same name, same file, two candidates (both share the canonical FQN
	// "/proj/a.go::Run"): stage 3 is ambiguous (Open Question #2), so the
	// edge is left unresolved; assert it is NOT resolved via the ShortName
	// stage.
	r := New(sm, config.TieBreakLexicographic, SemanticConfig{})
	result := r.ResolveFile(context.Background(), []RawEdge{
		{From: caller.ID, Target: "Run", Kind: types.EdgeCalls},
	}, fromNode)

	if result.Counters.ShortName != 0 {
		t.Fatalf("Counters.ShortName = %d, want 0 (ambiguous same-file stage-3 match)", result.Counters.ShortName)
	}
}

// TestResolver_Idempotence verifies resolving the same raw-edge set
// against the same symbol map twice yields identical stored edges.
func TestResolver_Idempotence(t *testing.T) {
	caller := types.CodeNode{ID: nodeID(1), FilePath: "/proj/a.go", Name: "Caller"}
	target := types.CodeNode{ID: nodeID(2), FilePath: "/proj/a.go", Name: "Foo"}
	sm, fromNode := newFixture(caller, target)
	edges := []RawEdge{{From: caller.ID, Target: "Foo", Kind: types.EdgeCalls}}

	r := New(sm, config.TieBreakLexicographic, SemanticConfig{})
	first := r.ResolveFile(context.Background(), edges, fromNode)
	second := r.ResolveFile(context.Background(), edges, fromNode)

	if len(first.Resolved) != len(second.Resolved) ||
		first.Resolved[0].From != second.Resolved[0].From ||
		first.Resolved[0].To != second.Resolved[0].To ||
		first.Resolved[0].Kind != second.Resolved[0].Kind {
		t.Fatalf("resolve not idempotent: %+v vs %+v", first.Resolved, second.Resolved)
	}
}

func TestResolver_UnknownTargetNeverPanics(t *testing.T) {
	caller := types.CodeNode{ID: nodeID(1), FilePath: "/proj/a.go", Name: "Caller"}
	sm, fromNode := newFixture(caller)
	r := New(sm, config.TieBreakLexicographic, SemanticConfig{})

	result := r.ResolveFile(context.Background(), []RawEdge{
		{From: caller.ID, Target: "totally::unknown::Thing", Kind: types.EdgeCalls},
	}, fromNode)

	if len(result.Resolved) != 0 || len(result.UnresolvedTargets) != 1 {
		t.Fatalf("got %+v, want one unresolved target", result)
	}
}
