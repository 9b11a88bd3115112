package resolver

import (
	"context"
	"testing"

	"github.com/fenwick-labs/codegraph/internal/config"
	"github.com/fenwick-labs/codegraph/internal/types"
	"github.com/fenwick-labs/codegraph/pkg/symbolmap"
)

type fakeProvider struct {
	dim int
}

func (p fakeProvider) Dimension() int { return p.dim }

func (p fakeProvider) Embed(ctx context.Context, batch []string) ([][]float32, error) {
	out := make([][]float32, len(batch))
	for i := range batch {
		v := make([]float32, p.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

type fakeSearcher struct {
	results []types.SymbolEmbedding
}

func (s fakeSearcher) NearestSymbols(ctx context.Context, projectID string, dim int, query []float32, k int) ([]types.SymbolEmbedding, error) {
	if k < len(s.results) {
		return s.results[:k], nil
	}
	return s.results, nil
}

// TestResolver_DimensionMismatchSkipsSemanticStage is concrete
// scenario 4: ProjectMetadata.embedding_dimension=1536, provider
// returns 2048-length vectors. Expected: the semantic stage is
// skipped, a one-shot warning fires, and resolved_ratio is reported
// without semantic contribution.
func TestResolver_DimensionMismatchSkipsSemanticStage(t *testing.T) {
	caller := types.CodeNode{ID: nodeID(1), FilePath: "/proj/a.go", Name: "Caller"}
	sm, fromNode := newFixture(caller)

	r := New(sm, config.TieBreakLexicographic, SemanticConfig{
		Enabled:            true,
		Threshold:          0.8,
		Gap:                0.05,
		EmbeddingDimension: 1536,
		Provider:           fakeProvider{dim: 2048},
		Searcher:           fakeSearcher{},
	})

	result := r.ResolveFile(context.Background(), []RawEdge{
		{From: caller.ID, Target: "totally::unknown::Thing", Kind: types.EdgeCalls},
	}, fromNode)

	if !result.DimensionMismatch {
		t.Fatal("expected DimensionMismatch to be reported")
	}
	if !result.SemanticSkipped {
		t.Fatal("expected semantic stage to be skipped")
	}
	if result.Counters.Semantic != 0 {
		t.Fatalf("Counters.Semantic = %d, want 0", result.Counters.Semantic)
	}
	if result.Counters.ResolvedRatio() != 0 {
		t.Fatalf("expected zero resolved ratio with no exact/normalized/short/pattern matches")
	}
}

func TestResolver_SemanticStageAcceptsAboveThresholdWithGap(t *testing.T) {
	caller := types.CodeNode{ID: nodeID(1), FilePath: "/proj/a.go", Name: "Caller"}
	target := types.CodeNode{ID: nodeID(2), FilePath: "/proj/a.go", Name: "Foo"}
	sm, fromNode := newFixture(caller, target)
	sm.Add(target)

	r := New(sm, config.TieBreakLexicographic, SemanticConfig{
		Enabled:            true,
		Threshold:          0.5,
		Gap:                0.05,
		EmbeddingDimension: 4,
		Provider:           fakeProvider{dim: 4},
		Searcher: fakeSearcher{results: []types.SymbolEmbedding{
			{SymbolKey: types.SymbolKey(symbolmap.CanonicalFQName(target)), Embedding: []float32{1, 0, 0, 0}},
			{SymbolKey: "other", Embedding: []float32{0, 1, 0, 0}},
		}},
	})

	result := r.ResolveFile(context.Background(), []RawEdge{
		{From: caller.ID, Target: "totally::unknown::thing", Kind: types.EdgeCalls},
	}, fromNode)

	if result.Counters.Semantic != 1 {
		t.Fatalf("Counters.Semantic = %d, want 1 (resolved=%+v unresolved=%v)", result.Counters.Semantic, result.Resolved, result.UnresolvedTargets)
	}
}

func TestResolver_SemanticStageRejectsBelowGap(t *testing.T) {
	caller := types.CodeNode{ID: nodeID(1), FilePath: "/proj/a.go", Name: "Caller"}
	target := types.CodeNode{ID: nodeID(2), FilePath: "/proj/a.go", Name: "Foo"}
	sm, fromNode := newFixture(caller, target)

	r := New(sm, config.TieBreakLexicographic, SemanticConfig{
		Enabled:            true,
		Threshold:          0.5,
		Gap:                0.5, // demand a large gap; the two candidates below are close
		EmbeddingDimension: 4,
		Provider:           fakeProvider{dim: 4},
		Searcher: fakeSearcher{results: []types.SymbolEmbedding{
			{SymbolKey: types.SymbolKey(symbolmap.CanonicalFQName(target)), Embedding: []float32{1, 0.1, 0, 0}},
			{SymbolKey: "other", Embedding: []float32{1, 0, 0, 0}},
		}},
	})

	result := r.ResolveFile(context.Background(), []RawEdge{
		{From: caller.ID, Target: "totally::unknown::thing", Kind: types.EdgeCalls},
	}, fromNode)

	if result.Counters.Semantic != 0 {
		t.Fatalf("Counters.Semantic = %d, want 0 (gap too small)", result.Counters.Semantic)
	}
}
