package sqlitestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-labs/codegraph/internal/idcodec"
	"github.com/fenwick-labs/codegraph/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func node(projectID, filePath, name string) types.CodeNode {
	id := idcodec.DeriveNodeID(projectID, filePath, 1, 1, name, types.KindFunction)
	return types.CodeNode{
		ID: id, ProjectID: projectID, Name: name, Kind: types.KindFunction,
		Language: types.LanguageGo, FilePath: filePath, StartLine: 1, EndLine: 3,
		Content: "func " + name + "() {}",
	}
}

func TestStore_UpsertAndCountNodes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := node("proj", "a.go", "Foo")
	b := node("proj", "a.go", "Bar")
	require.NoError(t, s.UpsertNodes(ctx, "proj", []types.CodeNode{a, b}))

	counts, err := s.CountByProject(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Nodes)
}

func TestStore_UpsertNodesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := node("proj", "a.go", "Foo")
	require.NoError(t, s.UpsertNodes(ctx, "proj", []types.CodeNode{a}))
	a.EndLine = 10
	require.NoError(t, s.UpsertNodes(ctx, "proj", []types.CodeNode{a}))

	counts, err := s.CountByProject(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Nodes)
}

func TestStore_UpsertEdgesAndDeleteByFile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := node("proj", "a.go", "Foo")
	b := node("proj", "b.go", "Bar")
	require.NoError(t, s.UpsertNodes(ctx, "proj", []types.CodeNode{a, b}))
	require.NoError(t, s.UpsertEdges(ctx, "proj", []types.CodeEdge{{From: a.ID, To: b.ID, Kind: types.EdgeCalls}}))

	counts, err := s.CountByProject(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Nodes)
	assert.Equal(t, 1, counts.Edges)

	deleted, err := s.DeleteByFile(ctx, "proj", "a.go")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted.Nodes)
	assert.Equal(t, 1, deleted.Edges)

	counts, err = s.CountByProject(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Nodes)
	assert.Equal(t, 0, counts.Edges)
}

func TestStore_DeleteByProjectWipesEverything(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := node("proj", "a.go", "Foo")
	require.NoError(t, s.UpsertNodes(ctx, "proj", []types.CodeNode{a}))
	require.NoError(t, s.UpsertFileMetadata(ctx, types.FileMetadata{ProjectID: "proj", FilePath: "a.go"}))
	require.NoError(t, s.UpsertProjectMetadata(ctx, types.ProjectMetadata{ProjectID: "proj"}))

	deleted, err := s.DeleteByProject(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted.Nodes)
	assert.Equal(t, 1, deleted.FileMetadata)

	counts, err := s.CountByProject(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Nodes)
	assert.Equal(t, 0, counts.FileMetadata)

	_, ok, err := s.LoadProjectMetadata(ctx, "proj")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_FileMetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	meta := types.FileMetadata{
		ProjectID: "proj", FilePath: "a.go", FileSize: 42,
		NodeCount: 3, EdgeCount: 1, Language: types.LanguageGo, ParseErrors: 0,
	}
	meta.ContentHash[0] = 0xAB
	require.NoError(t, s.UpsertFileMetadata(ctx, meta))

	loaded, err := s.LoadFileMetadata(ctx, "proj")
	require.NoError(t, err)
	got, ok := loaded["a.go"]
	require.True(t, ok)
	assert.Equal(t, int64(42), got.FileSize)
	assert.Equal(t, byte(0xAB), got.ContentHash[0])
}

func TestStore_NearestSymbolsReturnsClosestVector(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	embeddings := []types.SymbolEmbedding{
		{ProjectID: "proj", SymbolKey: "a.go::Foo", Kind: types.SymbolEmbeddingKnown, Embedding: []float32{1, 0, 0}},
		{ProjectID: "proj", SymbolKey: "b.go::Bar", Kind: types.SymbolEmbeddingKnown, Embedding: []float32{0, 1, 0}},
		{ProjectID: "proj", SymbolKey: "c.go::Baz", Kind: types.SymbolEmbeddingKnown, Embedding: []float32{0, 0, 1}},
	}
	require.NoError(t, s.UpsertSymbolEmbeddings(ctx, "proj", embeddings))

	results, err := s.NearestSymbols(ctx, "proj", 3, []float32{0.9, 0.1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.SymbolKey("a.go::Foo"), results[0].SymbolKey)
}

func TestStore_NearestSymbolsIsolatedByProject(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertSymbolEmbeddings(ctx, "proj-a", []types.SymbolEmbedding{
		{ProjectID: "proj-a", SymbolKey: "a.go::Foo", Kind: types.SymbolEmbeddingKnown, Embedding: []float32{1, 0}},
	}))
	require.NoError(t, s.UpsertSymbolEmbeddings(ctx, "proj-b", []types.SymbolEmbedding{
		{ProjectID: "proj-b", SymbolKey: "b.go::Bar", Kind: types.SymbolEmbeddingKnown, Embedding: []float32{1, 0}},
	}))

	results, err := s.NearestSymbols(ctx, "proj-a", 2, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.SymbolKey("a.go::Foo"), results[0].SymbolKey)
}

func TestStore_ReopenPersistsAcrossClose(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := dir + "/index.db"

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.UpsertNodes(ctx, "proj", []types.CodeNode{node("proj", "a.go", "Foo")}))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	counts, err := s2.CountByProject(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Nodes)
}
