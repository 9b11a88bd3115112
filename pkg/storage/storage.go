// Package storage defines the persistence contract of §6: a narrow,
// typed Backend interface that every concrete storage implementation
// (pkg/storage/sqlitestore, or an in-memory test double) must satisfy.
// It is grounded on the teacher-adjacent Query/Execute/Close shape seen
// across the pack's storage packages, narrowed here to the per-table
// upsert/delete/count operations the indexer and resolver actually
// call rather than a generic query language.
package storage

import (
	"context"

	"github.com/fenwick-labs/codegraph/internal/types"
)

// Backend is the full storage contract: the union of writer.Backend
// (upserts and delete-by-predicate), indexer.Backend (metadata loads
// and count reconciliation), and resolver.SymbolSearcher (nearest
// neighbor lookup for the Semantic resolution stage). A concrete
// implementation satisfies all three narrower interfaces simply by
// satisfying this one.
type Backend interface {
	UpsertNodes(ctx context.Context, projectID string, nodes []types.CodeNode) error
	UpsertEdges(ctx context.Context, projectID string, edges []types.CodeEdge) error
	UpsertSymbolEmbeddings(ctx context.Context, projectID string, embeddings []types.SymbolEmbedding) error
	UpsertFileMetadata(ctx context.Context, meta types.FileMetadata) error
	UpsertProjectMetadata(ctx context.Context, meta types.ProjectMetadata) error

	DeleteByFile(ctx context.Context, projectID, filePath string) (types.DeleteCounts, error)
	DeleteByProject(ctx context.Context, projectID string) (types.DeleteCounts, error)

	LoadFileMetadata(ctx context.Context, projectID string) (map[string]types.FileMetadata, error)
	LoadProjectMetadata(ctx context.Context, projectID string) (types.ProjectMetadata, bool, error)
	CountByProject(ctx context.Context, projectID string) (types.TableCounts, error)

	NearestSymbols(ctx context.Context, projectID string, dim int, query []float32, k int) ([]types.SymbolEmbedding, error)

	Close() error
}
