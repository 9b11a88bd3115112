// Package writer implements the async write pipeline of §4.7: queued,
// batched upserts to the storage backend with backpressure and
// at-least-once semantics.
package writer

import (
	"context"
	"sync"
	"time"

	"github.com/fenwick-labs/codegraph/internal/cgerrors"
	"github.com/fenwick-labs/codegraph/internal/debug"
	"github.com/fenwick-labs/codegraph/internal/types"
)

// OpKind identifies which typed table a Batch targets.
type OpKind string

const (
	OpUpsertNodes            OpKind = "upsert_nodes"
	OpUpsertEdges            OpKind = "upsert_edges"
	OpUpsertSymbolEmbeddings OpKind = "upsert_symbol_embeddings"
	OpUpsertFileMetadata     OpKind = "upsert_file_metadata"
	OpUpsertProjectMetadata  OpKind = "upsert_project_metadata"
	OpDeleteByFile           OpKind = "delete_by_file"
	OpDeleteByProject        OpKind = "delete_by_project"
)

// Batch is one typed unit of work handed to the pipeline. FilePath is
// set for per-file batches so a failed batch in Flush's summary names
// its file; ProjectID is always set.
type Batch struct {
	Kind      OpKind
	ProjectID string
	FilePath  string // empty for project-scoped batches

	Nodes            []types.CodeNode
	Edges            []types.CodeEdge
	SymbolEmbeddings []types.SymbolEmbedding
	FileMetadata     *types.FileMetadata
	ProjectMetadata  *types.ProjectMetadata
}

// Backend is the narrow slice of storage.Backend the writer needs —
// defined locally so the pipeline depends on the capability it
// consumes, not the concrete storage package. Its methods are a subset
// of storage.Backend with identical signatures, so a *sqlitestore.Store
// satisfies it with no adapter.
type Backend interface {
	UpsertNodes(ctx context.Context, projectID string, nodes []types.CodeNode) error
	UpsertEdges(ctx context.Context, projectID string, edges []types.CodeEdge) error
	UpsertSymbolEmbeddings(ctx context.Context, projectID string, embeddings []types.SymbolEmbedding) error
	UpsertFileMetadata(ctx context.Context, meta types.FileMetadata) error
	UpsertProjectMetadata(ctx context.Context, meta types.ProjectMetadata) error
	DeleteByFile(ctx context.Context, projectID, filePath string) (types.DeleteCounts, error)
	DeleteByProject(ctx context.Context, projectID string) (types.DeleteCounts, error)
}

// Summary is returned by Flush: the totals §4.7 requires plus the
// batches that failed permanently, for the indexer to inspect.
// Deleted accumulates every
// DeleteCounts observed during the flush, for the indexer's Verifying
// phase to reconcile against expected counters.
type Summary struct {
	Writes   int
	Failures int
	Duration time.Duration
	Failed   []FailedBatch
	Deleted  types.DeleteCounts
}

// FailedBatch is a batch that failed with a non-retriable storage
// error, surfaced for the caller's recoverability policy. The indexer
// treats a failure as fatal in --force runs; in incremental runs it
// counts the failure in its Summary.WriteFailures and continues. The
// failed batch is not re-queued.
type FailedBatch struct {
	Batch Batch
	Err   error
}

// Pipeline is the async write pipeline: multi-producer (Enqueue),
// single-consumer (Flush applies batches in the order they were
// enqueued, on the goroutine that calls it; there is no background
// worker), bounded by a high-water mark that makes Enqueue block once
// the queue is saturated until a Flush drains it.
type Pipeline struct {
	backend       Backend
	highWaterMark int
	maxRetries    int
	backoffBase   time.Duration

	mu      sync.Mutex
	queue   []Batch
	notFull *sync.Cond

	closed bool
}

// New returns a pipeline bound to backend, with the given high-water
// mark (queue capacity before Enqueue blocks).
func New(backend Backend, highWaterMark int) *Pipeline {
	p := &Pipeline{
		backend:       backend,
		highWaterMark: highWaterMark,
		maxRetries:    5,
		backoffBase:   10 * time.Millisecond,
	}
	p.notFull = sync.NewCond(&p.mu)
	return p
}

// Enqueue appends batch to the queue, blocking while the queue is at
// or above the high-water mark (backpressure). Ordering: within a
// single file, the caller is responsible for enqueuing batches in
// §4.6's order; across files, batches may interleave freely.
func (p *Pipeline) Enqueue(ctx context.Context, batch Batch) error {
	p.mu.Lock()
	for len(p.queue) >= p.highWaterMark && !p.closed {
		if ctx.Err() != nil {
			p.mu.Unlock()
			return cgerrors.NewCancellationError("writer_enqueue")
		}
		p.notFull.Wait()
	}
	p.queue = append(p.queue, batch)
	p.mu.Unlock()
	debug.LogWriter("enqueued %s for project=%s file=%q (queue depth=%d)\n", batch.Kind, batch.ProjectID, batch.FilePath, len(p.queue))
	return nil
}

// Flush drains every outstanding batch, applying each to the backend
// in FIFO order, and returns a summary. Permanent (non-retriable)
// failures are recorded in Summary.Failed rather than returned as an
// error — the indexer decides fatal-vs-recoverable per §4.7.
func (p *Pipeline) Flush(ctx context.Context) Summary {
	start := time.Now()
	var summary Summary

	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.mu.Unlock()
			break
		}
		batch := p.queue[0]
		p.queue = p.queue[1:]
		p.notFull.Signal()
		p.mu.Unlock()

		deleted, err := p.applyWithRetry(ctx, batch)
		if err != nil {
			summary.Failures++
			summary.Failed = append(summary.Failed, FailedBatch{Batch: batch, Err: err})
			debug.LogWriter("batch %s for file=%q failed permanently: %v\n", batch.Kind, batch.FilePath, err)
			continue
		}
		summary.Writes++
		summary.Deleted.Nodes += deleted.Nodes
		summary.Deleted.Edges += deleted.Edges
		summary.Deleted.SymbolEmbeddings += deleted.SymbolEmbeddings
		summary.Deleted.FileMetadata += deleted.FileMetadata
	}

	summary.Duration = time.Since(start)
	return summary
}

// applyWithRetry applies batch, retrying retriable storage errors
// with bounded exponential backoff (§7's Storage error class).
// Upserts are idempotent by construction (primary-key upsert), so a
// retried replay after a transient failure produces the same final
// state — satisfying §4.7's duplicate-suppression requirement.
func (p *Pipeline) applyWithRetry(ctx context.Context, batch Batch) (types.DeleteCounts, error) {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return types.DeleteCounts{}, cgerrors.NewCancellationError("writer_apply")
		}

		deleted, err := p.apply(ctx, batch)
		if err == nil {
			return deleted, nil
		}

		var storageErr *cgerrors.StorageError
		if !asStorageError(err, &storageErr) || !storageErr.Retriable {
			return types.DeleteCounts{}, err
		}
		lastErr = err

		if attempt < p.maxRetries {
			time.Sleep(p.backoffBase * time.Duration(1<<uint(attempt)))
		}
	}
	return types.DeleteCounts{}, lastErr
}

func asStorageError(err error, target **cgerrors.StorageError) bool {
	se, ok := err.(*cgerrors.StorageError)
	if !ok {
		return false
	}
	*target = se
	return true
}

func (p *Pipeline) apply(ctx context.Context, batch Batch) (types.DeleteCounts, error) {
	switch batch.Kind {
	case OpUpsertNodes:
		return types.DeleteCounts{}, p.backend.UpsertNodes(ctx, batch.ProjectID, batch.Nodes)
	case OpUpsertEdges:
		return types.DeleteCounts{}, p.backend.UpsertEdges(ctx, batch.ProjectID, batch.Edges)
	case OpUpsertSymbolEmbeddings:
		return types.DeleteCounts{}, p.backend.UpsertSymbolEmbeddings(ctx, batch.ProjectID, batch.SymbolEmbeddings)
	case OpUpsertFileMetadata:
		if batch.FileMetadata == nil {
			return types.DeleteCounts{}, nil
		}
		return types.DeleteCounts{}, p.backend.UpsertFileMetadata(ctx, *batch.FileMetadata)
	case OpUpsertProjectMetadata:
		if batch.ProjectMetadata == nil {
			return types.DeleteCounts{}, nil
		}
		return types.DeleteCounts{}, p.backend.UpsertProjectMetadata(ctx, *batch.ProjectMetadata)
	case OpDeleteByFile:
		return p.backend.DeleteByFile(ctx, batch.ProjectID, batch.FilePath)
	case OpDeleteByProject:
		return p.backend.DeleteByProject(ctx, batch.ProjectID)
	default:
		return types.DeleteCounts{}, nil
	}
}

// Depth returns the current queue depth, for monitoring/backpressure
// diagnostics.
func (p *Pipeline) Depth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close marks the pipeline closed, waking any blocked Enqueue callers
// so they do not block forever: after Close, Enqueue appends its batch
// and returns nil without waiting for space.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.notFull.Broadcast()
}
