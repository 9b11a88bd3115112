// Package indexer implements the incremental indexer state machine of
// §4.6: Scanning -> Classifying -> Deleting -> Parsing -> Symbols ->
// Resolving -> Embedding -> Persisting -> Verifying, with a Skipping
// branch when no prior FileMetadata exists and the run is not forced.
package indexer

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/fenwick-labs/codegraph/internal/cgerrors"
	"github.com/fenwick-labs/codegraph/internal/config"
	"github.com/fenwick-labs/codegraph/internal/debug"
	"github.com/fenwick-labs/codegraph/internal/types"
	"github.com/fenwick-labs/codegraph/pkg/changedetect"
	"github.com/fenwick-labs/codegraph/pkg/concurrent"
	"github.com/fenwick-labs/codegraph/pkg/embedprovider"
	"github.com/fenwick-labs/codegraph/pkg/parserapi"
	"github.com/fenwick-labs/codegraph/pkg/resolver"
	"github.com/fenwick-labs/codegraph/pkg/symbolmap"
	"github.com/fenwick-labs/codegraph/pkg/writer"
)

// State names map 1:1 onto the transitions of §4.6, tracked via an
// atomic.Int32 the way the teacher's isIndexing/currentOperation
// fields track progress without a lock on the hot read path.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateClassifying
	StateDeleting
	StateParsing
	StateSymbols
	StateResolving
	StateEmbedding
	StatePersisting
	StateVerifying
	StateSkipping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateClassifying:
		return "classifying"
	case StateDeleting:
		return "deleting"
	case StateParsing:
		return "parsing"
	case StateSymbols:
		return "symbols"
	case StateResolving:
		return "resolving"
	case StateEmbedding:
		return "embedding"
	case StatePersisting:
		return "persisting"
	case StateVerifying:
		return "verifying"
	case StateSkipping:
		return "skipping"
	default:
		return "unknown"
	}
}

// Backend is the narrow read-side capability the indexer needs beyond
// writer.Backend's write-side: loading prior state and verifying final
// row counts. Defined locally so the indexer depends on the capability
// it consumes, not the concrete storage package.
type Backend interface {
	LoadFileMetadata(ctx context.Context, projectID string) (map[string]types.FileMetadata, error)
	LoadProjectMetadata(ctx context.Context, projectID string) (types.ProjectMetadata, bool, error)
	CountByProject(ctx context.Context, projectID string) (types.TableCounts, error)
}

// Summary is the run report of §7: counts per classification plus
// graph totals, resolution quality, and failure counts.
type Summary struct {
	Added, Modified, Deleted, Unchanged int
	Nodes, Edges                        int
	ResolvedRatio                       float64
	ParseErrors                         int
	WriteFailures                       int
	Skipped                             bool
	VerifyMismatch                      bool
}

// Indexer drives one project's reindex. It is single-owner per project
// (§5): concurrency within a run comes from the writer's internal
// queue and the embedding provider's own batching, not from multiple
// Indexer instances sharing state.
type Indexer struct {
	cfg      *config.Config
	detector *changedetect.Detector
	parser   parserapi.Parser
	embed    embedprovider.Provider
	backend  Backend
	wp       *writer.Pipeline
	searcher resolver.SymbolSearcher

	graph *concurrent.AdjacencyMap
	state atomic.Int32
}

// New returns an indexer bound to cfg and its collaborators. searcher
// may be nil when semantic resolution is disabled.
func New(cfg *config.Config, detector *changedetect.Detector, parser parserapi.Parser, embed embedprovider.Provider, backend Backend, wp *writer.Pipeline, searcher resolver.SymbolSearcher) *Indexer {
	return &Indexer{
		cfg:      cfg,
		detector: detector,
		parser:   parser,
		embed:    embed,
		backend:  backend,
		wp:       wp,
		searcher: searcher,
		graph:    concurrent.NewAdjacencyMap(),
	}
}

// State returns the indexer's current stage, safe to call from any
// goroutine while a run is in flight.
func (ix *Indexer) State() State {
	return State(ix.state.Load())
}

func (ix *Indexer) setState(s State) {
	ix.state.Store(int32(s))
}

// Graph returns the in-memory adjacency map built by the most recent
// run, for callers that want to query the project's current graph
// without a storage round trip.
func (ix *Indexer) Graph() *concurrent.AdjacencyMap {
	return ix.graph
}

// Run executes one full reindex cycle for the project and returns its
// summary. A cancelled ctx is checked after Scanning and Classifying
// and before each file is parsed and resolved (§5); the Embedding,
// Persisting and Verifying stages pass ctx on to the embedding
// provider, the writer and the backend instead.
func (ix *Indexer) Run(ctx context.Context) (Summary, error) {
	defer ix.setState(StateIdle)
	projectID := ix.cfg.Project.ID

	ix.setState(StateScanning)
	scanned, ioErrs := ix.detector.Scan()
	for _, e := range ioErrs {
		debug.LogIndexing("scan error: %v\n", e)
	}
	scannedByPath := make(map[string]changedetect.ScannedFile, len(scanned))
	for _, f := range scanned {
		scannedByPath[f.Path] = f
	}
	if err := ctx.Err(); err != nil {
		return Summary{}, cgerrors.NewCancellationError("scanning")
	}

	ix.setState(StateClassifying)
	prior, err := ix.backend.LoadFileMetadata(ctx, projectID)
	if err != nil {
		return Summary{}, err
	}
	if len(prior) == 0 && !ix.cfg.Force {
		ix.setState(StateSkipping)
		debug.LogIndexing("no prior file metadata for project=%s and run is not forced; skipping\n", projectID)
		return Summary{Skipped: true}, nil
	}

	if ix.cfg.Force {
		if err := ix.cleanProjectData(ctx, projectID); err != nil {
			return Summary{}, err
		}
		prior = map[string]types.FileMetadata{}
	}

	changes := changedetect.Classify(scanned, prior)
	var summary Summary
	var toParse []changedetect.FileChange
	for _, c := range changes {
		switch c.Classification {
		case changedetect.Added:
			summary.Added++
			toParse = append(toParse, c)
		case changedetect.Modified:
			summary.Modified++
			toParse = append(toParse, c)
		case changedetect.Unchanged:
			summary.Unchanged++
		case changedetect.Deleted:
			summary.Deleted++
		}
	}

	if err := ctx.Err(); err != nil {
		return Summary{}, cgerrors.NewCancellationError("classifying")
	}

	ix.setState(StateDeleting)
	for _, c := range changes {
		if c.Classification != changedetect.Deleted && c.Classification != changedetect.Modified {
			continue
		}
		if err := ix.enqueueFileDeletion(ctx, projectID, c.Path); err != nil {
			return Summary{}, err
		}
	}
	deleteSummary := ix.wp.Flush(ctx)
	summary.WriteFailures += deleteSummary.Failures
	if deleteSummary.Failures > 0 && ix.cfg.Force {
		return summary, cgerrors.NewMultiError(failedErrs(deleteSummary))
	}

	ix.setState(StateParsing)
	var allNodes []types.CodeNode
	var fileResults []fileParseResult
	for _, c := range toParse {
		if err := ctx.Err(); err != nil {
			return summary, cgerrors.NewCancellationError("parsing")
		}
		content, err := os.ReadFile(c.Path)
		if err != nil {
			summary.ParseErrors++
			debug.LogIndexing("read %s for parsing: %v\n", c.Path, err)
			continue
		}
		result, err := ix.parser.Parse(ctx, c.Path, content)
		if err != nil {
			summary.ParseErrors++
			debug.LogIndexing("parse %s: %v\n", c.Path, err)
			continue
		}
		summary.ParseErrors += len(result.ParseErrors)
		for _, n := range result.Nodes {
			ix.graph.InsertNode(n)
			allNodes = append(allNodes, n)
		}
		fileResults = append(fileResults, fileParseResult{change: c, parse: result})
	}

	ix.setState(StateSymbols)
	// The adjacency map is the standing project symbol set: deleted and
	// modified files' old nodes were already swept by enqueueFileDeletion
	// before parsing, new nodes were just inserted above, and Unchanged
	// files' nodes were never touched. Rebuilding the symbol map from it
	// (rather than from just this run's toParse nodes) is the diff §4.6
	// calls for, so a file untouched by this run still resolves against
	// symbols it references that live in other, unchanged files.
	symbols := symbolmap.New()
	for _, id := range ix.graph.AllNodeIDs() {
		if n, ok := ix.graph.GetNode(id); ok {
			symbols.Add(n)
		}
	}

	ix.setState(StateResolving)
	res := resolver.New(symbols, ix.cfg.Resolver.TieBreak, ix.semanticConfig())
	fromNode := func(id types.NodeID) (types.CodeNode, bool) { return ix.graph.GetNode(id) }

	var resolvedEdges []types.CodeEdge
	var counters resolver.Counters
	for _, fr := range fileResults {
		if err := ctx.Err(); err != nil {
			return summary, cgerrors.NewCancellationError("resolving")
		}
		raw := make([]resolver.RawEdge, 0, len(fr.parse.Edges))
		for _, e := range fr.parse.Edges {
			raw = append(raw, resolver.RawEdge{From: e.FromID, Target: e.Target, Kind: e.Kind})
		}
		out := res.ResolveFile(ctx, raw, fromNode)
		resolvedEdges = append(resolvedEdges, out.Resolved...)
		counters.Exact += out.Counters.Exact
		counters.Normalized += out.Counters.Normalized
		counters.ShortName += out.Counters.ShortName
		counters.Pattern += out.Counters.Pattern
		counters.Semantic += out.Counters.Semantic
		counters.Unresolved += out.Counters.Unresolved
	}
	for _, e := range resolvedEdges {
		ix.graph.AddEdge(e)
	}
	summary.ResolvedRatio = counters.ResolvedRatio()

	ix.setState(StateEmbedding)
	var symbolEmbeddings []types.SymbolEmbedding
	if len(allNodes) > 0 {
		texts := make([]string, len(allNodes))
		for i, n := range allNodes {
			texts[i] = n.Content
			if texts[i] == "" {
				texts[i] = n.Name
			}
		}
		vectors, err := ix.embed.Embed(ctx, texts)
		if err != nil {
			debug.LogIndexing("embedding batch failed: %v\n", err)
		} else {
			for i := range allNodes {
				if i < len(vectors) {
					allNodes[i].Embedding = vectors[i]
				}
			}
			if ix.cfg.Semantic.Enabled {
				for i, n := range allNodes {
					symbolEmbeddings = append(symbolEmbeddings, types.SymbolEmbedding{
						ProjectID: projectID,
						SymbolKey: types.SymbolKey(symbolmap.CanonicalFQName(n)),
						Kind:      types.SymbolEmbeddingKnown,
						Embedding: vectors[i],
					})
				}
			}
		}
	}

	ix.setState(StatePersisting)
	if err := ix.persist(ctx, projectID, allNodes, resolvedEdges, symbolEmbeddings, fileResults, scannedByPath); err != nil {
		return summary, err
	}
	persistSummary := ix.wp.Flush(ctx)
	summary.WriteFailures += persistSummary.Failures
	if persistSummary.Failures > 0 && ix.cfg.Force {
		return summary, cgerrors.NewMultiError(failedErrs(persistSummary))
	}

	summary.Nodes = ix.graph.NodeCount()
	summary.Edges = ix.graph.EdgeCount()

	ix.setState(StateVerifying)
	counts, err := ix.backend.CountByProject(ctx, projectID)
	if err != nil {
		debug.LogIndexing("verify: count query failed: %v\n", err)
	} else if counts.Nodes != summary.Nodes || counts.Edges != summary.Edges {
		summary.VerifyMismatch = true
		if ix.cfg.Force {
			return summary, cgerrors.NewStorageError("verify", false, fmt.Errorf(
				"row count mismatch after persisting: stored nodes=%d edges=%d, expected nodes=%d edges=%d",
				counts.Nodes, counts.Edges, summary.Nodes, summary.Edges))
		}
		debug.LogIndexing("row count mismatch after persisting (stored nodes=%d edges=%d, expected nodes=%d edges=%d)\n",
			counts.Nodes, counts.Edges, summary.Nodes, summary.Edges)
	}

	return summary, nil
}

type fileParseResult struct {
	change changedetect.FileChange
	parse  parserapi.ParseResult
}

// enqueueFileDeletion enqueues the strict edges -> nodes -> symbol_embeddings
// -> file_metadata deletion order of §4.6 for one file, and mirrors the
// deletion in the in-memory adjacency map so Parsing never sees stale
// nodes for a Modified file.
func (ix *Indexer) enqueueFileDeletion(ctx context.Context, projectID, filePath string) error {
	if err := ix.wp.Enqueue(ctx, writer.Batch{Kind: writer.OpDeleteByFile, ProjectID: projectID, FilePath: filePath}); err != nil {
		return err
	}
	// DeleteByFile on the backend is a single predicate covering all four
	// tables in the mandated order; the in-memory graph mirrors that by
	// sweeping every node this file owns.
	for _, id := range ix.graph.NodeIDsForFile(filePath) {
		ix.graph.SweepEdges(id)
		ix.graph.RemoveNode(id)
	}
	return nil
}

func (ix *Indexer) cleanProjectData(ctx context.Context, projectID string) error {
	if err := ix.wp.Enqueue(ctx, writer.Batch{Kind: writer.OpDeleteByProject, ProjectID: projectID}); err != nil {
		return err
	}
	summary := ix.wp.Flush(ctx)
	if summary.Failures > 0 {
		return cgerrors.NewMultiError(failedErrs(summary))
	}
	for _, id := range ix.graph.AllNodeIDs() {
		ix.graph.SweepEdges(id)
		ix.graph.RemoveNode(id)
	}
	return nil
}

func (ix *Indexer) persist(ctx context.Context, projectID string, nodes []types.CodeNode, edges []types.CodeEdge, symbolEmbeddings []types.SymbolEmbedding, fileResults []fileParseResult, scannedByPath map[string]changedetect.ScannedFile) error {
	if len(nodes) > 0 {
		if err := ix.wp.Enqueue(ctx, writer.Batch{Kind: writer.OpUpsertNodes, ProjectID: projectID, Nodes: nodes}); err != nil {
			return err
		}
	}
	if len(edges) > 0 {
		if err := ix.wp.Enqueue(ctx, writer.Batch{Kind: writer.OpUpsertEdges, ProjectID: projectID, Edges: edges}); err != nil {
			return err
		}
	}
	if len(symbolEmbeddings) > 0 {
		if err := ix.wp.Enqueue(ctx, writer.Batch{Kind: writer.OpUpsertSymbolEmbeddings, ProjectID: projectID, SymbolEmbeddings: symbolEmbeddings}); err != nil {
			return err
		}
	}
	now := time.Now()
	for _, fr := range fileResults {
		scanned := scannedByPath[fr.change.Path]
		meta := types.FileMetadata{
			FilePath:      fr.change.Path,
			ProjectID:     projectID,
			ContentHash:   fr.change.ContentHash,
			ModifiedAt:    time.Unix(0, scanned.ModifiedAt),
			FileSize:      scanned.Size,
			LastIndexedAt: now,
			NodeCount:     len(fr.parse.Nodes),
			EdgeCount:     len(fr.parse.Edges),
			Language:      ix.parser.Language(),
			ParseErrors:   len(fr.parse.ParseErrors),
		}
		if err := ix.wp.Enqueue(ctx, writer.Batch{Kind: writer.OpUpsertFileMetadata, ProjectID: projectID, FilePath: fr.change.Path, FileMetadata: &meta}); err != nil {
			return err
		}
	}

	projMeta := types.ProjectMetadata{
		ProjectID:          projectID,
		RootPath:           ix.cfg.Project.Root,
		PrimaryLanguage:    ix.parser.Language(),
		FileCount:          len(fileResults),
		NodeCount:          ix.graph.NodeCount(),
		EdgeCount:          ix.graph.EdgeCount(),
		EmbeddingDimension: ix.cfg.Embedding.Dimension,
		LastIndexedAt:      now,
	}
	return ix.wp.Enqueue(ctx, writer.Batch{Kind: writer.OpUpsertProjectMetadata, ProjectID: projectID, ProjectMetadata: &projMeta})
}

func (ix *Indexer) semanticConfig() resolver.SemanticConfig {
	var provider resolver.EmbedProvider
	if ix.cfg.Semantic.Enabled {
		provider = ix.embed
	}
	return resolver.SemanticConfig{
		Enabled:            ix.cfg.Semantic.Enabled,
		Threshold:          ix.cfg.Semantic.Threshold,
		Gap:                ix.cfg.Semantic.Gap,
		EmbeddingDimension: ix.cfg.Embedding.Dimension,
		Provider:           provider,
		Searcher:           ix.searcher,
	}
}

func failedErrs(s writer.Summary) []error {
	errs := make([]error, 0, len(s.Failed))
	for _, f := range s.Failed {
		errs = append(errs, f.Err)
	}
	return errs
}
