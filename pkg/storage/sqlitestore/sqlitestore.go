// Package sqlitestore implements storage.Backend over modernc.org/sqlite
// (pure-Go, no cgo) for relational tables and github.com/coder/hnsw for
// approximate nearest-neighbor symbol search. Schema and pragma setup
// follow the WAL/busy-timeout pattern of the pack's SQLiteBM25Index;
// the per-dimension vector index follows its HNSWStore sibling, with
// one hnsw.Graph kept per embedding dimension since a project may hold
// symbol embeddings produced by more than one provider.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coder/hnsw"
	_ "modernc.org/sqlite"

	"github.com/fenwick-labs/codegraph/internal/cgerrors"
	"github.com/fenwick-labs/codegraph/internal/idcodec"
	"github.com/fenwick-labs/codegraph/internal/types"
)

// Store implements storage.Backend. A single *sql.DB connection is
// used (SetMaxOpenConns(1)) since modernc.org/sqlite serializes writes
// anyway and WAL mode makes concurrent readers safe without a pool.
type Store struct {
	db *sql.DB

	vecMu   sync.RWMutex
	vectors map[int]*vectorIndex // embedding dimension -> ANN index
}

// vectorIndex pairs an hnsw graph with the string<->uint64 symbol key
// mapping it needs, mirroring HNSWStore's idMap/keyMap/nextKey shape.
type vectorIndex struct {
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64 // "projectID\x1fsymbolKey" -> key
	keyMap  map[uint64]string
	nextKey uint64
}

func newVectorIndex() *vectorIndex {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.Ml = 0.25
	g.EfSearch = 20
	return &vectorIndex{graph: g, idMap: make(map[string]uint64), keyMap: make(map[uint64]string)}
}

const vecKeySep = '\x1f'

func vecKey(projectID string, key types.SymbolKey) string {
	return projectID + string(vecKeySep) + string(key)
}

// Open creates or opens a SQLite-backed store at path. path == ":memory:"
// opens a private in-memory database, used by tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, cgerrors.NewIoError("mkdir", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, cgerrors.NewStorageError("open", false, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, cgerrors.NewStorageError("pragma", false, err)
		}
	}

	s := &Store{db: db, vectors: make(map[int]*vectorIndex)}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.loadVectors(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		language TEXT NOT NULL,
		file_path TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		start_col INTEGER NOT NULL,
		end_col INTEGER NOT NULL,
		content TEXT,
		embedding BLOB,
		complexity REAL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_nodes_project ON nodes(project_id);
	CREATE INDEX IF NOT EXISTS idx_nodes_file ON nodes(project_id, file_path);

	CREATE TABLE IF NOT EXISTS edges (
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		project_id TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 0,
		metadata TEXT,
		PRIMARY KEY (from_id, to_id, kind)
	);
	CREATE INDEX IF NOT EXISTS idx_edges_project ON edges(project_id);
	CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id);
	CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id);

	CREATE TABLE IF NOT EXISTS file_metadata (
		project_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		content_hash BLOB NOT NULL,
		modified_at INTEGER NOT NULL,
		file_size INTEGER NOT NULL,
		last_indexed_at INTEGER NOT NULL,
		node_count INTEGER NOT NULL,
		edge_count INTEGER NOT NULL,
		language TEXT NOT NULL,
		parse_errors INTEGER NOT NULL,
		PRIMARY KEY (project_id, file_path)
	);

	CREATE TABLE IF NOT EXISTS project_metadata (
		project_id TEXT PRIMARY KEY,
		root_path TEXT NOT NULL,
		primary_language TEXT NOT NULL,
		file_count INTEGER NOT NULL,
		node_count INTEGER NOT NULL,
		edge_count INTEGER NOT NULL,
		embedding_dimension INTEGER NOT NULL,
		last_indexed_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS symbol_embeddings (
		project_id TEXT NOT NULL,
		symbol_key TEXT NOT NULL,
		dimension INTEGER NOT NULL,
		kind TEXT NOT NULL,
		embedding BLOB NOT NULL,
		PRIMARY KEY (project_id, symbol_key, dimension)
	);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return cgerrors.NewStorageError("init_schema", false, err)
	}
	return nil
}

// loadVectors rebuilds the in-memory hnsw graphs from the
// symbol_embeddings table, so a reopened store can resume serving
// NearestSymbols without a full reindex.
func (s *Store) loadVectors() error {
	rows, err := s.db.Query(`SELECT project_id, symbol_key, dimension, embedding FROM symbol_embeddings`)
	if err != nil {
		return cgerrors.NewStorageError("load_vectors", false, err)
	}
	defer rows.Close()

	s.vecMu.Lock()
	defer s.vecMu.Unlock()
	for rows.Next() {
		var projectID, symbolKey string
		var dim int
		var blob []byte
		if err := rows.Scan(&projectID, &symbolKey, &dim, &blob); err != nil {
			return cgerrors.NewStorageError("load_vectors", false, err)
		}
		vec := decodeVector(blob)
		s.addToIndex(dim, projectID, types.SymbolKey(symbolKey), vec)
	}
	return rows.Err()
}

func (s *Store) addToIndex(dim int, projectID string, key types.SymbolKey, vec []float32) {
	vi, ok := s.vectors[dim]
	if !ok {
		vi = newVectorIndex()
		s.vectors[dim] = vi
	}
	k := vecKey(projectID, key)
	if existing, dup := vi.idMap[k]; dup {
		delete(vi.keyMap, existing)
	}
	nk := vi.nextKey
	vi.nextKey++
	vi.graph.Add(hnsw.MakeNode(nk, vec))
	vi.idMap[k] = nk
	vi.keyMap[nk] = k
}

// encodeVector packs a float32 slice into a little-endian byte blob
// for the embedding/symbol_embeddings BLOB columns.
func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func encodeMetadata(m map[string]any) any {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return string(b)
}

func (s *Store) UpsertNodes(ctx context.Context, projectID string, nodes []types.CodeNode) error {
	if len(nodes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cgerrors.NewStorageError("upsert_nodes", true, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (id, project_id, name, kind, language, file_path, start_line, end_line, start_col, end_col, content, embedding, complexity, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, kind=excluded.kind, language=excluded.language,
			file_path=excluded.file_path, start_line=excluded.start_line, end_line=excluded.end_line,
			start_col=excluded.start_col, end_col=excluded.end_col, content=excluded.content,
			embedding=excluded.embedding, complexity=excluded.complexity, metadata=excluded.metadata
	`)
	if err != nil {
		return cgerrors.NewStorageError("upsert_nodes", true, err)
	}
	defer stmt.Close()

	for _, n := range nodes {
		var embedding any
		if len(n.Embedding) > 0 {
			embedding = encodeVector(n.Embedding)
		}
		if _, err := stmt.ExecContext(ctx, idcodec.EncodeNodeID(n.ID), projectID, n.Name, string(n.Kind),
			string(n.Language), n.FilePath, n.StartLine, n.EndLine, n.StartCol, n.EndCol,
			n.Content, embedding, n.Complexity, encodeMetadata(n.Metadata)); err != nil {
			return cgerrors.NewStorageError("upsert_nodes", true, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return cgerrors.NewStorageError("upsert_nodes", true, err)
	}
	return nil
}

func (s *Store) UpsertEdges(ctx context.Context, projectID string, edges []types.CodeEdge) error {
	if len(edges) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cgerrors.NewStorageError("upsert_edges", true, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (from_id, to_id, kind, project_id, weight, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(from_id, to_id, kind) DO UPDATE SET weight=excluded.weight, metadata=excluded.metadata
	`)
	if err != nil {
		return cgerrors.NewStorageError("upsert_edges", true, err)
	}
	defer stmt.Close()

	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, idcodec.EncodeNodeID(e.From), idcodec.EncodeNodeID(e.To),
			string(e.Kind), projectID, e.Weight, encodeMetadata(e.Metadata)); err != nil {
			return cgerrors.NewStorageError("upsert_edges", true, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return cgerrors.NewStorageError("upsert_edges", true, err)
	}
	return nil
}

func (s *Store) UpsertSymbolEmbeddings(ctx context.Context, projectID string, embeddings []types.SymbolEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cgerrors.NewStorageError("upsert_symbol_embeddings", true, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbol_embeddings (project_id, symbol_key, dimension, kind, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id, symbol_key, dimension) DO UPDATE SET kind=excluded.kind, embedding=excluded.embedding
	`)
	if err != nil {
		return cgerrors.NewStorageError("upsert_symbol_embeddings", true, err)
	}
	defer stmt.Close()

	for _, e := range embeddings {
		if _, err := stmt.ExecContext(ctx, projectID, string(e.SymbolKey), len(e.Embedding), string(e.Kind), encodeVector(e.Embedding)); err != nil {
			return cgerrors.NewStorageError("upsert_symbol_embeddings", true, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return cgerrors.NewStorageError("upsert_symbol_embeddings", true, err)
	}

	s.vecMu.Lock()
	for _, e := range embeddings {
		s.addToIndex(len(e.Embedding), projectID, e.SymbolKey, e.Embedding)
	}
	s.vecMu.Unlock()
	return nil
}

func (s *Store) UpsertFileMetadata(ctx context.Context, meta types.FileMetadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_metadata (project_id, file_path, content_hash, modified_at, file_size, last_indexed_at, node_count, edge_count, language, parse_errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, file_path) DO UPDATE SET
			content_hash=excluded.content_hash, modified_at=excluded.modified_at, file_size=excluded.file_size,
			last_indexed_at=excluded.last_indexed_at, node_count=excluded.node_count, edge_count=excluded.edge_count,
			language=excluded.language, parse_errors=excluded.parse_errors
	`, meta.ProjectID, meta.FilePath, meta.ContentHash[:], meta.ModifiedAt.UnixNano(), meta.FileSize,
		meta.LastIndexedAt.UnixNano(), meta.NodeCount, meta.EdgeCount, string(meta.Language), meta.ParseErrors)
	if err != nil {
		return cgerrors.NewStorageError("upsert_file_metadata", true, err)
	}
	return nil
}

func (s *Store) UpsertProjectMetadata(ctx context.Context, meta types.ProjectMetadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_metadata (project_id, root_path, primary_language, file_count, node_count, edge_count, embedding_dimension, last_indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			root_path=excluded.root_path, primary_language=excluded.primary_language, file_count=excluded.file_count,
			node_count=excluded.node_count, edge_count=excluded.edge_count,
			embedding_dimension=excluded.embedding_dimension, last_indexed_at=excluded.last_indexed_at
	`, meta.ProjectID, meta.RootPath, string(meta.PrimaryLanguage), meta.FileCount, meta.NodeCount,
		meta.EdgeCount, meta.EmbeddingDimension, meta.LastIndexedAt.UnixNano())
	if err != nil {
		return cgerrors.NewStorageError("upsert_project_metadata", true, err)
	}
	return nil
}

// DeleteByFile removes, in the strict order the Deleting phase of §4.6
// requires, every edge touching the file's nodes, then the nodes
// themselves, then any symbol embeddings keyed by those nodes' fully
// qualified names, then the file's own metadata row.
func (s *Store) DeleteByFile(ctx context.Context, projectID, filePath string) (types.DeleteCounts, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.DeleteCounts{}, cgerrors.NewStorageError("delete_by_file", true, err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id, name FROM nodes WHERE project_id = ? AND file_path = ?`, projectID, filePath)
	if err != nil {
		return types.DeleteCounts{}, cgerrors.NewStorageError("delete_by_file", true, err)
	}
	var nodeIDs, fqNames []string
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return types.DeleteCounts{}, cgerrors.NewStorageError("delete_by_file", true, err)
		}
		nodeIDs = append(nodeIDs, id)
		fqNames = append(fqNames, filePath+"::"+name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return types.DeleteCounts{}, cgerrors.NewStorageError("delete_by_file", true, err)
	}

	var counts types.DeleteCounts
	if len(nodeIDs) > 0 {
		placeholders, args := inClause(nodeIDs)
		edgeRes, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM edges WHERE from_id IN (%s) OR to_id IN (%s)`, placeholders, placeholders),
			append(append([]any{}, args...), args...)...)
		if err != nil {
			return types.DeleteCounts{}, cgerrors.NewStorageError("delete_by_file", true, err)
		}
		if n, err := edgeRes.RowsAffected(); err == nil {
			counts.Edges = int(n)
		}

		nodeRes, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM nodes WHERE id IN (%s)`, placeholders), args...)
		if err != nil {
			return types.DeleteCounts{}, cgerrors.NewStorageError("delete_by_file", true, err)
		}
		if n, err := nodeRes.RowsAffected(); err == nil {
			counts.Nodes = int(n)
		}

		fqPlaceholders, fqArgs := inClause(fqNames)
		symRes, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM symbol_embeddings WHERE project_id = ? AND symbol_key IN (%s)`, fqPlaceholders),
			append([]any{projectID}, fqArgs...)...)
		if err != nil {
			return types.DeleteCounts{}, cgerrors.NewStorageError("delete_by_file", true, err)
		}
		if n, err := symRes.RowsAffected(); err == nil {
			counts.SymbolEmbeddings = int(n)
		}
	}

	metaRes, err := tx.ExecContext(ctx, `DELETE FROM file_metadata WHERE project_id = ? AND file_path = ?`, projectID, filePath)
	if err != nil {
		return types.DeleteCounts{}, cgerrors.NewStorageError("delete_by_file", true, err)
	}
	if n, err := metaRes.RowsAffected(); err == nil {
		counts.FileMetadata = int(n)
	}

	if err := tx.Commit(); err != nil {
		return types.DeleteCounts{}, cgerrors.NewStorageError("delete_by_file", true, err)
	}

	if len(fqNames) > 0 {
		s.removeFromVectors(projectID, fqNames)
	}
	return counts, nil
}

// DeleteByProject wipes every table's rows for projectID, used by the
// indexer's forced-reindex path before reparsing from scratch.
func (s *Store) DeleteByProject(ctx context.Context, projectID string) (types.DeleteCounts, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.DeleteCounts{}, cgerrors.NewStorageError("delete_by_project", true, err)
	}
	defer func() { _ = tx.Rollback() }()

	var counts types.DeleteCounts
	edgeRes, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE project_id = ?`, projectID)
	if err != nil {
		return types.DeleteCounts{}, cgerrors.NewStorageError("delete_by_project", true, err)
	}
	if n, err := edgeRes.RowsAffected(); err == nil {
		counts.Edges = int(n)
	}

	nodeRes, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE project_id = ?`, projectID)
	if err != nil {
		return types.DeleteCounts{}, cgerrors.NewStorageError("delete_by_project", true, err)
	}
	if n, err := nodeRes.RowsAffected(); err == nil {
		counts.Nodes = int(n)
	}

	symRows, err := tx.QueryContext(ctx, `SELECT symbol_key FROM symbol_embeddings WHERE project_id = ?`, projectID)
	var symKeys []string
	if err == nil {
		for symRows.Next() {
			var k string
			if scanErr := symRows.Scan(&k); scanErr == nil {
				symKeys = append(symKeys, k)
			}
		}
		symRows.Close()
	}
	symDelRes, err := tx.ExecContext(ctx, `DELETE FROM symbol_embeddings WHERE project_id = ?`, projectID)
	if err != nil {
		return types.DeleteCounts{}, cgerrors.NewStorageError("delete_by_project", true, err)
	}
	if n, err := symDelRes.RowsAffected(); err == nil {
		counts.SymbolEmbeddings = int(n)
	}

	metaRes, err := tx.ExecContext(ctx, `DELETE FROM file_metadata WHERE project_id = ?`, projectID)
	if err != nil {
		return types.DeleteCounts{}, cgerrors.NewStorageError("delete_by_project", true, err)
	}
	if n, err := metaRes.RowsAffected(); err == nil {
		counts.FileMetadata = int(n)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM project_metadata WHERE project_id = ?`, projectID); err != nil {
		return types.DeleteCounts{}, cgerrors.NewStorageError("delete_by_project", true, err)
	}

	if err := tx.Commit(); err != nil {
		return types.DeleteCounts{}, cgerrors.NewStorageError("delete_by_project", true, err)
	}

	if len(symKeys) > 0 {
		s.removeFromVectors(projectID, symKeys)
	}
	return counts, nil
}

func (s *Store) removeFromVectors(projectID string, symbolKeys []string) {
	s.vecMu.Lock()
	defer s.vecMu.Unlock()
	for _, vi := range s.vectors {
		for _, key := range symbolKeys {
			k := vecKey(projectID, types.SymbolKey(key))
			if nk, ok := vi.idMap[k]; ok {
				// Lazy deletion, matching the pack's HNSWStore: coder/hnsw
				// misbehaves when the last node in a graph is deleted, so
				// the mapping is orphaned rather than removed from the graph.
				delete(vi.keyMap, nk)
				delete(vi.idMap, k)
			}
		}
	}
}

func (s *Store) LoadFileMetadata(ctx context.Context, projectID string) (map[string]types.FileMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_path, content_hash, modified_at, file_size, last_indexed_at, node_count, edge_count, language, parse_errors
		FROM file_metadata WHERE project_id = ?
	`, projectID)
	if err != nil {
		return nil, cgerrors.NewStorageError("load_file_metadata", true, err)
	}
	defer rows.Close()

	out := make(map[string]types.FileMetadata)
	for rows.Next() {
		var meta types.FileMetadata
		var hash []byte
		var modifiedAt, lastIndexedAt int64
		var language string
		if err := rows.Scan(&meta.FilePath, &hash, &modifiedAt, &meta.FileSize, &lastIndexedAt,
			&meta.NodeCount, &meta.EdgeCount, &language, &meta.ParseErrors); err != nil {
			return nil, cgerrors.NewStorageError("load_file_metadata", true, err)
		}
		copy(meta.ContentHash[:], hash)
		meta.ProjectID = projectID
		meta.ModifiedAt = time.Unix(0, modifiedAt)
		meta.LastIndexedAt = time.Unix(0, lastIndexedAt)
		meta.Language = types.Language(language)
		out[meta.FilePath] = meta
	}
	return out, rows.Err()
}

func (s *Store) LoadProjectMetadata(ctx context.Context, projectID string) (types.ProjectMetadata, bool, error) {
	var meta types.ProjectMetadata
	var language string
	var lastIndexedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT project_id, root_path, primary_language, file_count, node_count, edge_count, embedding_dimension, last_indexed_at
		FROM project_metadata WHERE project_id = ?
	`, projectID).Scan(&meta.ProjectID, &meta.RootPath, &language, &meta.FileCount, &meta.NodeCount,
		&meta.EdgeCount, &meta.EmbeddingDimension, &lastIndexedAt)
	if err == sql.ErrNoRows {
		return types.ProjectMetadata{}, false, nil
	}
	if err != nil {
		return types.ProjectMetadata{}, false, cgerrors.NewStorageError("load_project_metadata", true, err)
	}
	meta.PrimaryLanguage = types.Language(language)
	meta.LastIndexedAt = time.Unix(0, lastIndexedAt)
	return meta, true, nil
}

func (s *Store) CountByProject(ctx context.Context, projectID string) (types.TableCounts, error) {
	var counts types.TableCounts
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE project_id = ?`, projectID).Scan(&counts.Nodes); err != nil {
		return types.TableCounts{}, cgerrors.NewStorageError("count_by_project", true, err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges WHERE project_id = ?`, projectID).Scan(&counts.Edges); err != nil {
		return types.TableCounts{}, cgerrors.NewStorageError("count_by_project", true, err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbol_embeddings WHERE project_id = ?`, projectID).Scan(&counts.SymbolEmbeddings); err != nil {
		return types.TableCounts{}, cgerrors.NewStorageError("count_by_project", true, err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_metadata WHERE project_id = ?`, projectID).Scan(&counts.FileMetadata); err != nil {
		return types.TableCounts{}, cgerrors.NewStorageError("count_by_project", true, err)
	}
	return counts, nil
}

// NearestSymbols serves the resolver's Semantic stage: an approximate
// k-nearest-neighbor search over the dim-dimensional symbol embeddings
// recorded for projectID, via the in-memory hnsw graph for that
// dimension. Embeddings are fetched back from SQLite by symbol key
// rather than cached alongside the graph, keeping the vector index
// itself small.
func (s *Store) NearestSymbols(ctx context.Context, projectID string, dim int, query []float32, k int) ([]types.SymbolEmbedding, error) {
	s.vecMu.RLock()
	vi, ok := s.vectors[dim]
	if !ok || vi.graph.Len() == 0 {
		s.vecMu.RUnlock()
		return nil, nil
	}
	// Over-fetch since the graph is shared across projects and carries
	// lazily-deleted orphans (coder/hnsw can't drop its last node
	// safely), then filter down to this project's live candidates below.
	breadth := vi.graph.Len()
	if breadth > k*8 {
		breadth = k * 8
	}
	nodes := vi.graph.Search(query, breadth)
	keyMap := vi.keyMap
	s.vecMu.RUnlock()

	var candidates []string
	for _, n := range nodes {
		full, ok := keyMap[n.Key]
		if !ok {
			continue
		}
		sep := -1
		for i := 0; i < len(full); i++ {
			if full[i] == vecKeySep {
				sep = i
				break
			}
		}
		if sep < 0 || full[:sep] != projectID {
			continue
		}
		candidates = append(candidates, full[sep+1:])
		if len(candidates) >= k {
			break
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	placeholders, args := inClause(candidates)
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT symbol_key, kind, embedding FROM symbol_embeddings WHERE project_id = ? AND dimension = ? AND symbol_key IN (%s)`, placeholders),
		append([]any{projectID, dim}, args...)...)
	if err != nil {
		return nil, cgerrors.NewStorageError("nearest_symbols", true, err)
	}
	defer rows.Close()

	var results []types.SymbolEmbedding
	for rows.Next() {
		var symbolKey, kind string
		var blob []byte
		if err := rows.Scan(&symbolKey, &kind, &blob); err != nil {
			return nil, cgerrors.NewStorageError("nearest_symbols", true, err)
		}
		results = append(results, types.SymbolEmbedding{
			ProjectID: projectID,
			SymbolKey: types.SymbolKey(symbolKey),
			Kind:      types.SymbolEmbeddingKind(kind),
			Embedding: decodeVector(blob),
		})
	}
	return results, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func inClause(values []string) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	return strings.Join(placeholders, ","), args
}
