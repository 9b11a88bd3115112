// Package types defines the core data model of the code graph: nodes,
// edges, and the per-project metadata rows that track indexing state.
package types

import "time"

// FileID identifies a file within a single project's in-memory index.
// It is assigned by the indexer on first sight of a file and is stable
// only for the lifetime of one process; it is not part of the 128-bit
// stable NodeID.
type FileID uint32

// NodeID is the opaque, stable identifier of a CodeNode. It is stable
// across reindex runs as long as (project_id, file_path, start_line,
// start_col, name, kind) is unchanged — see internal/idcodec for the
// derivation and encoding.
type NodeID [16]byte

// IsZero reports whether the id was never assigned.
func (id NodeID) IsZero() bool {
	return id == NodeID{}
}

// Language enumerates the source languages a parser may report.
type Language string

const (
	LanguageGo         Language = "go"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguagePython     Language = "python"
	LanguageRust       Language = "rust"
	LanguageJava       Language = "java"
	LanguageCSharp     Language = "csharp"
	LanguagePHP        Language = "php"
	LanguageOther      Language = "other"
)

// NodeKind is the kind of symbol a CodeNode represents.
type NodeKind string

const (
	KindFunction  NodeKind = "function"
	KindMethod    NodeKind = "method"
	KindClass     NodeKind = "class"
	KindStruct    NodeKind = "struct"
	KindEnum      NodeKind = "enum"
	KindInterface NodeKind = "interface" // covers trait/interface
	KindModule    NodeKind = "module"
	KindVariable  NodeKind = "variable"
	KindConstant  NodeKind = "constant"
	KindMacro     NodeKind = "macro"
	KindOther     NodeKind = "other"
)

// EdgeKind is the kind of relationship a CodeEdge represents.
type EdgeKind string

const (
	EdgeCalls      EdgeKind = "calls"
	EdgeImports    EdgeKind = "imports"
	EdgeInherits   EdgeKind = "inherits"
	EdgeContains   EdgeKind = "contains"
	EdgeReferences EdgeKind = "references"
	EdgeUses       EdgeKind = "uses"
	EdgeOther      EdgeKind = "other"
)

// CodeNode is a single symbol definition extracted from a source file.
//
// Invariants: (ProjectID, FilePath, StartLine, StartCol, Name, Kind)
// uniquely identifies a node within a project. Embedding, when set,
// must have length equal to ProjectMetadata.EmbeddingDimension.
type CodeNode struct {
	ID         NodeID
	ProjectID  string
	Name       string
	Kind       NodeKind
	Language   Language
	FilePath   string // canonicalized absolute path
	StartLine  int
	EndLine    int
	StartCol   int
	EndCol     int
	Content    string // optional source slice, indexer policy (config.IncludeContent)
	Embedding  []float32
	Complexity *float64
	Metadata   map[string]any
}

// CodeEdge is a resolved relationship between two nodes in the same
// project. Unresolved raw edges (symbolic target strings) are never
// represented by this type — see pkg/resolver.RawEdge.
//
// Invariants: From and To must reference existing nodes in the same
// project; (From, To, Kind) is unique.
type CodeEdge struct {
	From     NodeID
	To       NodeID
	Kind     EdgeKind
	Weight   float64
	Metadata map[string]any
}

// FileMetadata tracks the last-indexed state of one file within a
// project, used by the change detector to classify Added / Modified /
// Deleted / Unchanged.
//
// Invariants: unique on (ProjectID, FilePath); ContentHash corresponds
// to the bytes hashed at LastIndexedAt.
type FileMetadata struct {
	FilePath      string
	ProjectID     string
	ContentHash   [32]byte
	ModifiedAt    time.Time
	FileSize      int64
	LastIndexedAt time.Time
	NodeCount     int
	EdgeCount     int
	Language      Language
	ParseErrors   int
}

// ProjectMetadata is the single summary row for one project.
type ProjectMetadata struct {
	ProjectID          string
	RootPath           string
	PrimaryLanguage    Language
	FileCount          int
	NodeCount          int
	EdgeCount          int
	EmbeddingDimension int
	LastIndexedAt      time.Time
}

// SymbolKey is the canonical FQN or short name a SymbolEmbedding is
// keyed by; used only by the resolver's Semantic stage.
type SymbolKey string

// SymbolEmbeddingKind distinguishes embeddings of symbols the resolver
// already knows about from embeddings kept for unresolved targets.
type SymbolEmbeddingKind string

const (
	SymbolEmbeddingKnown      SymbolEmbeddingKind = "known"
	SymbolEmbeddingUnresolved SymbolEmbeddingKind = "unresolved"
)

// DeleteCounts reports how many rows a delete-by-predicate operation
// removed from each table, used by the indexer's Verifying phase to
// confirm deletions actually landed.
type DeleteCounts struct {
	Nodes            int
	Edges            int
	SymbolEmbeddings int
	FileMetadata     int
}

// TableCounts reports the current row count per table for a project,
// compared against the indexer's expected counters at the end of a
// reindex (§4.6 Verifying phase).
type TableCounts struct {
	Nodes            int
	Edges            int
	SymbolEmbeddings int
	FileMetadata     int
}

// SymbolEmbedding is a per-dimension vector representation of a symbol
// key, used for semantic edge resolution when exact/normalized/pattern
// matching fails.
//
// Invariants: len(Embedding) must equal the active
// ProjectMetadata.EmbeddingDimension; storage keeps one column per
// supported dimension and records land in the column matching their
// length.
type SymbolEmbedding struct {
	ProjectID string
	SymbolKey SymbolKey
	Kind      SymbolEmbeddingKind
	Embedding []float32
}
