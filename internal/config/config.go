// Package config defines the typed configuration surface of the
// indexing engine (§6) and loads it from a per-project KDL file,
// falling back to documented defaults when the file is absent.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolverTieBreak selects how the Pattern stage of §4.5 orders
// candidates that tie on longest shared suffix. TieBreakSameFile and
// TieBreakSameModule both prefer a same-file candidate, then a
// same-module one, then the lexicographically smallest canonical FQN.
// TieBreakLexicographic, the default, compares canonical FQNs only and
// gives no preference to same-file or same-module candidates.
type ResolverTieBreak string

const (
	TieBreakSameFile      ResolverTieBreak = "same_file"
	TieBreakSameModule    ResolverTieBreak = "same_module"
	TieBreakLexicographic ResolverTieBreak = "lexicographic"
)

// Config is the full, immutable per-run configuration record. There is
// no process-wide singleton — every reindex is handed its own Config
// value, per §9's "no global mutable state" design note.
type Config struct {
	Project  Project
	Index    Index
	Embedding Embedding
	Semantic Semantic
	Watch    Watch
	Writer   Writer
	Resolver Resolver

	// Force triggers clean_project_data (§4.6) before indexing.
	Force bool

	Include []string
	Exclude []string
}

type Project struct {
	// ID defaults to the absolute canonicalized Root when empty.
	ID   string
	Root string
}

type Index struct {
	Languages      []string
	IncludeContent bool // whether to persist source slices on nodes
	// Rationale: MaxFileSize bounds per-file hashing/parsing memory;
	// files above this are skipped with an Io error rather than risking
	// a multi-hundred-MB read into the parse stage.
	MaxFileSize    int64
	FollowSymlinks bool
}

type Embedding struct {
	// Provider is opaque to the core; selected and constructed by the
	// host from pkg/embedprovider.
	Provider  string
	Dimension int
}

type Semantic struct {
	Enabled bool
	// Threshold is τ_sem: the minimum top-1 similarity score to accept
	// a semantic match.
	Threshold float64
	// Gap is δ_gap: the minimum margin over the second-best score.
	Gap float64
}

type Watch struct {
	// DebounceMs is D in §4.8: the watcher's coalescing window, one
	// window shared by all files (see pkg/watcher).
	DebounceMs int
}

type Writer struct {
	MaxInFlightBatches int
	BatchSize          int
}

type Resolver struct {
	TieBreak ResolverTieBreak
}

// Default returns the documented defaults for every field the spec
// leaves to implementer discretion. Project.Root must still be set by
// the caller.
func Default() *Config {
	return &Config{
		Index: Index{
			Languages:      []string{"go"},
			IncludeContent: false,
			MaxFileSize:    10 * 1024 * 1024,
			FollowSymlinks: false,
		},
		Embedding: Embedding{
			Dimension: 1536,
		},
		Semantic: Semantic{
			Enabled:   false,
			Threshold: 0.80,
			Gap:       0.05,
		},
		Watch: Watch{
			// Rationale: 50ms is short enough that interactive saves feel
			// instant, long enough to coalesce an editor's atomic-rename
			// write sequence (temp file + rename) into one event.
			DebounceMs: 50,
		},
		Writer: Writer{
			MaxInFlightBatches: 64,
			BatchSize:          256,
		},
		Resolver: Resolver{
			TieBreak: TieBreakLexicographic,
		},
		Include: []string{},
		Exclude: []string{},
	}
}

// Load reads configPath (a .codegraph.kdl file) relative to
// projectRoot if it exists, overlaying it onto Default(). A missing
// file is not an error — LoadKDL returns (nil, nil) and Load falls
// back to pure defaults rooted at projectRoot.
func Load(projectRoot, configPath string) (*Config, error) {
	cfg := Default()

	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	cfg.Project.Root = absRoot
	cfg.Project.ID = absRoot

	loaded, err := LoadKDL(configPath, absRoot)
	if err != nil {
		return nil, err
	}
	if loaded != nil {
		cfg = loaded
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// pathExists reports whether path can be stat'ed; LoadKDL uses it to
// detect a missing config file.
func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
