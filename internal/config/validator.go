package config

import (
	"fmt"

	"github.com/fenwick-labs/codegraph/internal/cgerrors"
)

// Validate checks a loaded Config against the invariants §6 requires
// before startup (Config-class failures are fatal at startup, never
// per-file).
func Validate(cfg *Config) error {
	if cfg.Project.Root == "" {
		return cgerrors.NewConfigError("project.root", "", fmt.Errorf("project root cannot be empty"))
	}

	if cfg.Embedding.Dimension <= 0 {
		return cgerrors.NewConfigError("embedding.dimension", fmt.Sprint(cfg.Embedding.Dimension),
			fmt.Errorf("embedding dimension must be positive"))
	}

	if cfg.Semantic.Enabled {
		if cfg.Semantic.Threshold <= 0 || cfg.Semantic.Threshold > 1 {
			return cgerrors.NewConfigError("semantic_resolution.threshold", fmt.Sprint(cfg.Semantic.Threshold),
				fmt.Errorf("threshold (tau_sem) must be in (0, 1]"))
		}
		if cfg.Semantic.Gap <= 0 {
			return cgerrors.NewConfigError("semantic_resolution.gap", fmt.Sprint(cfg.Semantic.Gap),
				fmt.Errorf("gap (delta_gap) must be positive"))
		}
	}

	if cfg.Watch.DebounceMs <= 0 {
		return cgerrors.NewConfigError("watch.debounce_ms", fmt.Sprint(cfg.Watch.DebounceMs),
			fmt.Errorf("debounce_ms must be positive"))
	}

	if cfg.Writer.MaxInFlightBatches <= 0 {
		return cgerrors.NewConfigError("writer.max_in_flight_batches", fmt.Sprint(cfg.Writer.MaxInFlightBatches),
			fmt.Errorf("max_in_flight_batches must be positive"))
	}
	if cfg.Writer.BatchSize <= 0 {
		return cgerrors.NewConfigError("writer.batch_size", fmt.Sprint(cfg.Writer.BatchSize),
			fmt.Errorf("batch_size must be positive"))
	}

	switch cfg.Resolver.TieBreak {
	case TieBreakSameFile, TieBreakSameModule, TieBreakLexicographic:
	default:
		return cgerrors.NewConfigError("resolver.tie_break", string(cfg.Resolver.TieBreak),
			fmt.Errorf("unknown tie_break policy"))
	}

	return nil
}
