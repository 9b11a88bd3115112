package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FallsBackToDefaultsWhenKDLAbsent(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, 50, cfg.Watch.DebounceMs)
	assert.Equal(t, TieBreakLexicographic, cfg.Resolver.TieBreak)
}

func TestLoad_ParsesKDLOverrides(t *testing.T) {
	dir := t.TempDir()
	kdlContent := `
project {
    id "demo"
}
index {
    languages "go" "python"
    include_content #true
    max_file_size "5MB"
}
embedding {
    provider "deterministic"
    dimension 256
}
semantic_resolution {
    enabled #true
    threshold 0.82
    gap 0.04
}
watch {
    debounce_ms 75
}
writer {
    max_in_flight_batches 32
    batch_size 128
}
resolver {
    tie_break "same_module"
}
exclude "vendor/**" "**/*.min.js"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".codegraph.kdl"), []byte(kdlContent), 0644))

	cfg, err := Load(dir, "")
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Project.ID)
	assert.ElementsMatch(t, []string{"go", "python"}, cfg.Index.Languages)
	assert.True(t, cfg.Index.IncludeContent)
	assert.Equal(t, int64(5*1024*1024), cfg.Index.MaxFileSize)
	assert.Equal(t, 256, cfg.Embedding.Dimension)
	assert.True(t, cfg.Semantic.Enabled)
	assert.InDelta(t, 0.82, cfg.Semantic.Threshold, 0.0001)
	assert.Equal(t, 75, cfg.Watch.DebounceMs)
	assert.Equal(t, 32, cfg.Writer.MaxInFlightBatches)
	assert.Equal(t, TieBreakSameModule, cfg.Resolver.TieBreak)
	assert.Contains(t, cfg.Exclude, "vendor/**")
}

func TestValidate_RejectsNonPositiveDimension(t *testing.T) {
	cfg := Default()
	cfg.Project.Root = "/tmp/proj"
	cfg.Embedding.Dimension = 0

	err := Validate(cfg)
	assert.Error(t, err)
}

func TestValidate_RejectsOutOfRangeThreshold(t *testing.T) {
	cfg := Default()
	cfg.Project.Root = "/tmp/proj"
	cfg.Semantic.Enabled = true
	cfg.Semantic.Threshold = 1.5

	err := Validate(cfg)
	assert.Error(t, err)
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	cfg := Default()
	cfg.Project.Root = "/tmp/proj"
	assert.NoError(t, Validate(cfg))
}
