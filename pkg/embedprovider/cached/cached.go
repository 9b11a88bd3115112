// Package cached wraps any embedprovider.Provider with an LRU cache
// keyed by input string, avoiding redundant embedding calls for
// symbols that reappear across files and reindex runs.
package cached

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fenwick-labs/codegraph/pkg/embedprovider"
)

// DefaultCacheSize matches the teacher's default embedding cache
// sizing (internal/embed/cached.go's DefaultEmbeddingCacheSize).
const DefaultCacheSize = 1000

// Provider decorates an inner embedprovider.Provider with an LRU
// cache. Grounded on the teacher's CachedEmbedder: per-text cache
// lookup on Embed, partial-hit batching on the batch path.
type Provider struct {
	inner embedprovider.Provider
	cache *lru.Cache[string, []float32]
}

// New wraps inner with an LRU cache of the given size (DefaultCacheSize
// if size <= 0).
func New(inner embedprovider.Provider, size int) *Provider {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &Provider{inner: inner, cache: cache}
}

func (p *Provider) Dimension() int { return p.inner.Dimension() }

func (p *Provider) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Embed returns cached vectors where available and calls the inner
// provider only for the remainder, preserving input order.
func (p *Provider) Embed(ctx context.Context, batch []string) ([][]float32, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(batch))
	var missIdx []int
	var missTexts []string

	for i, text := range batch {
		if vec, ok := p.cache.Get(p.cacheKey(text)); ok {
			results[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	computed, err := p.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range missIdx {
		results[idx] = computed[j]
		p.cache.Add(p.cacheKey(missTexts[j]), computed[j])
	}
	return results, nil
}
