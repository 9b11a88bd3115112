// Package deterministic implements embedprovider.Provider with a
// hash-based embedding: no network, no model, fully reproducible for a
// given input string. Intended for tests and offline runs where the
// semantic resolution stage (§4.5 stage 5) is exercised without a real
// embedding backend.
package deterministic

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// Provider is a pure-Go hash-based embedder, grounded on the teacher
// pack's StaticEmbedder (token + trigram hashing into fixed-size
// buckets, then L2-normalized).
type Provider struct {
	dim int
}

// New returns a deterministic provider producing vectors of length
// dim.
func New(dim int) *Provider {
	if dim <= 0 {
		dim = 256
	}
	return &Provider{dim: dim}
}

func (p *Provider) Dimension() int { return p.dim }

func (p *Provider) Embed(ctx context.Context, batch []string) ([][]float32, error) {
	out := make([][]float32, len(batch))
	for i, text := range batch {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		out[i] = normalize(p.vector(text))
	}
	return out, nil
}

func (p *Provider) vector(text string) []float32 {
	vec := make([]float32, p.dim)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return vec
	}

	for _, token := range tokenize(trimmed) {
		vec[hashToIndex(token, p.dim)] += 0.7
	}
	normalized := normalizeForNgrams(trimmed)
	for _, ngram := range ngrams(normalized, 3) {
		vec[hashToIndex(ngram, p.dim)] += 0.3
	}
	return vec
}

func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, strings.ToLower(current.String()))
			current.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func normalizeForNgrams(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func ngrams(text string, n int) []string {
	if len(text) < n {
		return nil
	}
	out := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		out = append(out, text[i:i+n])
	}
	return out
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func sqrt(x float64) float64 {
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 30; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}
