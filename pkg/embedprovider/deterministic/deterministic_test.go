package deterministic

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_DimensionDefaultsWhenNonPositive(t *testing.T) {
	assert.Equal(t, 256, New(0).Dimension())
	assert.Equal(t, 256, New(-5).Dimension())
	assert.Equal(t, 8, New(8).Dimension())
}

func TestProvider_EmbedIsDeterministic(t *testing.T) {
	p := New(32)
	a, err := p.Embed(context.Background(), []string{"func Foo() {}"})
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), []string{"func Foo() {}"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestProvider_EmbedIsUnitNormalized(t *testing.T) {
	p := New(32)
	vecs, err := p.Embed(context.Background(), []string{"package main\nfunc main() {}"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)

	var sum float64
	for _, x := range vecs[0] {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-4)
}

func TestProvider_EmptyStringProducesZeroVector(t *testing.T) {
	p := New(16)
	vecs, err := p.Embed(context.Background(), []string{"   "})
	require.NoError(t, err)
	for _, x := range vecs[0] {
		assert.Equal(t, float32(0), x)
	}
}

func TestProvider_EmbedRespectsCancellation(t *testing.T) {
	p := New(16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Embed(ctx, []string{"a", "b"})
	assert.Error(t, err)
}

func TestProvider_DistinctTextsDiffer(t *testing.T) {
	p := New(64)
	vecs, err := p.Embed(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.NotEqual(t, vecs[0], vecs[1])
}
