// Package embedprovider defines the embedding provider contract of
// §6: Embed takes a batch of strings and returns one vector per input
// of length Dimension(). A change in Dimension between reindex runs is
// a project incompatibility requiring --force.
package embedprovider

import "context"

// Provider is implemented once per embedding backend.
type Provider interface {
	Dimension() int
	Embed(ctx context.Context, batch []string) ([][]float32, error)
}
