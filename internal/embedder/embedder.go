// Package embedder provides interfaces and implementations for text embedding.
package embedder

import (
	"context"
	"fmt"
)

// Embedder defines the interface for a single text embedding model.
type Embedder interface {
	// Embed generates an embedding vector for a single text input.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for multiple text inputs.
	// Returns a slice of embeddings in the same order as the input texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of the embedding vectors.
	Dimension() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string
}

// Gateway turns query text into a fixed-length vector for a dimension tier.
// Implementations must be deterministic for identical (text, dimension)
// pairs so results are cacheable by content hash.
type Gateway interface {
	Embed(ctx context.Context, text string, dimension int) ([]float32, error)
}

// ModelForDimension maps a dimension tier to its embedding model.
var ModelForDimension = map[int]string{
	384:  "all-minilm",
	768:  "nomic-embed-text",
	1024: "mxbai-embed-large",
}

// TierGateway routes embedding requests to a per-dimension embedder.
type TierGateway struct {
	embedders map[int]Embedder
}

// NewTierGateway creates a gateway over a fixed set of embedders, keyed by
// their dimension.
func NewTierGateway(embedders ...Embedder) *TierGateway {
	g := &TierGateway{embedders: make(map[int]Embedder, len(embedders))}
	for _, e := range embedders {
		g.embedders[e.Dimension()] = e
	}
	return g
}

// Embed embeds text with the model registered for the given dimension.
func (g *TierGateway) Embed(ctx context.Context, text string, dimension int) ([]float32, error) {
	e, ok := g.embedders[dimension]
	if !ok {
		return nil, fmt.Errorf("no embedder registered for dimension %d", dimension)
	}
	return e.Embed(ctx, text)
}

// Ensure TierGateway implements Gateway.
var _ Gateway = (*TierGateway)(nil)
