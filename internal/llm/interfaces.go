// Package llm provides embedding providers used for similarity search,
// each protected by a circuit breaker.
package llm

import "context"

// EmbeddingGenerator is the interface for generating vector embeddings.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}
