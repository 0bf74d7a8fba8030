package llm

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// HashEmbedder produces deterministic bag-of-words embeddings without a model
// server: each lowercased token is hashed into a pseudo-random unit vector
// and the token vectors are summed and normalized. Texts sharing words get
// positive cosine similarity. Intended for tests and offline development.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder creates a HashEmbedder. dimensions <= 0 selects 256.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the embedding of text. Empty text yields a zero vector.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]float32, h.dimensions)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]{}")
		if tok == "" {
			continue
		}
		f := fnv.New64a()
		f.Write([]byte(tok))
		seed := f.Sum64()
		for i := range out {
			// LCG step, mapped to [-1, 1]
			seed = seed*6364136223846793005 + 1442695040888963407
			out[i] += float32(int64(seed)) / float32(math.MaxInt64)
		}
	}

	return normalize(out), nil
}

// GetModel returns the pseudo model name recorded with stored embeddings.
func (h *HashEmbedder) GetModel() string {
	return "hash-bow"
}

// normalize converts vec to a unit vector in place.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}

var _ EmbeddingGenerator = (*HashEmbedder)(nil)
