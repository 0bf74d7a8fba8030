package scoring

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/scrypster/memvault/internal/llm"
	"github.com/scrypster/memvault/pkg/types"
)

// EmbeddingSimilarity scores by cosine between the query embedding and the
// memory embedding. Stored embeddings are used when they were produced by the
// same model; otherwise the content is embedded on the fly.
//
// Concurrent candidates of one search share a single query embedding call.
type EmbeddingSimilarity struct {
	gen      llm.EmbeddingGenerator
	cache    *ristretto.Cache
	inflight singleflight.Group
}

// NewEmbeddingSimilarity creates an EmbeddingSimilarity. cacheSize bounds the
// number of cached query embeddings; <= 0 disables the cache.
func NewEmbeddingSimilarity(gen llm.EmbeddingGenerator, cacheSize int64) (*EmbeddingSimilarity, error) {
	if gen == nil {
		return nil, fmt.Errorf("embedding generator is required")
	}

	s := &EmbeddingSimilarity{gen: gen}
	if cacheSize > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: cacheSize * 10,
			MaxCost:     cacheSize,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Similarity implements SimilarityProvider.
func (s *EmbeddingSimilarity) Similarity(ctx context.Context, query string, m *types.Memory) (float64, error) {
	qv, err := s.embedQuery(ctx, query)
	if err != nil {
		return 0, err
	}

	mv := m.Embedding
	if len(mv) == 0 || m.EmbeddingModel != s.gen.GetModel() {
		mv, err = s.gen.Embed(ctx, m.Content)
		if err != nil {
			return 0, fmt.Errorf("failed to embed memory %s: %w", m.ID, err)
		}
	}

	return Cosine(qv, mv), nil
}

// Model returns the model used for embeddings.
func (s *EmbeddingSimilarity) Model() string {
	return s.gen.GetModel()
}

// Close releases the query cache.
func (s *EmbeddingSimilarity) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}

func (s *EmbeddingSimilarity) embedQuery(ctx context.Context, query string) ([]float32, error) {
	key := s.gen.GetModel() + "\x00" + query
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v.([]float32), nil
		}
	}

	v, err, _ := s.inflight.Do(key, func() (interface{}, error) {
		if s.cache != nil {
			if v, ok := s.cache.Get(key); ok {
				return v, nil
			}
		}
		qv, err := s.gen.Embed(ctx, query)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Set(key, qv, 1)
			s.cache.Wait()
		}
		return qv, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return v.([]float32), nil
}
