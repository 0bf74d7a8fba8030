package llm

import (
	"fmt"
	"time"
)

// EmbeddingConfig selects and configures an embedding provider.
type EmbeddingConfig struct {
	Provider string // ollama, openai, hash
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration

	// Breaker is shared by the returned client. Optional.
	Breaker *CircuitBreaker
}

// NewEmbeddingGenerator creates the EmbeddingGenerator for cfg.Provider.
func NewEmbeddingGenerator(cfg EmbeddingConfig) (EmbeddingGenerator, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embedding provider requires an API key")
		}
		return NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
			Breaker: cfg.Breaker,
		}), nil
	case "ollama":
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Breaker: cfg.Breaker,
		}), nil
	case "hash":
		return NewHashEmbedder(0), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}
}
