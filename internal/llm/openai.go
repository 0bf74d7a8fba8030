package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbeddingConfig holds configuration for the OpenAI embedding client.
type OpenAIEmbeddingConfig struct {
	APIKey  string
	Model   string        // default: text-embedding-3-small
	BaseURL string        // default: the SDK's official endpoint
	Timeout time.Duration // default: 10s

	// Breaker guards the client. Nil creates a private default breaker.
	Breaker *CircuitBreaker
}

// OpenAIEmbeddingClient implements EmbeddingGenerator with the OpenAI embeddings API.
type OpenAIEmbeddingClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	breaker *CircuitBreaker
}

// NewOpenAIEmbeddingClient creates a new OpenAI embedding client.
func NewOpenAIEmbeddingClient(cfg OpenAIEmbeddingConfig) *OpenAIEmbeddingClient {
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Breaker == nil {
		cfg.Breaker = NewCircuitBreaker(BreakerConfig{Name: "openai"})
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbeddingClient{
		client:  openai.NewClientWithConfig(config),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		breaker: cfg.Breaker,
	}
}

// Embed generates an embedding for text.
func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return Call(ctx, c.breaker, func(ctx context.Context) ([]float32, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(c.model),
		})
		if err != nil {
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) {
				return nil, &StatusError{Provider: "openai", Code: apiErr.HTTPStatusCode, Body: apiErr.Message}
			}
			return nil, fmt.Errorf("openai: %w", err)
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return nil, errors.New("openai returned empty embedding vector")
		}
		return resp.Data[0].Embedding, nil
	})
}

// GetModel returns the configured model name.
func (c *OpenAIEmbeddingClient) GetModel() string {
	return c.model
}

// Breaker returns the client's circuit breaker.
func (c *OpenAIEmbeddingClient) Breaker() *CircuitBreaker {
	return c.breaker
}

var _ EmbeddingGenerator = (*OpenAIEmbeddingClient)(nil)
