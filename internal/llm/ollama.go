package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	BaseURL string        // default: http://localhost:11434
	Model   string        // default: nomic-embed-text
	Timeout time.Duration // per request, default: 5s

	// Breaker guards the client. Nil creates a private default breaker.
	Breaker *CircuitBreaker
}

// OllamaClient generates embeddings through an Ollama server's /api/embed.
type OllamaClient struct {
	baseURL string
	model   string
	timeout time.Duration
	http    *http.Client
	breaker *CircuitBreaker
}

// StatusError is a non-200 reply from the provider.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Code, e.Body)
}

// NewOllamaClient creates an OllamaClient.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Breaker == nil {
		cfg.Breaker = NewCircuitBreaker(BreakerConfig{Name: "ollama"})
	}

	return &OllamaClient{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		http:    &http.Client{},
		breaker: cfg.Breaker,
	}
}

// Embed implements EmbeddingGenerator.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return Call(ctx, c.breaker, func(ctx context.Context) ([]float32, error) {
		var out struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		in := struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}{c.model, text}

		if err := c.post(ctx, "/api/embed", in, &out); err != nil {
			return nil, err
		}
		if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
			return nil, fmt.Errorf("ollama returned empty embedding vector")
		}
		return out.Embeddings[0], nil
	})
}

func (c *OllamaClient) post(ctx context.Context, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("ollama: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Provider: "ollama", Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama: decode response: %w", err)
	}
	return nil
}

// GetModel implements EmbeddingGenerator.
func (c *OllamaClient) GetModel() string {
	return c.model
}

// Breaker returns the client's circuit breaker.
func (c *OllamaClient) Breaker() *CircuitBreaker {
	return c.breaker
}

var _ EmbeddingGenerator = (*OllamaClient)(nil)
