package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memvault/internal/llm"
)

// mockOllamaServer creates a test HTTP server that simulates Ollama API endpoints
func mockOllamaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			var req map[string]string
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"model":      req["model"],
				"embeddings": [][]float32{{0.1, 0.2, 0.3, 0.4, 0.5}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// mockFailingOllamaServer creates a test server that always returns errors
func mockFailingOllamaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal server error"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaClient_Embed(t *testing.T) {
	srv := mockOllamaServer(t)
	client := llm.NewOllamaClient(llm.OllamaConfig{BaseURL: srv.URL})

	vec, err := client.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4, 0.5}, vec)
	assert.Equal(t, "nomic-embed-text", client.GetModel())
}

func TestOllamaClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	client := llm.NewOllamaClient(llm.OllamaConfig{BaseURL: srv.URL, Timeout: 100 * time.Millisecond})
	start := time.Now()
	_, err := client.Embed(context.Background(), "slow")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestOllamaClient_CircuitBreaker(t *testing.T) {
	srv := mockFailingOllamaServer(t)
	client := llm.NewOllamaClient(llm.OllamaConfig{BaseURL: srv.URL})

	for i := 0; i < 3; i++ {
		_, err := client.Embed(context.Background(), "x")
		var statusErr *llm.StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	}

	_, err := client.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrCircuitOpen), "expected open circuit, got %v", err)
	assert.Equal(t, "open", client.Breaker().State())
}

func TestOllamaClient_CancelledCallsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := llm.NewOllamaClient(llm.OllamaConfig{BaseURL: srv.URL, Timeout: time.Second})
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		_, err := client.Embed(ctx, "x")
		cancel()
		require.Error(t, err)
	}
	assert.Equal(t, "open", client.Breaker().State(), "deadline exceeded is a provider failure")

	cancelled := llm.NewOllamaClient(llm.OllamaConfig{BaseURL: srv.URL, Timeout: time.Second})
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)
		_, err := cancelled.Embed(ctx, "x")
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, "closed", cancelled.Breaker().State())
}

func TestOllamaClient_InvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings": [[]]}`))
	}))
	defer srv.Close()

	client := llm.NewOllamaClient(llm.OllamaConfig{BaseURL: srv.URL})
	_, err := client.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "empty embedding"))
}

func TestNewEmbeddingGenerator(t *testing.T) {
	gen, err := llm.NewEmbeddingGenerator(llm.EmbeddingConfig{Provider: "ollama", Model: "mxbai-embed-large"})
	require.NoError(t, err)
	assert.Equal(t, "mxbai-embed-large", gen.GetModel())

	gen, err = llm.NewEmbeddingGenerator(llm.EmbeddingConfig{Provider: "openai", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", gen.GetModel())

	_, err = llm.NewEmbeddingGenerator(llm.EmbeddingConfig{Provider: "openai"})
	assert.Error(t, err)

	_, err = llm.NewEmbeddingGenerator(llm.EmbeddingConfig{Provider: "anthropic"})
	assert.Error(t, err)
}
