package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memvault/internal/config"
	"github.com/scrypster/memvault/internal/engine"
	"github.com/scrypster/memvault/internal/llm"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataPath = filepath.Join(t.TempDir(), "data")
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	return cfg
}

func TestOpen_SQLiteCreatesDataDir(t *testing.T) {
	cfg := testConfig(t)

	rt, err := Open(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	assert.FileExists(t, filepath.Join(cfg.Storage.DataPath, "memvault.db"))
	assert.NoError(t, rt.Engine.Ping(context.Background()))
}

func TestOpenStore_UnsupportedEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Engine = "cassandra"

	_, err := Open(cfg, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unsupported storage engine")
}

func TestNewEngine_EmbeddingProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Provider = "hash"

	var logs bytes.Buffer
	rt, err := Open(cfg, &logs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	ctx := context.Background()
	m, err := rt.Engine.Create(ctx, engine.CreateRequest{UserID: "u", Content: "tabs over spaces", MemoryType: "long_term"})
	require.NoError(t, err)
	assert.NotEmpty(t, m.Embedding)
	assert.Contains(t, logs.String(), "embedding similarity enabled")

	res, err := rt.Engine.Search(ctx, engine.SearchRequest{
		UserID:              "u",
		Query:               "tabs over spaces",
		SimilarityThreshold: func() *float64 { v := 0.99; return &v }(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
}

// flakyOllama serves /api/embed with a constant vector, or 500 while down.
func flakyOllama(t *testing.T) (*httptest.Server, *atomic.Bool, *atomic.Int64) {
	t.Helper()
	var down atomic.Bool
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if down.Load() {
			http.Error(w, "model unavailable", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{1, 0, 0}}})
	}))
	t.Cleanup(srv.Close)
	return srv, &down, &calls
}

func TestNewEngine_SearchRecoversAfterProviderOutage(t *testing.T) {
	srv, down, _ := flakyOllama(t)

	cfg := testConfig(t)
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.BaseURL = srv.URL
	cfg.Embedding.BreakerFailures = 2
	cfg.Embedding.BreakerCooldown = 100 * time.Millisecond

	rt, err := Open(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	ctx := context.Background()
	for _, content := range []string{"prefers dark mode", "uses vim", "ships on tuesdays", "drinks oolong"} {
		m, err := rt.Engine.Create(ctx, engine.CreateRequest{UserID: "u", Content: content, MemoryType: "long_term"})
		require.NoError(t, err)
		require.NotEmpty(t, m.Embedding)
	}

	search := func(query string) (*engine.SearchResult, error) {
		return rt.Engine.Search(ctx, engine.SearchRequest{UserID: "u", Query: query})
	}

	down.Store(true)
	for i := 0; i < 3; i++ {
		_, err := search("editor")
		var searchErr *engine.SearchError
		require.ErrorAs(t, err, &searchErr)
	}
	_, err = search("editor")
	require.ErrorIs(t, err, llm.ErrCircuitOpen)

	down.Store(false)
	time.Sleep(150 * time.Millisecond)

	// The first search after the cooldown reaches the provider and succeeds.
	res, err := search("editor")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)

	res, err = search("tea")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
}

func TestNewEngine_OneQueryEmbeddingPerSearch(t *testing.T) {
	srv, _, calls := flakyOllama(t)

	cfg := testConfig(t)
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.BaseURL = srv.URL

	rt, err := Open(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		_, err := rt.Engine.Create(ctx, engine.CreateRequest{UserID: "u", Content: "note", MemoryType: "long_term"})
		require.NoError(t, err)
	}
	before := calls.Load()

	res, err := rt.Engine.Search(ctx, engine.SearchRequest{UserID: "u", Query: "anything"})
	require.NoError(t, err)
	assert.Equal(t, 20, res.Total)
	assert.Equal(t, int64(1), calls.Load()-before)
}

func TestNewEngine_UnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Provider = "carrier-pigeon"

	_, err := Open(cfg, &bytes.Buffer{})
	assert.ErrorContains(t, err, "embedding provider")
}

func TestServe(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cleanup.Enabled = true
	cfg.Cleanup.Interval = time.Hour

	rt, err := Open(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- rt.Serve(ctx, func(addr string) { addrCh <- addr }) }()

	var addr string
	select {
	case addr = <-addrCh:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/api/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServe_ForwardsEventsFromOtherProcesses(t *testing.T) {
	cfg := testConfig(t)

	server, err := Open(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addrCh := make(chan string, 1)
	go func() { _ = server.Serve(ctx, func(addr string) { addrCh <- addr }) }()
	select {
	case <-addrCh:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	// A second runtime on the same data path plays the CLI.
	cli, err := Open(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	cli.ForwardEvents()

	_, err = cli.Engine.Create(context.Background(), engine.CreateRequest{UserID: "alice", Content: "from cli", MemoryType: "long_term"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		entries, err := os.ReadDir(filepath.Join(cfg.Storage.DataPath, "events"))
		return err == nil && len(entries) == 0
	}, 2*time.Second, 20*time.Millisecond, "server consumes the event file")
}
