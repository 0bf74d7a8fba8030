package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memvault/internal/engine"
	"github.com/scrypster/memvault/internal/scoring"
	"github.com/scrypster/memvault/internal/storage/sqlite"
	"github.com/scrypster/memvault/pkg/types"
	"github.com/scrypster/memvault/web/handlers"
)

// testNow is a Wednesday, so calendar buckets are predictable.
var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type testAPI struct {
	engine *engine.Engine
	mux    *http.ServeMux
	now    time.Time
}

func newTestAPI(t *testing.T, mutate func(*engine.Options)) *testAPI {
	t.Helper()

	store, err := sqlite.NewMemoryStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	api := &testAPI{now: testNow}
	opts := engine.Options{Now: func() time.Time { return api.now }}
	if mutate != nil {
		mutate(&opts)
	}
	eng, err := engine.New(store, opts)
	require.NoError(t, err)
	api.engine = eng

	log := bolt.New(bolt.NewJSONHandler(io.Discard))
	apiHandlers := handlers.NewAPIHandlers(eng, log)
	maintenance := handlers.NewMaintenanceHandler(eng, log)
	stats := handlers.NewStatsHandler(eng, log, "test")
	activity := handlers.NewActivityHandler(eng, log)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/memories", apiHandlers.CreateMemory)
	mux.HandleFunc("GET /api/memories", apiHandlers.SearchMemories)
	mux.HandleFunc("POST /api/memories/cleanup", maintenance.Cleanup)
	mux.HandleFunc("GET /api/memories/{id}", apiHandlers.GetMemory)
	mux.HandleFunc("PATCH /api/memories/{id}", apiHandlers.UpdateMemory)
	mux.HandleFunc("DELETE /api/memories/{id}", apiHandlers.DeleteMemory)
	mux.HandleFunc("POST /api/memories/{id}/archive", maintenance.Archive)
	mux.HandleFunc("GET /api/stats", stats.GetStats)
	mux.HandleFunc("GET /api/stats/trend", activity.GetTrend)
	mux.HandleFunc("GET /api/export", stats.Export)
	mux.HandleFunc("GET /api/health", stats.Health)
	api.mux = mux

	return api
}

// do sends a request as userID. body may be nil, a string or any JSON value.
func (a *testAPI) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req = req.WithContext(handlers.WithUser(req.Context(), userID))
	}
	w := httptest.NewRecorder()
	a.mux.ServeHTTP(w, req)
	return w
}

func (a *testAPI) create(t *testing.T, userID string, req handlers.CreateMemoryRequest) handlers.MemoryView {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/memories", userID, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var view handlers.MemoryView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	return view
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) handlers.ErrorResponse {
	t.Helper()
	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func ptr[T any](v T) *T { return &v }

func TestCreateMemory(t *testing.T) {
	api := newTestAPI(t, nil)

	view := api.create(t, "alice", handlers.CreateMemoryRequest{
		Content:    "  prefers dark mode  ",
		MemoryType: "long_term",
		Importance: ptr(0.85),
	})

	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "prefers dark mode", view.Content)
	assert.Equal(t, types.MemoryTypeLongTerm, view.MemoryType)
	assert.InDelta(t, 0.85, view.Importance, 1e-9)
	assert.Equal(t, "85%", view.ImportanceLabel)
	assert.NotEmpty(t, view.MemoryTypeLabel)
	assert.Nil(t, view.ExpiresAt)
}

func TestCreateMemory_Validation(t *testing.T) {
	api := newTestAPI(t, nil)

	tests := []struct {
		name  string
		body  interface{}
		field string
	}{
		{"missing content", handlers.CreateMemoryRequest{MemoryType: "short_term"}, "content"},
		{"missing type", handlers.CreateMemoryRequest{Content: "x"}, "memoryType"},
		{"unknown type", handlers.CreateMemoryRequest{Content: "x", MemoryType: "forever"}, "memoryType"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, http.MethodPost, "/api/memories", "alice", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, handlers.CodeValidation, resp.Code)
			assert.Equal(t, tt.field, resp.Details["field"])
		})
	}

	t.Run("unknown field", func(t *testing.T) {
		w := api.do(t, http.MethodPost, "/api/memories", "alice", `{"content":"x","memoryType":"short_term","bogus":1}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetUpdateDeleteMemory(t *testing.T) {
	api := newTestAPI(t, nil)
	view := api.create(t, "alice", handlers.CreateMemoryRequest{Content: "first", MemoryType: "short_term"})
	path := "/api/memories/" + view.ID

	w := api.do(t, http.MethodGet, path, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Other users cannot see it.
	w = api.do(t, http.MethodGet, path, "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, handlers.CodeNotFound, decodeError(t, w).Code)

	w = api.do(t, http.MethodPatch, path, "alice", handlers.UpdateMemoryRequest{Content: ptr("second")})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated handlers.MemoryView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "second", updated.Content)

	w = api.do(t, http.MethodPatch, path, "alice", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodDelete, path, "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = api.do(t, http.MethodDelete, path, "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchMemories(t *testing.T) {
	api := newTestAPI(t, nil)
	for i, content := range []string{"go concurrency patterns", "coffee order", "go modules and workspaces"} {
		api.now = testNow.Add(time.Duration(i) * time.Hour)
		api.create(t, "alice", handlers.CreateMemoryRequest{Content: content, MemoryType: "long_term", Importance: ptr(0.5)})
	}
	api.create(t, "bob", handlers.CreateMemoryRequest{Content: "go generics", MemoryType: "long_term"})

	t.Run("date desc by default", func(t *testing.T) {
		w := api.do(t, http.MethodGet, "/api/memories", "alice", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp handlers.SearchResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Total)
		assert.Equal(t, engine.DefaultLimit, resp.Limit)
		require.Len(t, resp.Items, 3)
		assert.Equal(t, "go modules and workspaces", resp.Items[0].Content)
	})

	t.Run("query with threshold", func(t *testing.T) {
		w := api.do(t, http.MethodGet, "/api/memories?query=go&similarityThreshold=0.1&sortBy=relevance", "alice", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp handlers.SearchResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Total)
		for _, item := range resp.Items {
			assert.Contains(t, item.Content, "go")
		}
	})

	t.Run("page and pageSize", func(t *testing.T) {
		w := api.do(t, http.MethodGet, "/api/memories?page=2&pageSize=2", "alice", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp handlers.SearchResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Offset)
		assert.Len(t, resp.Items, 1)
	})

	t.Run("bare toDate covers the day", func(t *testing.T) {
		w := api.do(t, http.MethodGet, "/api/memories?fromDate=2026-10-14&toDate=2026-10-14", "alice", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp handlers.SearchResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Total)
	})

	t.Run("empty result is an empty array", func(t *testing.T) {
		w := api.do(t, http.MethodGet, "/api/memories?memoryType=immediate", "alice", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"items":[]`)
	})

	for _, q := range []string{"limit=abc", "minImportance=high", "fromDate=yesterday", "minImportance=2", "page=0"} {
		t.Run("rejects "+q, func(t *testing.T) {
			w := api.do(t, http.MethodGet, "/api/memories?"+q, "alice", nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, handlers.CodeValidation, decodeError(t, w).Code)
		})
	}
}

func TestSearchMemories_ProviderFailureIsDistinct(t *testing.T) {
	api := newTestAPI(t, func(o *engine.Options) {
		o.Similarity = scoring.NewGuard(failingSimilarity{}, time.Second, nil)
	})
	api.create(t, "alice", handlers.CreateMemoryRequest{Content: "anything", MemoryType: "long_term"})

	w := api.do(t, http.MethodGet, "/api/memories?query=anything", "alice", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, handlers.CodeSearchFailed, decodeError(t, w).Code)
}

type failingSimilarity struct{}

func (failingSimilarity) Similarity(ctx context.Context, query string, m *types.Memory) (float64, error) {
	return 0, assert.AnError
}

func TestArchive(t *testing.T) {
	api := newTestAPI(t, nil)
	view := api.create(t, "alice", handlers.CreateMemoryRequest{Content: "temp", MemoryType: "short_term", Importance: ptr(0.2)})
	path := "/api/memories/" + view.ID + "/archive"

	w := api.do(t, http.MethodPost, path, "alice", handlers.ArchiveRequest{Reason: "keep", RetentionPeriod: 30, DryRun: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var preview handlers.MemoryView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &preview))
	assert.Equal(t, types.MemoryTypeLongTerm, preview.MemoryType)

	got, err := api.engine.Get(context.Background(), "alice", view.ID)
	require.NoError(t, err)
	assert.Equal(t, types.MemoryTypeShortTerm, got.MemoryType, "dry run must not write")

	w = api.do(t, http.MethodPost, path, "alice", handlers.ArchiveRequest{Reason: "keep", RetentionPeriod: 30})
	require.Equal(t, http.StatusOK, w.Code)
	var archived handlers.MemoryView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &archived))
	assert.Equal(t, types.MemoryTypeLongTerm, archived.MemoryType)
	require.NotNil(t, archived.ExpiresAt)
	assert.True(t, archived.ExpiresAt.Equal(testNow.AddDate(0, 0, 30)))

	w = api.do(t, http.MethodPost, "/api/memories/missing/archive", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCleanup(t *testing.T) {
	api := newTestAPI(t, nil)
	api.now = testNow.AddDate(0, 0, -40)
	old := api.create(t, "alice", handlers.CreateMemoryRequest{Content: "old", MemoryType: "long_term"})
	api.now = testNow
	api.create(t, "alice", handlers.CreateMemoryRequest{Content: "new", MemoryType: "long_term"})

	w := api.do(t, http.MethodPost, "/api/memories/cleanup", "alice", handlers.CleanupRequest{DaysOld: 30})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var preview handlers.CleanupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &preview))
	assert.True(t, preview.DryRun)
	assert.Equal(t, 1, preview.Count)
	require.Len(t, preview.Items, 1)
	assert.Equal(t, old.ID, preview.Items[0].ID)

	w = api.do(t, http.MethodPost, "/api/memories/cleanup", "alice", handlers.CleanupRequest{DaysOld: 30, DryRun: ptr(false)})
	assert.Equal(t, http.StatusBadRequest, w.Code, "live cleanup needs confirm")

	w = api.do(t, http.MethodPost, "/api/memories/cleanup", "alice", handlers.CleanupRequest{DaysOld: 30, DryRun: ptr(false), Confirm: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var done handlers.CleanupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &done))
	assert.False(t, done.DryRun)
	assert.Equal(t, 1, done.Count)
	assert.Empty(t, done.Items)

	w = api.do(t, http.MethodGet, "/api/memories/"+old.ID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCleanupEmptyPreviewListsNoItems(t *testing.T) {
	api := newTestAPI(t, nil)
	api.create(t, "alice", handlers.CreateMemoryRequest{Content: "fresh", MemoryType: "long_term"})

	w := api.do(t, http.MethodPost, "/api/memories/cleanup", "alice", handlers.CleanupRequest{DaysOld: 30})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.JSONEq(t, `[]`, string(raw["items"]))
	assert.JSONEq(t, `0`, string(raw["count"]))
}

func TestCleanupConfirmsPreviewAsOf(t *testing.T) {
	api := newTestAPI(t, nil)
	api.now = testNow.AddDate(0, 0, -31)
	old := api.create(t, "alice", handlers.CreateMemoryRequest{Content: "old", MemoryType: "long_term"})
	api.now = testNow.AddDate(0, 0, -30).Add(time.Hour)
	borderline := api.create(t, "alice", handlers.CreateMemoryRequest{Content: "almost old", MemoryType: "long_term"})
	api.now = testNow

	w := api.do(t, http.MethodPost, "/api/memories/cleanup", "alice", handlers.CleanupRequest{DaysOld: 30})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var preview handlers.CleanupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &preview))
	require.Equal(t, 1, preview.Count)

	api.now = testNow.Add(24 * time.Hour)
	w = api.do(t, http.MethodPost, "/api/memories/cleanup", "alice", handlers.CleanupRequest{
		DaysOld: 30, DryRun: ptr(false), Confirm: true, AsOf: &preview.AsOf,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var done handlers.CleanupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &done))
	assert.Equal(t, preview.Count, done.Count)
	assert.True(t, done.Cutoff.Equal(preview.Cutoff))

	w = api.do(t, http.MethodGet, "/api/memories/"+old.ID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = api.do(t, http.MethodGet, "/api/memories/"+borderline.ID, "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code, "memories that aged past the line after the preview are kept")

	future := api.now.Add(time.Hour)
	w = api.do(t, http.MethodPost, "/api/memories/cleanup", "alice", handlers.CleanupRequest{AsOf: &future})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsTrendExport(t *testing.T) {
	api := newTestAPI(t, nil)
	api.create(t, "alice", handlers.CreateMemoryRequest{Content: "a", MemoryType: "long_term", Importance: ptr(0.9)})
	api.create(t, "alice", handlers.CreateMemoryRequest{Content: "b", MemoryType: "short_term", Importance: ptr(0.1)})

	w := api.do(t, http.MethodGet, "/api/stats", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats types.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalCount)
	assert.Equal(t, 2, stats.CreatedToday)

	w = api.do(t, http.MethodGet, "/api/stats/trend?range=month", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var trend types.Trend
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trend))
	assert.Len(t, trend.Points, 30)
	assert.Equal(t, 2, trend.Points[len(trend.Points)-1].Count)

	w = api.do(t, http.MethodGet, "/api/stats/trend?range=decade", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/export", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	var export types.Export
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &export))
	assert.Equal(t, "alice", export.UserID)
	assert.Len(t, export.Memories, 2)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)
}
