package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memvault/internal/storage"
	"github.com/scrypster/memvault/internal/storage/sqlite"
	"github.com/scrypster/memvault/pkg/types"
)

// fakeClock is a settable clock shared by an engine under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestStore(t *testing.T) storage.MemoryStore {
	t.Helper()
	store, err := sqlite.NewMemoryStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestEngine(t *testing.T, clock *fakeClock, mutate func(*Options)) *Engine {
	t.Helper()
	opts := Options{Now: clock.Now}
	if mutate != nil {
		mutate(&opts)
	}
	e, err := New(newTestStore(t), opts)
	require.NoError(t, err)
	return e
}

func ptr[T any](v T) *T { return &v }

// wednesday is 2026-10-14 12:00 UTC.
var wednesday = time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)

func mustCreate(t *testing.T, e *Engine, req CreateRequest) *types.Memory {
	t.Helper()
	m, err := e.Create(context.Background(), req)
	require.NoError(t, err)
	return m
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SimilarityThreshold = 2
	_, err := New(newTestStore(t), Options{Config: cfg})
	assert.Error(t, err)
}

func TestCreateDefaults(t *testing.T) {
	clock := newFakeClock(wednesday)
	e := newTestEngine(t, clock, nil)

	m := mustCreate(t, e, CreateRequest{UserID: "u1", Content: "  plain text  ", MemoryType: "shortterm"})

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "plain text", m.Content)
	assert.Equal(t, types.MemoryTypeShortTerm, m.MemoryType)
	assert.InDelta(t, 0.3, m.Importance, 1e-9, "rule scorer base score")
	require.NotNil(t, m.ExpiresAt)
	assert.True(t, m.ExpiresAt.Equal(wednesday.Add(30*24*time.Hour)))

	imm := mustCreate(t, e, CreateRequest{UserID: "u1", Content: "now", MemoryType: "immediate", Importance: ptr(0.5)})
	require.NotNil(t, imm.ExpiresAt)
	assert.True(t, imm.ExpiresAt.Equal(wednesday.Add(24*time.Hour)))

	lt := mustCreate(t, e, CreateRequest{UserID: "u1", Content: "forever", MemoryType: "long_term", Importance: ptr(0.5)})
	assert.Nil(t, lt.ExpiresAt)
}

func TestCreateClampsImportance(t *testing.T) {
	e := newTestEngine(t, newFakeClock(wednesday), nil)

	hi := mustCreate(t, e, CreateRequest{UserID: "u1", Content: "a", MemoryType: "long_term", Importance: ptr(1.5)})
	lo := mustCreate(t, e, CreateRequest{UserID: "u1", Content: "b", MemoryType: "long_term", Importance: ptr(-0.2)})

	assert.Equal(t, 1.0, hi.Importance)
	assert.Equal(t, 0.0, lo.Importance)
}

func TestCreateValidation(t *testing.T) {
	e := newTestEngine(t, newFakeClock(wednesday), nil)

	tests := []struct {
		name  string
		req   CreateRequest
		field string
	}{
		{"missing user", CreateRequest{Content: "x", MemoryType: "short_term"}, "userId"},
		{"blank content", CreateRequest{UserID: "u1", Content: "   ", MemoryType: "short_term"}, "content"},
		{"missing type", CreateRequest{UserID: "u1", Content: "x"}, "memoryType"},
		{"unknown type", CreateRequest{UserID: "u1", Content: "x", MemoryType: "forever"}, "memoryType"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Create(context.Background(), tt.req)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
			assert.True(t, errors.Is(err, storage.ErrInvalidInput))
		})
	}
}

func TestGetEditDelete(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, newFakeClock(wednesday), nil)

	var events []Event
	e.OnEvent(func(ev Event) { events = append(events, ev) })

	m := mustCreate(t, e, CreateRequest{UserID: "u1", Content: "draft", MemoryType: "short_term", Importance: ptr(0.4)})

	_, err := e.Get(ctx, "u2", m.ID)
	assert.True(t, IsNotFound(err), "other users must not see the memory")

	edited, err := e.Edit(ctx, "u1", m.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)
	assert.Equal(t, m.CreatedAt.Unix(), edited.CreatedAt.Unix())

	_, err = e.Edit(ctx, "u1", m.ID, " ")
	assert.True(t, IsValidation(err))

	require.NoError(t, e.Delete(ctx, "u1", m.ID))
	err = e.Delete(ctx, "u1", m.ID)
	assert.True(t, IsNotFound(err), "second delete must report not found")

	require.Len(t, events, 3)
	assert.Equal(t, EventCreated, events[0].Type)
	assert.Equal(t, EventUpdated, events[1].Type)
	assert.Equal(t, EventDeleted, events[2].Type)
	assert.Equal(t, m.ID, events[2].MemoryID)
	assert.Equal(t, 0, e.locks.size(), "locks must be released")
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(wednesday)
	e := newTestEngine(t, clock, nil)

	for i, in := range []struct {
		imp float64
		typ string
	}{
		{0.8, "short_term"},
		{0.6, "short_term"},
		{0.9, "long_term"},
	} {
		clock.Set(wednesday.Add(time.Duration(i) * time.Minute))
		mustCreate(t, e, CreateRequest{UserID: "1", Content: "memory", MemoryType: in.typ, Importance: ptr(in.imp)})
	}

	res, err := e.Search(ctx, SearchRequest{UserID: "1", MemoryType: "short_term"})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 0.6, res.Items[0].Importance, "newest first")
	assert.Equal(t, 0.8, res.Items[1].Importance)

	stats, err := e.Stats(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ShortTermCount)
	assert.Equal(t, 1, stats.LongTermCount)
	assert.Equal(t, 3, stats.TotalCount)
}
