// Package storagetest holds a behavioural test suite shared by every
// storage.MemoryStore backend.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memvault/internal/storage"
	"github.com/scrypster/memvault/pkg/types"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) storage.MemoryStore

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.MemoryStore)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"CreateValidation", testCreateValidation},
		{"GetScopedToUser", testGetScopedToUser},
		{"UpdatePatch", testUpdatePatch},
		{"UpdateNotFound", testUpdateNotFound},
		{"DeleteTwice", testDeleteTwice},
		{"ListByUserFilters", testListByUserFilters},
		{"ListAgedOrExpired", testListAgedOrExpired},
		{"ListAgreesWithMatch", testListAgreesWithMatch},
		{"ListUsers", testListUsers},
		{"EmbeddingRoundTrip", testEmbeddingRoundTrip},
		{"ConcurrentUpdates", testConcurrentUpdates},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// NewMemory builds a minimal valid memory for tests.
func NewMemory(userID, content string, memType types.MemoryType, importance float64) *types.Memory {
	return &types.Memory{
		UserID:     userID,
		Content:    content,
		MemoryType: memType,
		Importance: importance,
	}
}

func testCreateAndGet(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()
	expires := time.Now().Add(48 * time.Hour)
	m := NewMemory("u1", "prefers green tea", types.MemoryType("shortterm"), 0.6)
	m.ConversationID = "conv-1"
	m.Tags = []string{"preference", "drink"}
	m.ExpiresAt = &expires

	require.NoError(t, s.Create(ctx, m))
	require.NotEmpty(t, m.ID, "Create should assign an ID")
	assert.Equal(t, types.MemoryTypeShortTerm, m.MemoryType, "type should be normalized")
	assert.False(t, m.CreatedAt.IsZero())

	got, err := s.Get(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "conv-1", got.ConversationID)
	assert.Equal(t, "prefers green tea", got.Content)
	assert.InDelta(t, 0.6, got.Importance, 1e-9)
	assert.Equal(t, types.MemoryTypeShortTerm, got.MemoryType)
	assert.Equal(t, []string{"preference", "drink"}, got.Tags)
	assert.True(t, m.CreatedAt.Equal(got.CreatedAt), "createdAt should round-trip: %v vs %v", m.CreatedAt, got.CreatedAt)
	require.NotNil(t, got.ExpiresAt)
	assert.WithinDuration(t, expires, *got.ExpiresAt, time.Millisecond)
	assert.Nil(t, got.ArchivedAt)
	assert.Nil(t, got.Embedding)
}

func testCreateValidation(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()
	cases := []*types.Memory{
		NewMemory("", "content", types.MemoryTypeImmediate, 0.5),
		NewMemory("u1", "  ", types.MemoryTypeImmediate, 0.5),
		NewMemory("u1", "content", "", 0.5),
		NewMemory("u1", "content", "episodic", 0.5),
		NewMemory("u1", "content", types.MemoryTypeImmediate, 1.5),
	}
	for _, m := range cases {
		err := s.Create(ctx, m)
		assert.ErrorIs(t, err, storage.ErrInvalidInput, "memory %+v", m)
	}
	assert.ErrorIs(t, s.Create(ctx, nil), storage.ErrInvalidInput)
}

func testGetScopedToUser(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()
	m := NewMemory("alice", "alice's secret", types.MemoryTypeLongTerm, 0.9)
	require.NoError(t, s.Create(ctx, m))

	_, err := s.Get(ctx, "bob", m.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = s.Delete(ctx, "bob", m.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.Get(ctx, "alice", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testUpdatePatch(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()
	m := NewMemory("u1", "project deadline is friday", types.MemoryTypeShortTerm, 0.5)
	expires := time.Now().Add(time.Hour)
	m.ExpiresAt = &expires
	require.NoError(t, s.Create(ctx, m))

	longTerm := types.MemoryTypeLongTerm
	importance := 0.8
	reason := "keep"
	archivedAt := time.Now()
	newExpiry := time.Now().Add(180 * 24 * time.Hour)

	got, err := s.Update(ctx, "u1", m.ID, storage.Patch{
		MemoryType:    &longTerm,
		Importance:    &importance,
		ArchivedAt:    &archivedAt,
		ArchiveReason: &reason,
		ExpiresAt:     &newExpiry,
	})
	require.NoError(t, err)
	assert.Equal(t, types.MemoryTypeLongTerm, got.MemoryType)
	assert.InDelta(t, 0.8, got.Importance, 1e-9)
	assert.Equal(t, "keep", got.ArchiveReason)
	require.NotNil(t, got.ExpiresAt)
	assert.WithinDuration(t, newExpiry, *got.ExpiresAt, time.Millisecond)

	reloaded, err := s.Get(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, reloaded.ID)
	assert.Equal(t, m.Content, reloaded.Content)
	assert.True(t, m.CreatedAt.Equal(reloaded.CreatedAt))
	assert.Equal(t, types.MemoryTypeLongTerm, reloaded.MemoryType)
	require.NotNil(t, reloaded.ArchivedAt)

	cleared, err := s.Update(ctx, "u1", m.ID, storage.Patch{ClearExpiresAt: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.ExpiresAt)

	bad := 2.0
	_, err = s.Update(ctx, "u1", m.ID, storage.Patch{Importance: &bad})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func testUpdateNotFound(t *testing.T, s storage.MemoryStore) {
	content := "x"
	_, err := s.Update(context.Background(), "u1", "nope", storage.Patch{Content: &content})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testDeleteTwice(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()
	m := NewMemory("u1", "ephemeral", types.MemoryTypeImmediate, 0.1)
	require.NoError(t, s.Create(ctx, m))

	require.NoError(t, s.Delete(ctx, "u1", m.ID))
	assert.ErrorIs(t, s.Delete(ctx, "u1", m.ID), storage.ErrNotFound)

	_, err := s.Get(ctx, "u1", m.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testListByUserFilters(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := []struct {
		memType    types.MemoryType
		importance float64
		created    time.Time
	}{
		{types.MemoryTypeShortTerm, 0.8, base},
		{types.MemoryTypeShortTerm, 0.6, base.Add(24 * time.Hour)},
		{types.MemoryTypeLongTerm, 0.9, base.Add(48 * time.Hour)},
		{types.MemoryTypeImmediate, 0.2, base.Add(72 * time.Hour)},
	}
	for _, sd := range seed {
		m := NewMemory("u1", "memory", sd.memType, sd.importance)
		m.CreatedAt = sd.created
		require.NoError(t, s.Create(ctx, m))
	}
	require.NoError(t, s.Create(ctx, NewMemory("u2", "other user", types.MemoryTypeShortTerm, 0.9)))

	all, err := s.ListByUser(ctx, "u1", storage.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	shortTerm, err := s.ListByUser(ctx, "u1", storage.ListFilter{MemoryType: "shortterm"})
	require.NoError(t, err)
	assert.Len(t, shortTerm, 2)

	floor := 0.8
	important, err := s.ListByUser(ctx, "u1", storage.ListFilter{MinImportance: &floor})
	require.NoError(t, err)
	assert.Len(t, important, 2, "minImportance is inclusive")

	ranged, err := s.ListByUser(ctx, "u1", storage.ListFilter{
		CreatedFrom: base.Add(24 * time.Hour),
		CreatedTo:   base.Add(48 * time.Hour),
	})
	require.NoError(t, err)
	assert.Len(t, ranged, 2, "date bounds are inclusive")

	_, err = s.ListByUser(ctx, "u1", storage.ListFilter{CreatedFrom: base.Add(time.Hour), CreatedTo: base})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	none, err := s.ListByUser(ctx, "nobody", storage.ListFilter{})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func testListAgedOrExpired(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()
	now := time.Now()

	old := NewMemory("u1", "old", types.MemoryTypeShortTerm, 0.5)
	old.CreatedAt = now.Add(-40 * 24 * time.Hour)
	require.NoError(t, s.Create(ctx, old))

	past := now.Add(-time.Hour)
	expired := NewMemory("u1", "expired", types.MemoryTypeImmediate, 0.5)
	expired.ExpiresAt = &past
	require.NoError(t, s.Create(ctx, expired))

	fresh := NewMemory("u1", "fresh", types.MemoryTypeLongTerm, 0.5)
	require.NoError(t, s.Create(ctx, fresh))

	cutoff := now.Add(-30 * 24 * time.Hour)
	aged, err := s.ListByUser(ctx, "u1", storage.ListFilter{CreatedBefore: cutoff})
	require.NoError(t, err)
	require.Len(t, aged, 1)
	assert.Equal(t, old.ID, aged[0].ID)

	either, err := s.ListByUser(ctx, "u1", storage.ListFilter{CreatedBefore: cutoff, ExpiredBefore: now})
	require.NoError(t, err)
	assert.Len(t, either, 2)
}

// testListAgreesWithMatch checks the backend's query against the in-memory
// ListFilter.Match over the user's full list.
func testListAgreesWithMatch(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()
	base := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	memTypes := []types.MemoryType{types.MemoryTypeImmediate, types.MemoryTypeShortTerm, types.MemoryTypeLongTerm}
	for i := 0; i < 12; i++ {
		m := NewMemory("u1", "memory", memTypes[i%3], float64(i%5)/4)
		m.CreatedAt = base.Add(time.Duration(i) * 5 * day)
		if i%4 == 0 {
			exp := base.Add(time.Duration(i)*5*day + 10*day)
			m.ExpiresAt = &exp
		}
		require.NoError(t, s.Create(ctx, m))
	}

	all, err := s.ListByUser(ctx, "u1", storage.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 12)

	half := 0.5
	asOf := base.Add(32*day + time.Hour)
	filters := map[string]storage.ListFilter{
		"type":            {MemoryType: types.MemoryTypeShortTerm},
		"importance":      {MinImportance: &half},
		"range":           {CreatedFrom: base.Add(7 * day), CreatedTo: base.Add(33 * day)},
		"aged":            {CreatedBefore: asOf.Add(-20 * day)},
		"expired":         {ExpiredBefore: asOf},
		"aged or expired": {CreatedBefore: asOf.Add(-20 * day), ExpiredBefore: asOf},
		"combined": {
			MemoryType:    types.MemoryTypeImmediate,
			MinImportance: &half,
			CreatedBefore: asOf,
			ExpiredBefore: asOf,
		},
	}
	for name, f := range filters {
		var want []string
		for _, m := range all {
			if f.Match(m) {
				want = append(want, m.ID)
			}
		}

		got, err := s.ListByUser(ctx, "u1", f)
		require.NoError(t, err, name)
		ids := make([]string, 0, len(got))
		for _, m := range got {
			ids = append(ids, m.ID)
		}
		assert.ElementsMatch(t, want, ids, name)
	}
}

func testListUsers(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()
	for _, u := range []string{"b", "a", "b"} {
		require.NoError(t, s.Create(ctx, NewMemory(u, "m", types.MemoryTypeImmediate, 0.1)))
	}
	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, users)
}

func testEmbeddingRoundTrip(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()
	m := NewMemory("u1", "vector", types.MemoryTypeLongTerm, 0.5)
	m.Embedding = []float32{0.25, -0.5, 1}
	m.EmbeddingModel = "test-model"
	require.NoError(t, s.Create(ctx, m))

	got, err := s.Get(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, got.Embedding)
	assert.Equal(t, "test-model", got.EmbeddingModel)

	model := "other-model"
	updated, err := s.Update(ctx, "u1", m.ID, storage.Patch{Embedding: []float32{1, 0}, EmbeddingModel: &model})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, updated.Embedding)

	got, err = s.Get(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, "other-model", got.EmbeddingModel)
	assert.Equal(t, []float32{1, 0}, got.Embedding)
}

func testConcurrentUpdates(t *testing.T, s storage.MemoryStore) {
	ctx := context.Background()
	m := NewMemory("u1", "contended", types.MemoryTypeShortTerm, 0.5)
	require.NoError(t, s.Create(ctx, m))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			lt := types.MemoryTypeLongTerm
			if _, err := s.Update(ctx, "u1", m.ID, storage.Patch{MemoryType: &lt}); err != nil && !errors.Is(err, storage.ErrNotFound) {
				errs <- err
			}
		}()
		go func(i int) {
			defer wg.Done()
			v := float64(i) / 10
			if _, err := s.Update(ctx, "u1", m.ID, storage.Patch{Importance: &v}); err != nil && !errors.Is(err, storage.ErrNotFound) {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent update failed: %v", err)
	}

	got, err := s.Get(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, types.MemoryTypeLongTerm, got.MemoryType, "no update may be lost")
}
