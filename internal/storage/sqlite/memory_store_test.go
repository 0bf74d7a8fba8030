package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memvault/internal/storage"
	"github.com/scrypster/memvault/internal/storage/storagetest"
	"github.com/scrypster/memvault/pkg/types"
)

// newTestStore creates an in-memory SQLite store for testing.
func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	store, err := NewMemoryStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMemoryStoreSuite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.MemoryStore {
		return newTestStore(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	n, err := store.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second migrate should apply nothing")

	mgr, err := storage.NewMigrationManager(store.GetDB(), migrations, nil)
	require.NoError(t, err)
	version, err := mgr.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mgr.Latest(), version)
}

func TestMigrationDown(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mgr, err := storage.NewMigrationManager(store.GetDB(), migrations, nil)
	require.NoError(t, err)

	require.NoError(t, mgr.Down(ctx))
	version, err := mgr.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	n, err := mgr.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memvault.db")

	store, err := NewMemoryStore(path)
	require.NoError(t, err)
	m := storagetest.NewMemory("u1", "survives restart", types.MemoryTypeLongTerm, 0.7)
	require.NoError(t, store.Create(context.Background(), m))
	require.NoError(t, store.Close())

	reopened, err := NewMemoryStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(context.Background(), "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, "survives restart", got.Content)
}

func TestDBPathFromDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{":memory:", ""},
		{"", ""},
		{"file::memory:?cache=shared", ""},
		{"file:/var/lib/memvault.db?_pragma=busy_timeout(5000)", "/var/lib/memvault.db"},
		{"/tmp/data.db", "/tmp/data.db"},
	}
	for _, tt := range tests {
		if got := dbPathFromDSN(tt.dsn); got != tt.want {
			t.Errorf("dbPathFromDSN(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

func TestIsRecoverableWALError(t *testing.T) {
	assert.False(t, isRecoverableWALError(nil))
	assert.True(t, isRecoverableWALError(errors.New("disk I/O error (5386)")))
	assert.True(t, isRecoverableWALError(errors.New("database is locked")))
	assert.False(t, isRecoverableWALError(errors.New("no such table")))
}

func TestIsWALStaleWithoutFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.db")
	assert.False(t, isWALStale(path))
}

func TestRemoveStaleWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.db")
	for _, suffix := range []string{"-shm", "-wal"} {
		require.NoError(t, os.WriteFile(path+suffix, []byte("x"), 0o600))
	}
	removeStaleWAL(path, nil)
	assert.False(t, fileExists(path+"-shm"))
	assert.False(t, fileExists(path+"-wal"))
}
