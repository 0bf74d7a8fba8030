// Package sqlite provides the SQLite implementation of storage.MemoryStore.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"github.com/felixgeelhaar/bolt/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/memvault/internal/storage/sqlstore"
)

// MemoryStore implements storage.MemoryStore using SQLite.
type MemoryStore struct {
	*sqlstore.Store
}

// Option configures NewMemoryStore.
type Option func(*options)

type options struct {
	log *bolt.Logger
}

// WithLogger reports WAL recovery through l.
func WithLogger(l *bolt.Logger) Option {
	return func(o *options) { o.log = l }
}

// Dialect is the SQLite dialect. SQLite serializes writers through the
// single open connection, so no row lock clause is needed.
var Dialect = sqlstore.Dialect{
	Name:       "sqlite",
	Migrations: migrations,
}

// NewMemoryStore creates a new SQLite memory store with WAL self-healing.
// If the initial open fails due to stale WAL files (left behind by a crashed
// process), it verifies no other process holds them and retries once after
// removing the stale -shm/-wal files.
func NewMemoryStore(dsn string, opts ...Option) (*MemoryStore, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store, err := openMemoryStore(dsn)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || dbPath == ":memory:" {
		return nil, err
	}

	if !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath, o.log)

	store, retryErr := openMemoryStore(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	if o.log != nil {
		o.log.Warn().Str("path", dbPath).Msg("sqlite: recovered from stale WAL files")
	}
	return store, nil
}

// openMemoryStore opens a SQLite database, configures WAL mode, and migrates the schema.
func openMemoryStore(dsn string) (*MemoryStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes (and the read-modify-write in Update) and avoids
	// SQLITE_BUSY under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &MemoryStore{Store: sqlstore.New(db, Dialect)}
	if _, err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return store, nil
}

// GetDB returns the underlying database connection.
func (s *MemoryStore) GetDB() *sql.DB {
	return s.DB()
}

// dbPathFromDSN extracts the filesystem path from a SQLite DSN.
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}

	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" {
			return ""
		}
		return path
	}

	return dsn
}

// isRecoverableWALError returns true if the error matches patterns caused by
// stale WAL files left behind after a crash (SIGKILL, OOM, etc.).
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

// isWALStale checks whether -shm/-wal files exist for the given database path
// AND no other process currently holds them open (via lsof).
// Returns false if lsof is unavailable.
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}

	cmd := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath)
	output, err := cmd.Output()
	if err != nil {
		// lsof exits 1 when nothing holds the files open.
		return true
	}

	return strings.TrimSpace(string(output)) == ""
}

// removeStaleWAL removes -shm and -wal files for the given database path.
func removeStaleWAL(dbPath string, log *bolt.Logger) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && log != nil {
			log.Error().Str("path", path).Err(err).Msg("sqlite: failed to remove stale WAL file")
		}
	}
}

// fileExists returns true if the path exists on disk.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
