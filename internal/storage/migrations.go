package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
)

// ErrNoMigration indicates no migration has been applied yet.
var ErrNoMigration = errors.New("no migration")

// Migration is one versioned schema step. Up and Down hold one statement
// per element since not every driver accepts multi-statement Exec.
type Migration struct {
	Version uint
	Name    string
	Up      []string
	Down    []string
}

// MigrationManager applies a backend's ordered migrations and tracks the
// current version in a schema_migrations table.
type MigrationManager struct {
	db         *sql.DB
	migrations []Migration
	rebind     func(string) string
}

// NewMigrationManager creates a MigrationManager for db. rebind converts the
// manager's "?" placeholders into the driver's style; nil leaves them as is.
func NewMigrationManager(db *sql.DB, migrations []Migration, rebind func(string) string) (*MigrationManager, error) {
	if db == nil {
		return nil, fmt.Errorf("migrations: database connection is required")
	}
	if rebind == nil {
		rebind = func(q string) string { return q }
	}

	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Version == sorted[i-1].Version {
			return nil, fmt.Errorf("migrations: duplicate version %d", sorted[i].Version)
		}
	}

	mgr := &MigrationManager{db: db, migrations: sorted, rebind: rebind}

	if err := mgr.ensureSchemaTable(); err != nil {
		return nil, fmt.Errorf("migrations: failed to create schema table: %w", err)
	}

	return mgr, nil
}

// ensureSchemaTable creates the schema_migrations table if it doesn't exist.
func (mgr *MigrationManager) ensureSchemaTable() error {
	_, err := mgr.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version BIGINT PRIMARY KEY,
			name VARCHAR(255) NOT NULL
		)
	`)
	return err
}

// Up applies all pending migrations in ascending version order and returns
// how many were applied. Being up to date is not an error.
func (mgr *MigrationManager) Up(ctx context.Context) (int, error) {
	currentVersion, err := mgr.Version(ctx)
	if err != nil && !errors.Is(err, ErrNoMigration) {
		return 0, fmt.Errorf("migrations: failed to get current version: %w", err)
	}

	applied := 0
	for _, m := range mgr.migrations {
		if m.Version <= currentVersion {
			continue
		}

		for _, stmt := range m.Up {
			if _, err := mgr.db.ExecContext(ctx, stmt); err != nil {
				return applied, fmt.Errorf("migrations: failed to apply version %d (%s): %w", m.Version, m.Name, err)
			}
		}

		if _, err := mgr.db.ExecContext(ctx, mgr.rebind("INSERT INTO schema_migrations (version, name) VALUES (?, ?)"), m.Version, m.Name); err != nil {
			return applied, fmt.Errorf("migrations: failed to record version %d: %w", m.Version, err)
		}

		applied++
	}

	return applied, nil
}

// Down rolls back the most recently applied migration.
func (mgr *MigrationManager) Down(ctx context.Context) error {
	currentVersion, err := mgr.Version(ctx)
	if errors.Is(err, ErrNoMigration) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrations: failed to get current version: %w", err)
	}

	for i := len(mgr.migrations) - 1; i >= 0; i-- {
		m := mgr.migrations[i]
		if m.Version != currentVersion {
			continue
		}

		for _, stmt := range m.Down {
			if _, err := mgr.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrations: failed to roll back version %d (%s): %w", m.Version, m.Name, err)
			}
		}

		if _, err := mgr.db.ExecContext(ctx, mgr.rebind("DELETE FROM schema_migrations WHERE version = ?"), m.Version); err != nil {
			return fmt.Errorf("migrations: failed to remove version %d: %w", m.Version, err)
		}
		return nil
	}

	return fmt.Errorf("migrations: applied version %d is unknown to this build", currentVersion)
}

// Version returns the highest applied migration version.
// Returns (0, ErrNoMigration) when no migration has been applied.
func (mgr *MigrationManager) Version(ctx context.Context) (uint, error) {
	var version int64
	err := mgr.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("migrations: failed to query version: %w", err)
	}

	if version == 0 {
		return 0, ErrNoMigration
	}

	return uint(version), nil
}

// Latest returns the highest version known to this manager.
func (mgr *MigrationManager) Latest() uint {
	if len(mgr.migrations) == 0 {
		return 0
	}
	return mgr.migrations[len(mgr.migrations)-1].Version
}
