// Package mysql provides a MySQL implementation of storage.MemoryStore.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/scrypster/memvault/internal/storage/sqlstore"
)

// Dialect is the MySQL dialect.
var Dialect = sqlstore.Dialect{
	Name:       "mysql",
	LockClause: " FOR UPDATE",
	Migrations: migrations,
}

// MemoryStore implements storage.MemoryStore using MySQL (InnoDB).
type MemoryStore struct {
	*sqlstore.Store
}

// NewMemoryStore creates a new MySQL memory store.
// The dsn uses the driver's format, e.g. "user:pass@tcp(localhost:3306)/memvault".
func NewMemoryStore(dsn string) (*MemoryStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: invalid dsn: %w", err)
	}
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: failed to ping database: %w", err)
	}

	store := &MemoryStore{Store: sqlstore.New(db, Dialect)}
	if _, err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: failed to apply schema: %w", err)
	}

	return store, nil
}

// GetDB returns the underlying database connection.
func (s *MemoryStore) GetDB() *sql.DB {
	return s.DB()
}
