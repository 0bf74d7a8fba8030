// Package backup takes consistent point-in-time snapshots of a SQLite memory
// store and prunes old snapshots with a tiered retention policy.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// fileLayout names snapshot files; it sorts lexically by time.
const fileLayout = "memvault-20060102-150405.db"

// Result describes one snapshot.
type Result struct {
	Path     string        `json:"path"`
	Size     int64         `json:"size"`
	Duration time.Duration `json:"duration"`
	Verified bool          `json:"verified"`
}

// Snapshot writes a copy of db into dir using VACUUM INTO, which is
// consistent under WAL. With verify the copy is integrity checked.
func Snapshot(ctx context.Context, db *sql.DB, dir string, now time.Time, verify bool) (*Result, error) {
	start := time.Now()

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	path := filepath.Join(dir, now.UTC().Format(fileLayout))
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("backup %s already exists", path)
	}

	// VACUUM INTO does not accept a bound parameter for the target.
	target := strings.ReplaceAll(path, "'", "''")
	if _, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", target)); err != nil {
		return nil, fmt.Errorf("failed to backup database: %w", err)
	}

	res := &Result{Path: path}
	if verify {
		if err := Verify(ctx, path); err != nil {
			return nil, err
		}
		res.Verified = true
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup: %w", err)
	}
	res.Size = info.Size()
	res.Duration = time.Since(start)
	return res, nil
}

// Verify runs SQLite's integrity_check against a snapshot.
func Verify(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to run integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
