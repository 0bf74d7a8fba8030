// Package postgres provides a PostgreSQL implementation of storage interfaces.
// This file contains test helpers only available during testing.
package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from the memories table.
func (s *MemoryStore) TruncateForTest(ctx context.Context) error {
	_, err := s.DB().ExecContext(ctx, "TRUNCATE TABLE memories")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate memories: %w", err)
	}
	return nil
}
