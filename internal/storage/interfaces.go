// Package storage provides the storage interfaces for the memvault memory store.
//
// The storage layer is kept deliberately small: one ctx-first interface that
// every backend (sqlite, postgres, mysql) implements, plus the filter and
// patch types the engine builds on. Scoring never happens here; importance
// and similarity are always supplied by the caller.
package storage

import (
	"context"

	"github.com/scrypster/memvault/pkg/types"
)

// MemoryStore provides durable CRUD for memories keyed by (userID, id) and
// list access keyed by userID.
type MemoryStore interface {
	// Create persists a new memory. An empty ID is replaced with a fresh UUID
	// and zero timestamps are set to now.
	// Returns ErrInvalidInput if userID, content or memoryType is missing.
	Create(ctx context.Context, memory *types.Memory) error

	// Get retrieves a memory owned by userID.
	// Returns ErrNotFound if it doesn't exist or belongs to another user.
	Get(ctx context.Context, userID, id string) (*types.Memory, error)

	// Update applies a partial update under a row lock and returns the
	// updated memory. Returns ErrNotFound if the memory doesn't exist.
	Update(ctx context.Context, userID, id string, patch Patch) (*types.Memory, error)

	// Delete permanently removes a memory.
	// Returns ErrNotFound if the memory doesn't exist, so a second delete fails.
	Delete(ctx context.Context, userID, id string) error

	// ListByUser returns every memory of userID matching filter, in no
	// particular order. Sorting and pagination belong to the caller.
	ListByUser(ctx context.Context, userID string, filter ListFilter) ([]*types.Memory, error)

	// ListUsers returns the distinct owners that have at least one memory.
	ListUsers(ctx context.Context) ([]string, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
