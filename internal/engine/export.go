package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/scrypster/memvault/internal/storage"
	"github.com/scrypster/memvault/pkg/types"
)

// Export snapshots a user's statistics and all of their memories, newest first.
func (e *Engine) Export(ctx context.Context, userID string) (*types.Export, error) {
	ctx, span := e.obs.StartSpan(ctx, "engine.Export")
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, invalid("userId", "is required")
	}

	all, err := e.store.ListByUser(ctx, userID, storage.ListFilter{})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load memories for export: %w", err)
	}

	now := e.now()
	stats := e.aggregate(all, now)
	Sort(all, SortDateDesc)
	if all == nil {
		all = []*types.Memory{}
	}

	return &types.Export{
		ExportedAt: now,
		UserID:     userID,
		Stats:      stats,
		Memories:   all,
	}, nil
}
