package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/memvault/internal/storage"
	"github.com/scrypster/memvault/pkg/types"
)

// ArchiveRequest promotes a memory to long_term with a fresh retention window.
type ArchiveRequest struct {
	Reason string

	// RetentionDays sets expiresAt = now + RetentionDays. Zero uses the
	// configured default; other values are clamped to [1,3650].
	RetentionDays int

	// DryRun returns the record as it would look without writing it.
	DryRun bool
}

// ClampRetentionDays applies the archive retention bounds. Zero selects def.
func ClampRetentionDays(days, def int) int {
	if days == 0 {
		days = def
	}
	switch {
	case days < MinRetentionDays:
		return MinRetentionDays
	case days > MaxRetentionDays:
		return MaxRetentionDays
	}
	return days
}

// Archive moves a memory to the long_term tier. Archiving a memory that is
// already long_term changes nothing and returns it as stored.
func (e *Engine) Archive(ctx context.Context, userID, id string, req ArchiveRequest) (*types.Memory, error) {
	ctx, span := e.obs.StartSpan(ctx, "engine.Archive")
	defer span.End()

	if userID == "" {
		return nil, invalid("userId", "is required")
	}
	if id == "" {
		return nil, invalid("id", "is required")
	}

	unlock := e.locks.Lock(userID + "/" + id)
	defer unlock()

	current, err := e.store.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		span.RecordError(err)
		return nil, &ArchiveError{ID: id, Err: err}
	}

	if types.NormalizeMemoryType(string(current.MemoryType)) == types.MemoryTypeLongTerm {
		return current, nil
	}

	now := e.now()
	days := ClampRetentionDays(req.RetentionDays, e.cfg.ArchiveRetentionDays)
	expires := now.AddDate(0, 0, days)
	longTerm := types.MemoryTypeLongTerm

	candidate := current.Clone()
	candidate.MemoryType = longTerm
	rescored, err := e.importance.Score(ctx, candidate)
	if err != nil {
		return nil, &ArchiveError{ID: id, Err: fmt.Errorf("rescore: %w", err)}
	}
	importance := math.Max(current.Importance, types.ClampUnit(rescored))

	patch := storage.Patch{
		MemoryType: &longTerm,
		Importance: &importance,
		ExpiresAt:  &expires,
		ArchivedAt: &now,
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		patch.ArchiveReason = &reason
	}

	if req.DryRun {
		preview := current.Clone()
		patch.Apply(preview, now)
		return preview, nil
	}

	updated, err := e.store.Update(ctx, userID, id, patch)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		span.RecordError(err)
		return nil, &ArchiveError{ID: id, Err: err}
	}

	e.obs.Log().Info().Str("user_id", userID).Str("memory_id", id).Int("retention_days", days).Msg("memory archived")
	e.emit(Event{Type: EventArchived, UserID: userID, MemoryID: id})
	return updated, nil
}

// CleanupRequest selects memories to purge for one user.
type CleanupRequest struct {
	UserID string

	// DaysOld selects memories created more than DaysOld days ago. Zero uses
	// 30; other values are clamped to [1,365].
	DaysOld int

	MemoryType string

	// IncludeExpired also selects memories whose expiresAt has passed,
	// regardless of age.
	IncludeExpired bool

	// DryRun defaults to true when nil: nothing is deleted unless the caller
	// explicitly sets it to false.
	DryRun *bool

	// AsOf is the instant the age and expiry rules are evaluated at. Zero
	// means now. A live run that passes back its preview's AsOf deletes
	// exactly what the preview listed, less anything removed since.
	AsOf time.Time
}

// CleanupResult reports what a sweep matched or deleted.
type CleanupResult struct {
	Count   int             `json:"count"`
	DryRun  bool            `json:"dryRun"`
	DaysOld int             `json:"daysOld"`
	Cutoff  time.Time       `json:"cutoff"`
	AsOf    time.Time       `json:"asOf"`
	Items   []*types.Memory `json:"items,omitempty"`
}

// ClampCleanupDays applies the cleanup age bounds. Zero selects the default.
func ClampCleanupDays(days int) int {
	if days == 0 {
		return DefaultCleanupDays
	}
	switch {
	case days < MinCleanupDays:
		return MinCleanupDays
	case days > MaxCleanupDays:
		return MaxCleanupDays
	}
	return days
}

// Cleanup deletes, or with DryRun previews, the aged memories of one user.
// A live sweep is best effort: on failure the returned CleanupError says how
// many memories were already deleted.
func (e *Engine) Cleanup(ctx context.Context, req CleanupRequest) (*CleanupResult, error) {
	ctx, span := e.obs.StartSpan(ctx, "engine.Cleanup")
	defer span.End()

	if strings.TrimSpace(req.UserID) == "" {
		return nil, invalid("userId", "is required")
	}

	dryRun := req.DryRun == nil || *req.DryRun
	days := ClampCleanupDays(req.DaysOld)
	asOf := e.now()
	if !req.AsOf.IsZero() {
		if req.AsOf.After(asOf) {
			return nil, invalid("asOf", "must not be in the future")
		}
		asOf = req.AsOf
	}
	cutoff := asOf.AddDate(0, 0, -days)

	filter := storage.ListFilter{CreatedBefore: cutoff}
	if req.IncludeExpired {
		filter.ExpiredBefore = asOf
	}
	if req.MemoryType != "" {
		t := types.NormalizeMemoryType(req.MemoryType)
		if !t.Valid() {
			return nil, invalid("memoryType", "unknown memory type %q", req.MemoryType)
		}
		filter.MemoryType = t
	}

	candidates, err := e.store.ListByUser(ctx, req.UserID, filter)
	if err != nil {
		span.RecordError(err)
		return nil, &CleanupError{Err: err}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	res := &CleanupResult{DryRun: dryRun, DaysOld: days, Cutoff: cutoff, AsOf: asOf}
	if dryRun {
		res.Count = len(candidates)
		res.Items = append(make([]*types.Memory, 0, len(candidates)), candidates...)
		return res, nil
	}

	for _, m := range candidates {
		if err := e.deleteForCleanup(ctx, req.UserID, m.ID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			span.RecordError(err)
			e.obs.Log().Error().Err(err).Str("user_id", req.UserID).Int("deleted", res.Count).Msg("cleanup aborted")
			if res.Count > 0 {
				e.emit(Event{Type: EventCleanup, UserID: req.UserID, Count: res.Count})
			}
			return res, &CleanupError{Deleted: res.Count, Err: err}
		}
		res.Count++
	}

	e.obs.Log().Info().Str("user_id", req.UserID).Int("deleted", res.Count).Int("days_old", days).Msg("cleanup completed")
	e.emit(Event{Type: EventCleanup, UserID: req.UserID, Count: res.Count})
	return res, nil
}

func (e *Engine) deleteForCleanup(ctx context.Context, userID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := e.locks.Lock(userID + "/" + id)
	defer unlock()
	return e.store.Delete(ctx, userID, id)
}

// CleanupAll runs Cleanup for every user that has memories. req.UserID is
// ignored. Counts are summed; the first failure stops the sweep.
func (e *Engine) CleanupAll(ctx context.Context, req CleanupRequest) (*CleanupResult, error) {
	users, err := e.store.ListUsers(ctx)
	if err != nil {
		return nil, &CleanupError{Err: err}
	}

	if req.AsOf.IsZero() {
		req.AsOf = e.now()
	}
	days := ClampCleanupDays(req.DaysOld)
	total := &CleanupResult{
		DryRun:  req.DryRun == nil || *req.DryRun,
		DaysOld: days,
		Cutoff:  req.AsOf.AddDate(0, 0, -days),
		AsOf:    req.AsOf,
	}
	if total.DryRun {
		total.Items = []*types.Memory{}
	}
	for _, userID := range users {
		r := req
		r.UserID = userID
		res, err := e.Cleanup(ctx, r)
		if res != nil {
			total.Count += res.Count
			total.Items = append(total.Items, res.Items...)
		}
		if err != nil {
			var ce *CleanupError
			if errors.As(err, &ce) {
				return total, &CleanupError{Deleted: total.Count, Err: ce.Err}
			}
			return total, err
		}
	}
	return total, nil
}
