package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/memvault/internal/storage"
	"github.com/scrypster/memvault/pkg/types"
)

// Stats aggregates counts for one user. Calendar buckets (today, this week,
// this month) use the configured location; weeks start on Monday.
func (e *Engine) Stats(ctx context.Context, userID string) (*types.Stats, error) {
	ctx, span := e.obs.StartSpan(ctx, "engine.Stats")
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, invalid("userId", "is required")
	}

	all, err := e.store.ListByUser(ctx, userID, storage.ListFilter{})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load memories for stats: %w", err)
	}

	return e.aggregate(all, e.now()), nil
}

func (e *Engine) aggregate(all []*types.Memory, now time.Time) *types.Stats {
	now = now.In(e.cfg.Location)
	day := startOfDay(now)
	week := startOfWeek(now)
	month := startOfMonth(now)
	soon := now.Add(ExpiringSoonWindow)

	s := &types.Stats{GeneratedAt: now}
	var sum float64

	for _, m := range all {
		s.TotalCount++
		sum += m.Importance
		s.ImportanceHistogram.Add(m.Importance)

		switch types.NormalizeMemoryType(string(m.MemoryType)) {
		case types.MemoryTypeImmediate:
			s.ImmediateCount++
		case types.MemoryTypeShortTerm:
			s.ShortTermCount++
		case types.MemoryTypeLongTerm:
			s.LongTermCount++
		}

		created := m.CreatedAt.In(e.cfg.Location)
		if !created.Before(day) {
			s.CreatedToday++
		}
		if !created.Before(week) {
			s.CreatedThisWeek++
		}
		if !created.Before(month) {
			s.CreatedThisMonth++
		}

		if m.ExpiresAt != nil {
			switch {
			case m.Expired(now):
				s.Expired++
			case !m.ExpiresAt.After(soon):
				s.ExpiringSoon++
			}
		}
	}

	if s.TotalCount > 0 {
		s.AverageImportance = sum / float64(s.TotalCount)
	}
	return s
}

// Trend buckets one user's memory creation over a range: "week" gives 7 daily
// points, "month" 30 daily points, "year" 12 monthly points. The last point
// is the current day or month.
func (e *Engine) Trend(ctx context.Context, userID, rng string) (*types.Trend, error) {
	ctx, span := e.obs.StartSpan(ctx, "engine.Trend")
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, invalid("userId", "is required")
	}

	r := types.TrendRange(strings.ToLower(strings.TrimSpace(rng)))
	if r == "" {
		r = types.TrendWeek
	}

	now := e.now().In(e.cfg.Location)
	var starts []time.Time
	var layout string
	switch r {
	case types.TrendWeek, types.TrendMonth:
		n := 7
		if r == types.TrendMonth {
			n = 30
		}
		today := startOfDay(now)
		for i := n - 1; i >= 0; i-- {
			starts = append(starts, today.AddDate(0, 0, -i))
		}
		starts = append(starts, today.AddDate(0, 0, 1))
		layout = "2006-01-02"
	case types.TrendYear:
		month := startOfMonth(now)
		for i := 11; i >= 0; i-- {
			starts = append(starts, month.AddDate(0, -i, 0))
		}
		starts = append(starts, month.AddDate(0, 1, 0))
		layout = "2006-01"
	default:
		return nil, invalid("range", "must be one of week, month, year; got %q", rng)
	}

	all, err := e.store.ListByUser(ctx, userID, storage.ListFilter{
		CreatedFrom: starts[0],
		CreatedTo:   starts[len(starts)-1].Add(-time.Microsecond),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load memories for trend: %w", err)
	}

	points := make([]types.TrendPoint, len(starts)-1)
	for i := range points {
		points[i] = types.TrendPoint{Label: starts[i].Format(layout), Start: starts[i]}
	}
	for _, m := range all {
		created := m.CreatedAt.In(e.cfg.Location)
		for i := range points {
			if !created.Before(starts[i]) && created.Before(starts[i+1]) {
				points[i].Count++
				break
			}
		}
	}

	return &types.Trend{Range: r, Points: points}, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return startOfDay(t).AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}
