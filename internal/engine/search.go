package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scrypster/memvault/internal/scoring"
	"github.com/scrypster/memvault/internal/storage"
	"github.com/scrypster/memvault/pkg/types"
)

// SearchRequest filters, scores and pages one user's memories.
type SearchRequest struct {
	UserID string

	// Query enables similarity scoring when non-empty.
	Query string

	MemoryType    string
	MinImportance *float64
	FromDate      *time.Time
	ToDate        *time.Time

	// SimilarityThreshold drops query matches below it. Nil uses the
	// engine default.
	SimilarityThreshold *float64

	SortBy string
	Limit  int
	Offset int
}

// SearchResult is one page of matches. Total counts every match before paging.
type SearchResult struct {
	Items  []*types.Memory `json:"items"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// Search returns the memories of req.UserID matching the filters. With a
// query, each candidate is scored by the similarity provider and those below
// the threshold are dropped.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	ctx, span := e.obs.StartSpan(ctx, "engine.Search")
	defer span.End()

	filter, threshold, err := e.searchFilter(req)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	candidates, err := e.store.ListByUser(ctx, req.UserID, filter)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, storage.ErrInvalidInput) {
			return nil, asValidation(err)
		}
		return nil, &SearchError{Op: "list", Err: err}
	}

	query := strings.TrimSpace(req.Query)
	if query != "" {
		candidates, err = e.scoreCandidates(ctx, query, candidates, threshold)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	Sort(candidates, ParseSortKey(req.SortBy))

	total := len(candidates)
	start := req.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	items := make([]*types.Memory, 0, end-start)
	items = append(items, candidates[start:end]...)

	return &SearchResult{Items: items, Total: total, Limit: limit, Offset: req.Offset}, nil
}

func (e *Engine) searchFilter(req SearchRequest) (storage.ListFilter, float64, error) {
	var f storage.ListFilter

	if strings.TrimSpace(req.UserID) == "" {
		return f, 0, invalid("userId", "is required")
	}
	if req.Limit < 0 {
		return f, 0, invalid("limit", "must be >= 0, got %d", req.Limit)
	}
	if req.Offset < 0 {
		return f, 0, invalid("offset", "must be >= 0, got %d", req.Offset)
	}

	if req.MemoryType != "" {
		t := types.NormalizeMemoryType(req.MemoryType)
		if !t.Valid() {
			return f, 0, invalid("memoryType", "unknown memory type %q", req.MemoryType)
		}
		f.MemoryType = t
	}

	if req.MinImportance != nil {
		if *req.MinImportance < 0 || *req.MinImportance > 1 {
			return f, 0, invalid("minImportance", "must be within [0,1], got %v", *req.MinImportance)
		}
		v := *req.MinImportance
		f.MinImportance = &v
	}

	if req.FromDate != nil {
		f.CreatedFrom = *req.FromDate
	}
	if req.ToDate != nil {
		f.CreatedTo = *req.ToDate
	}
	if req.FromDate != nil && req.ToDate != nil && req.FromDate.After(*req.ToDate) {
		return f, 0, invalid("fromDate", "is after toDate")
	}

	threshold := e.cfg.SimilarityThreshold
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
		if threshold < 0 || threshold > 1 {
			return f, 0, invalid("similarityThreshold", "must be within [0,1], got %v", threshold)
		}
	}

	return f, threshold, nil
}

// scoreCandidates runs the similarity provider over candidates with bounded
// parallelism. Any provider failure fails the whole search.
func (e *Engine) scoreCandidates(ctx context.Context, query string, candidates []*types.Memory, threshold float64) ([]*types.Memory, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.SearchTimeout)
	defer cancel()

	scores := make([]float64, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.SearchConcurrency)

	for i, m := range candidates {
		i, m := i, m
		g.Go(func() error {
			s, err := e.similarity.Similarity(gctx, query, m)
			if err != nil {
				return err
			}
			scores[i] = types.ClampUnit(s)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, scoring.ErrSimilarityTimeout) {
			return nil, &SearchError{Op: "similarity", Err: scoring.ErrSimilarityTimeout}
		}
		return nil, &SearchError{Op: "similarity", Err: err}
	}

	kept := candidates[:0]
	for i, m := range candidates {
		if scores[i] < threshold {
			continue
		}
		s := scores[i]
		m.Similarity = &s
		kept = append(kept, m)
	}
	return kept, nil
}
