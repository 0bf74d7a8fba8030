package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/scrypster/memvault/internal/engine"
)

// dateLayout is the bare-date form accepted for fromDate and toDate.
const dateLayout = "2006-01-02"

// SearchMemories handles GET /api/memories.
//
// Query parameters: query, memoryType, minImportance, fromDate, toDate,
// sortBy, similarityThreshold, limit, offset. page and pageSize are accepted
// as an alternative to limit/offset. Dates are RFC 3339 or YYYY-MM-DD; a
// bare toDate covers the whole day.
func (h *APIHandlers) SearchMemories(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r.URL.Query())
	if err != nil {
		respondErrorCode(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	req.UserID = UserFromContext(r.Context())

	res, err := h.engine.Search(r.Context(), req)
	if err != nil {
		h.respondEngineError(w, "failed to search memories", err)
		return
	}

	respondJSON(w, http.StatusOK, SearchResponse{
		Items:  newMemoryViews(res.Items),
		Total:  res.Total,
		Limit:  res.Limit,
		Offset: res.Offset,
	})
}

func parseSearchRequest(q url.Values) (engine.SearchRequest, error) {
	req := engine.SearchRequest{
		Query:      q.Get("query"),
		MemoryType: q.Get("memoryType"),
		SortBy:     q.Get("sortBy"),
	}

	var err error
	if req.MinImportance, err = parseFloatParam(q, "minImportance"); err != nil {
		return req, err
	}
	if req.SimilarityThreshold, err = parseFloatParam(q, "similarityThreshold"); err != nil {
		return req, err
	}
	if req.FromDate, err = parseDateParam(q, "fromDate", false); err != nil {
		return req, err
	}
	if req.ToDate, err = parseDateParam(q, "toDate", true); err != nil {
		return req, err
	}

	if q.Get("page") != "" || q.Get("pageSize") != "" {
		page, err := parseInt(q.Get("page"), 1)
		if err != nil || page < 1 {
			return req, fmt.Errorf("page must be a positive integer")
		}
		size, err := parseInt(q.Get("pageSize"), engine.DefaultLimit)
		if err != nil || size < 1 {
			return req, fmt.Errorf("pageSize must be a positive integer")
		}
		req.Limit = size
		req.Offset = (page - 1) * size
		return req, nil
	}

	if req.Limit, err = parseInt(q.Get("limit"), 0); err != nil {
		return req, fmt.Errorf("limit must be an integer")
	}
	if req.Offset, err = parseInt(q.Get("offset"), 0); err != nil {
		return req, fmt.Errorf("offset must be an integer")
	}
	return req, nil
}

func parseFloatParam(q url.Values, key string) (*float64, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number", key)
	}
	return &v, nil
}

// parseDateParam accepts RFC 3339 or YYYY-MM-DD. With endOfDay, a bare date
// resolves to the last microsecond of that day (UTC).
func parseDateParam(q url.Values, key string, endOfDay bool) (*time.Time, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC 3339 or YYYY-MM-DD", key)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Microsecond)
	}
	return &t, nil
}
