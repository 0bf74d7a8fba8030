package handlers

import (
	"time"

	"github.com/scrypster/memvault/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error codes carried in ErrorResponse.Code.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeSearchFailed = "SEARCH_FAILED"
	CodeCleanup      = "CLEANUP_FAILED"
	CodeArchive      = "ARCHIVE_FAILED"
	CodeRateLimited  = "RATE_LIMITED"
	CodeInternal     = "INTERNAL_ERROR"
)

// MemoryView is a memory as rendered by the API, with display labels.
type MemoryView struct {
	*types.Memory
	ImportanceLabel string `json:"importanceLabel"`
	MemoryTypeLabel string `json:"memoryTypeLabel"`
}

// NewMemoryView wraps m for output.
func NewMemoryView(m *types.Memory) MemoryView {
	return MemoryView{
		Memory:          m,
		ImportanceLabel: types.FormatPercent(m.Importance),
		MemoryTypeLabel: m.MemoryType.Label(),
	}
}

func newMemoryViews(ms []*types.Memory) []MemoryView {
	out := make([]MemoryView, 0, len(ms))
	for _, m := range ms {
		out = append(out, NewMemoryView(m))
	}
	return out
}

// CreateMemoryRequest is the request body for POST /api/memories.
type CreateMemoryRequest struct {
	Content        string     `json:"content"`
	MemoryType     string     `json:"memoryType"`
	Importance     *float64   `json:"importance,omitempty"`
	ConversationID string     `json:"conversationId,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

// UpdateMemoryRequest is the request body for PATCH /api/memories/{id}.
type UpdateMemoryRequest struct {
	Content *string `json:"content"`
}

// SearchResponse is the response format for GET /api/memories.
type SearchResponse struct {
	Items  []MemoryView `json:"items"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// ArchiveRequest is the request body for POST /api/memories/{id}/archive.
type ArchiveRequest struct {
	Reason          string `json:"reason,omitempty"`
	RetentionPeriod int    `json:"retentionPeriod,omitempty"` // days
	DryRun          bool   `json:"dryRun,omitempty"`
}

// CleanupRequest is the request body for POST /api/memories/cleanup.
// DryRun defaults to true; a live run also needs Confirm. Sending back a
// preview's asOf makes the live run delete exactly what was previewed.
type CleanupRequest struct {
	DaysOld        int        `json:"daysOld,omitempty"`
	MemoryType     string     `json:"memoryType,omitempty"`
	DryRun         *bool      `json:"dryRun,omitempty"`
	IncludeExpired bool       `json:"includeExpired,omitempty"`
	Confirm        bool       `json:"confirm,omitempty"`
	AsOf           *time.Time `json:"asOf,omitempty"`
}

// CleanupResponse is the response format for POST /api/memories/cleanup.
// Items lists the matched memories on a dry run and is empty otherwise.
type CleanupResponse struct {
	Count   int          `json:"count"`
	DryRun  bool         `json:"dryRun"`
	DaysOld int          `json:"daysOld"`
	Cutoff  time.Time    `json:"cutoff"`
	AsOf    time.Time    `json:"asOf"`
	Items   []MemoryView `json:"items"`
}

// HealthResponse is the response format for GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Store   string `json:"store"`
}
