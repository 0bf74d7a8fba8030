package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/memvault/pkg/types"
)

var (
	// ErrNotFound indicates that the requested memory was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// ListFilter restricts ListByUser results. Zero values mean "no bound".
type ListFilter struct {
	// MemoryType restricts to an exact (normalized) tier.
	MemoryType types.MemoryType

	// MinImportance keeps memories with importance >= this value.
	// Nil means no floor.
	MinImportance *float64

	// CreatedFrom and CreatedTo bound createdAt inclusively.
	CreatedFrom time.Time
	CreatedTo   time.Time

	// CreatedBefore bounds createdAt strictly (age-based cleanup).
	CreatedBefore time.Time

	// ExpiredBefore selects memories whose expiresAt is at or before this time.
	// When combined with CreatedBefore the two are OR-ed.
	ExpiredBefore time.Time
}

// Validate checks that the filter is self-consistent.
func (f ListFilter) Validate() error {
	if f.MinImportance != nil && (*f.MinImportance < 0 || *f.MinImportance > 1) {
		return fmt.Errorf("%w: minImportance must be within [0,1]", ErrInvalidInput)
	}
	if !f.CreatedFrom.IsZero() && !f.CreatedTo.IsZero() && f.CreatedFrom.After(f.CreatedTo) {
		return fmt.Errorf("%w: fromDate is after toDate", ErrInvalidInput)
	}
	return nil
}

// Match reports whether m satisfies the filter. It is the reference the SQL
// backends' WHERE clauses are checked against.
func (f ListFilter) Match(m *types.Memory) bool {
	if f.MemoryType != "" && types.NormalizeMemoryType(string(m.MemoryType)) != types.NormalizeMemoryType(string(f.MemoryType)) {
		return false
	}
	if f.MinImportance != nil && m.Importance < *f.MinImportance {
		return false
	}
	if !f.CreatedFrom.IsZero() && m.CreatedAt.Before(f.CreatedFrom) {
		return false
	}
	if !f.CreatedTo.IsZero() && m.CreatedAt.After(f.CreatedTo) {
		return false
	}

	aged := !f.CreatedBefore.IsZero() && m.CreatedAt.Before(f.CreatedBefore)
	expired := !f.ExpiredBefore.IsZero() && m.Expired(f.ExpiredBefore)
	switch {
	case !f.CreatedBefore.IsZero() && !f.ExpiredBefore.IsZero():
		return aged || expired
	case !f.CreatedBefore.IsZero():
		return aged
	case !f.ExpiredBefore.IsZero():
		return expired
	}
	return true
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Content    *string
	Importance *float64
	MemoryType *types.MemoryType

	// ExpiresAt sets a new expiry; ClearExpiresAt removes it. ClearExpiresAt wins.
	ExpiresAt      *time.Time
	ClearExpiresAt bool

	ArchivedAt    *time.Time
	ArchiveReason *string

	// Embedding replaces the stored vector when EmbeddingModel is non-nil.
	// An empty Embedding with a non-nil model clears the vector.
	Embedding      []float32
	EmbeddingModel *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Content == nil && p.Importance == nil && p.MemoryType == nil &&
		p.ExpiresAt == nil && !p.ClearExpiresAt && p.ArchivedAt == nil &&
		p.ArchiveReason == nil && p.EmbeddingModel == nil
}

// Validate rejects patches that would break record invariants.
func (p Patch) Validate() error {
	if p.Content != nil && strings.TrimSpace(*p.Content) == "" {
		return fmt.Errorf("%w: content must not be empty", ErrInvalidInput)
	}
	if p.Importance != nil && (*p.Importance < 0 || *p.Importance > 1) {
		return fmt.Errorf("%w: importance must be within [0,1]", ErrInvalidInput)
	}
	if p.MemoryType != nil && !p.MemoryType.Valid() {
		return fmt.Errorf("%w: unknown memory type %q", ErrInvalidInput, *p.MemoryType)
	}
	return nil
}

// Apply writes the patch onto m and stamps UpdatedAt. Identity fields
// (ID, UserID, ConversationID, CreatedAt) are never touched.
func (p Patch) Apply(m *types.Memory, now time.Time) {
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.Importance != nil {
		m.Importance = *p.Importance
	}
	if p.MemoryType != nil {
		m.MemoryType = *p.MemoryType
	}
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		m.ExpiresAt = &t
	}
	if p.ClearExpiresAt {
		m.ExpiresAt = nil
	}
	if p.ArchivedAt != nil {
		t := *p.ArchivedAt
		m.ArchivedAt = &t
	}
	if p.ArchiveReason != nil {
		m.ArchiveReason = *p.ArchiveReason
	}
	if p.EmbeddingModel != nil {
		m.EmbeddingModel = *p.EmbeddingModel
		m.Embedding = append([]float32(nil), p.Embedding...)
		if len(m.Embedding) == 0 {
			m.Embedding = nil
		}
	}
	m.UpdatedAt = now
}

// ValidateNew checks the required fields of a memory about to be created.
func ValidateNew(m *types.Memory) error {
	if m == nil {
		return ErrInvalidInput
	}
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if m.MemoryType == "" {
		return fmt.Errorf("%w: memoryType is required", ErrInvalidInput)
	}
	if !types.NormalizeMemoryType(string(m.MemoryType)).Valid() {
		return fmt.Errorf("%w: unknown memory type %q", ErrInvalidInput, m.MemoryType)
	}
	if m.Importance < 0 || m.Importance > 1 {
		return fmt.Errorf("%w: importance must be within [0,1]", ErrInvalidInput)
	}
	return nil
}
