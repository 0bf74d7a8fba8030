package engine

import (
	"errors"
	"fmt"

	"github.com/scrypster/memvault/internal/storage"
)

// ValidationError reports malformed input: a missing field or an out-of-range
// value that is not auto-clamped.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// Unwrap lets callers match storage.ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return storage.ErrInvalidInput
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// SearchError wraps a store or similarity-provider failure during search.
type SearchError struct {
	Op  string
	Err error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search %s failed: %v", e.Op, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// CleanupError reports a sweep that failed partway. Deletions made before
// the failure are not rolled back; Deleted says how many there were.
type CleanupError struct {
	Deleted int
	Err     error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup failed after deleting %d memories: %v", e.Deleted, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

// ArchiveError wraps an archive failure other than a missing record.
type ArchiveError struct {
	ID  string
	Err error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive of memory %s failed: %v", e.ID, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError or wraps storage.ErrInvalidInput.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, storage.ErrInvalidInput)
}

// IsNotFound reports whether err wraps storage.ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

// asValidation converts storage.ErrInvalidInput into a ValidationError and
// passes other errors through.
func asValidation(err error) error {
	var ve *ValidationError
	if errors.Is(err, storage.ErrInvalidInput) && !errors.As(err, &ve) {
		return &ValidationError{Message: err.Error()}
	}
	return err
}
