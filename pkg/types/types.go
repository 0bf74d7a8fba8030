// Package types defines the core data structures for the memvault memory store.
// These types represent memories, their retention tiers, and the aggregate
// statistics computed over them.
package types

import (
	"fmt"
	"math"
	"strings"
)

// MemoryType is the retention tier of a memory.
type MemoryType string

// Retention tiers
const (
	// MemoryTypeImmediate holds context relevant for the current exchange only.
	MemoryTypeImmediate MemoryType = "immediate"

	// MemoryTypeShortTerm holds context relevant for days to weeks.
	MemoryTypeShortTerm MemoryType = "short_term"

	// MemoryTypeLongTerm holds durable context. Archived memories land here.
	MemoryTypeLongTerm MemoryType = "long_term"
)

// NormalizeMemoryType maps alternate spellings onto the canonical tier names.
// Unknown values are returned exactly as given.
func NormalizeMemoryType(s string) MemoryType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "immediate":
		return MemoryTypeImmediate
	case "short_term", "shortterm", "short-term":
		return MemoryTypeShortTerm
	case "long_term", "longterm", "long-term":
		return MemoryTypeLongTerm
	}
	return MemoryType(s)
}

// Valid reports whether t is one of the canonical tiers.
func (t MemoryType) Valid() bool {
	switch t {
	case MemoryTypeImmediate, MemoryTypeShortTerm, MemoryTypeLongTerm:
		return true
	}
	return false
}

// Label returns a human readable name for the tier.
func (t MemoryType) Label() string {
	switch NormalizeMemoryType(string(t)) {
	case MemoryTypeImmediate:
		return "Immediate"
	case MemoryTypeShortTerm:
		return "Short-term"
	case MemoryTypeLongTerm:
		return "Long-term"
	}
	return "Unknown"
}

// FormatPercent renders a [0,1] score as a whole percentage, e.g. 0.8 -> "80%".
func FormatPercent(v float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(v*100)))
}

// ClampUnit bounds v to [0,1]. NaN becomes 0.
func ClampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
