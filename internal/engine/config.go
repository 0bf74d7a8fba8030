package engine

import (
	"fmt"
	"time"
)

// Bounds applied by the lifecycle and search operations.
const (
	MinRetentionDays     = 1
	MaxRetentionDays     = 3650
	DefaultRetentionDays = 365

	MinCleanupDays     = 1
	MaxCleanupDays     = 365
	DefaultCleanupDays = 30

	DefaultLimit = 10
	MaxLimit     = 100

	DefaultSimilarityThreshold = 0.7

	// ExpiringSoonWindow is how far ahead Stats looks for expiring memories.
	ExpiringSoonWindow = 7 * 24 * time.Hour
)

// Config holds configuration for the engine.
type Config struct {
	// SimilarityThreshold is the default drop threshold for query search (default: 0.7).
	SimilarityThreshold float64

	// SearchTimeout bounds the whole similarity phase of one search (default: 10s).
	SearchTimeout time.Duration

	// SearchConcurrency caps parallel similarity calls per search (default: 8).
	SearchConcurrency int

	// ImmediateTTL and ShortTermTTL set the default expiry of new memories of
	// those tiers. Zero disables the default (default: 24h and 720h).
	ImmediateTTL time.Duration
	ShortTermTTL time.Duration

	// ArchiveRetentionDays is used when an archive request gives no retention (default: 365).
	ArchiveRetentionDays int

	// EmbedTimeout bounds the best-effort embedding computed on create/edit (default: 5s).
	EmbedTimeout time.Duration

	// Location is the timezone for calendar buckets in statistics (default: UTC).
	Location *time.Location
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:  DefaultSimilarityThreshold,
		SearchTimeout:        10 * time.Second,
		SearchConcurrency:    8,
		ImmediateTTL:         24 * time.Hour,
		ShortTermTTL:         30 * 24 * time.Hour,
		ArchiveRetentionDays: DefaultRetentionDays,
		EmbedTimeout:         5 * time.Second,
		Location:             time.UTC,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("SimilarityThreshold must be within [0,1], got %v", c.SimilarityThreshold)
	}

	if c.SearchTimeout <= 0 {
		return fmt.Errorf("SearchTimeout must be > 0, got %v", c.SearchTimeout)
	}

	if c.SearchConcurrency < 1 {
		return fmt.Errorf("SearchConcurrency must be >= 1, got %d", c.SearchConcurrency)
	}

	if c.ImmediateTTL < 0 || c.ShortTermTTL < 0 {
		return fmt.Errorf("TTLs must be >= 0")
	}

	if c.ArchiveRetentionDays < MinRetentionDays || c.ArchiveRetentionDays > MaxRetentionDays {
		return fmt.Errorf("ArchiveRetentionDays must be within [%d,%d], got %d", MinRetentionDays, MaxRetentionDays, c.ArchiveRetentionDays)
	}

	if c.EmbedTimeout <= 0 {
		return fmt.Errorf("EmbedTimeout must be > 0, got %v", c.EmbedTimeout)
	}

	if c.Location == nil {
		return fmt.Errorf("Location is required")
	}

	return nil
}
