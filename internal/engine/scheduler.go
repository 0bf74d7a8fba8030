package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SchedulerConfig configures periodic cleanup.
type SchedulerConfig struct {
	// Interval between sweeps (required).
	Interval time.Duration

	// DaysOld, MemoryType and IncludeExpired are passed to every sweep.
	DaysOld        int
	MemoryType     string
	IncludeExpired bool
}

// CleanupScheduler runs live cleanup sweeps across all users on a ticker.
type CleanupScheduler struct {
	engine *Engine
	cfg    SchedulerConfig

	mu      sync.Mutex
	running bool
	lastRun time.Time
	lastErr error
	nextRun time.Time
	stopCh  chan struct{}
	deleted int
}

// NewCleanupScheduler creates a scheduler over e.
func NewCleanupScheduler(e *Engine, cfg SchedulerConfig) (*CleanupScheduler, error) {
	if e == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("cleanup interval must be > 0, got %v", cfg.Interval)
	}
	return &CleanupScheduler{
		engine: e,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}, nil
}

// Start blocks, sweeping on every tick until ctx is cancelled or Stop is called.
func (s *CleanupScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("cleanup scheduler is already running")
	}
	s.running = true
	s.nextRun = time.Now().Add(s.cfg.Interval)
	s.mu.Unlock()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	log := s.engine.obs.Log()
	log.Info().Str("interval", s.cfg.Interval.String()).Int("days_old", ClampCleanupDays(s.cfg.DaysOld)).Msg("cleanup scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("cleanup scheduler stopping (context cancelled)")
			return ctx.Err()

		case <-s.stopCh:
			log.Info().Msg("cleanup scheduler stopping (stop requested)")
			return nil

		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("scheduled cleanup failed")
			}
			s.mu.Lock()
			s.nextRun = time.Now().Add(s.cfg.Interval)
			s.mu.Unlock()
		}
	}
}

// Stop ends a running Start loop.
func (s *CleanupScheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("cleanup scheduler is not running")
	}

	close(s.stopCh)
	s.running = false
	return nil
}

// RunOnce performs one live sweep across all users.
func (s *CleanupScheduler) RunOnce(ctx context.Context) (*CleanupResult, error) {
	live := false
	res, err := s.engine.CleanupAll(ctx, CleanupRequest{
		DaysOld:        s.cfg.DaysOld,
		MemoryType:     s.cfg.MemoryType,
		IncludeExpired: s.cfg.IncludeExpired,
		DryRun:         &live,
	})

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastErr = err
	if res != nil {
		s.deleted += res.Count
	}
	s.mu.Unlock()

	return res, err
}

// SchedulerStatus is a snapshot of scheduler progress.
type SchedulerStatus struct {
	Running      bool      `json:"running"`
	LastRun      time.Time `json:"lastRun,omitempty"`
	NextRun      time.Time `json:"nextRun,omitempty"`
	LastError    string    `json:"lastError,omitempty"`
	TotalDeleted int       `json:"totalDeleted"`
}

// Status returns the current scheduler state.
func (s *CleanupScheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SchedulerStatus{
		Running:      s.running,
		LastRun:      s.lastRun,
		NextRun:      s.nextRun,
		TotalDeleted: s.deleted,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
