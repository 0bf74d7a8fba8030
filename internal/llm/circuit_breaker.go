package llm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while a breaker rejects calls: when it is open,
// or half-open with its trial calls already in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig configures a CircuitBreaker. Zero values take the defaults.
type BreakerConfig struct {
	Name string // default: "embedding"

	// MaxFailures consecutive provider failures open the circuit. Default: 3.
	MaxFailures uint32

	// Cooldown is how long the circuit stays open before trying again. Default: 30s.
	Cooldown time.Duration

	// TrialCalls is the number of half-open calls admitted; that many successes
	// close the circuit again. Default: 2.
	TrialCalls uint32

	// OnStateChange is called after every transition. Optional.
	OnStateChange func(name, from, to string)
}

// BreakerStats is a snapshot of a breaker's counters.
type BreakerStats struct {
	Calls               uint64 // calls that reached the provider
	Failures            uint64 // calls the provider failed
	Rejected            uint64 // calls refused without reaching the provider
	ConsecutiveFailures uint32
}

// CircuitBreaker guards calls to a remote embedding provider.
//
// A breaker is safe to share between layers: Do calls nested (through ctx)
// inside a Do of the same breaker run directly, so one logical call is
// admitted and counted once. Calls cancelled by their caller are not held
// against the provider.
type CircuitBreaker struct {
	name string
	gb   *gobreaker.TwoStepCircuitBreaker

	calls    atomic.Uint64
	failures atomic.Uint64
	rejected atomic.Uint64
}

type breakerKey struct{ cb *CircuitBreaker }

// NewCircuitBreaker creates a breaker from cfg.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.Name == "" {
		cfg.Name = "embedding"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.TrialCalls == 0 {
		cfg.TrialCalls = 2
	}

	cb := &CircuitBreaker{name: cfg.Name}
	cb.gb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.TrialCalls,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, stateName(from), stateName(to))
			}
		},
	})
	return cb
}

// Do runs fn under the breaker. A nil breaker runs fn unguarded.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if cb == nil || ctx.Value(breakerKey{cb}) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	done, err := cb.gb.Allow()
	if err != nil {
		cb.rejected.Add(1)
		return fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
	}
	cb.calls.Add(1)

	err = fn(context.WithValue(ctx, breakerKey{cb}, true))
	switch {
	case err == nil:
		done(true)
	case errors.Is(err, context.Canceled):
		// The caller gave up (a sibling search candidate failed, a client
		// went away). That says nothing about the provider, so it is not
		// counted, except that a half-open trial must settle to free its slot.
		if cb.gb.State() == gobreaker.StateHalfOpen {
			done(true)
		}
	default:
		cb.failures.Add(1)
		done(false)
	}
	return err
}

// Call is Do for functions that produce a value.
func Call[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := cb.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Name returns the breaker's name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns "closed", "open" or "half-open".
func (cb *CircuitBreaker) State() string {
	return stateName(cb.gb.State())
}

// Stats returns the breaker's counters.
func (cb *CircuitBreaker) Stats() BreakerStats {
	return BreakerStats{
		Calls:               cb.calls.Load(),
		Failures:            cb.failures.Load(),
		Rejected:            cb.rejected.Load(),
		ConsecutiveFailures: cb.gb.Counts().ConsecutiveFailures,
	}
}

func stateName(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
