package llm_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memvault/internal/llm"
)

var errProvider = errors.New("provider down")

func fail(context.Context) error    { return errProvider }
func succeed(context.Context) error { return nil }

func waitHalfOpen(t *testing.T, cb *llm.CircuitBreaker) {
	t.Helper()
	require.Eventually(t, func() bool { return cb.State() == "half-open" },
		2*time.Second, 10*time.Millisecond)
}

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	cb := llm.NewCircuitBreaker(llm.BreakerConfig{})

	v, err := llm.Call(context.Background(), cb, func(context.Context) (string, error) {
		return "vec", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "vec", v)
	assert.Equal(t, "closed", cb.State())
	assert.Equal(t, uint64(1), cb.Stats().Calls)
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := llm.NewCircuitBreaker(llm.BreakerConfig{MaxFailures: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Do(ctx, fail), errProvider)
	}
	assert.Equal(t, "open", cb.State())

	called := false
	err := cb.Do(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, llm.ErrCircuitOpen)
	assert.False(t, called)

	stats := cb.Stats()
	assert.Equal(t, uint64(3), stats.Calls)
	assert.Equal(t, uint64(3), stats.Failures)
	assert.Equal(t, uint64(1), stats.Rejected)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []string
	)
	cb := llm.NewCircuitBreaker(llm.BreakerConfig{
		Name:        "test",
		MaxFailures: 1,
		Cooldown:    50 * time.Millisecond,
		TrialCalls:  2,
		OnStateChange: func(name, from, to string) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, from+"->"+to)
		},
	})
	ctx := context.Background()

	_ = cb.Do(ctx, fail)
	waitHalfOpen(t, cb)

	require.NoError(t, cb.Do(ctx, succeed))
	require.NoError(t, cb.Do(ctx, succeed))
	assert.Equal(t, "closed", cb.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreaker_HalfOpenBudgetReportsOpen(t *testing.T) {
	cb := llm.NewCircuitBreaker(llm.BreakerConfig{MaxFailures: 1, Cooldown: 50 * time.Millisecond, TrialCalls: 1})
	ctx := context.Background()

	_ = cb.Do(ctx, fail)
	waitHalfOpen(t, cb)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = cb.Do(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := cb.Do(ctx, succeed)
	close(release)
	assert.ErrorIs(t, err, llm.ErrCircuitOpen)
}

func TestCircuitBreaker_CancelledCallerIsNotAFailure(t *testing.T) {
	cb := llm.NewCircuitBreaker(llm.BreakerConfig{MaxFailures: 2})

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		err := cb.Do(ctx, func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		})
		assert.ErrorIs(t, err, context.Canceled)
	}

	assert.Equal(t, "closed", cb.State())
	assert.Zero(t, cb.Stats().Failures)

	// Nor does it reset the run of real failures.
	ctx, cancel := context.WithCancel(context.Background())
	_ = cb.Do(context.Background(), fail)
	_ = cb.Do(ctx, func(ctx context.Context) error { cancel(); return ctx.Err() })
	_ = cb.Do(context.Background(), fail)
	assert.Equal(t, "open", cb.State())
}

func TestCircuitBreaker_CancelledBeforeCallSkipsProvider(t *testing.T) {
	cb := llm.NewCircuitBreaker(llm.BreakerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.Do(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Zero(t, cb.Stats().Calls)
}

func TestCircuitBreaker_NestedCallsCountOnce(t *testing.T) {
	cb := llm.NewCircuitBreaker(llm.BreakerConfig{MaxFailures: 2, Cooldown: 50 * time.Millisecond, TrialCalls: 1})
	ctx := context.Background()

	nested := func(ctx context.Context) error {
		return cb.Do(ctx, fail)
	}

	// One logical failure per outer call, so two are needed to trip.
	_ = cb.Do(ctx, nested)
	assert.Equal(t, "closed", cb.State())
	_ = cb.Do(ctx, nested)
	assert.Equal(t, "open", cb.State())
	assert.Equal(t, uint64(2), cb.Stats().Failures)

	// A single admitted trial call must not be rejected by its own inner call.
	waitHalfOpen(t, cb)
	err := cb.Do(ctx, func(ctx context.Context) error {
		return cb.Do(ctx, succeed)
	})
	require.NoError(t, err)
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreaker_NilRunsUnguarded(t *testing.T) {
	var cb *llm.CircuitBreaker
	assert.ErrorIs(t, cb.Do(context.Background(), fail), errProvider)
	assert.NoError(t, cb.Do(context.Background(), succeed))
}
