package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/memvault/internal/llm"
	"github.com/scrypster/memvault/pkg/types"
)

// ErrSimilarityTimeout is returned when a similarity call exceeds its deadline.
var ErrSimilarityTimeout = errors.New("similarity provider timed out")

// Guard bounds every call of the wrapped provider with a timeout and, when
// given a breaker, routes it through it. A provider that keeps failing is
// then short circuited with llm.ErrCircuitOpen instead of being waited on.
//
// Providers that call a remote embedding service already carry that client's
// breaker; guard them with a nil breaker so one search candidate is not
// admitted twice.
type Guard struct {
	inner   SimilarityProvider
	timeout time.Duration
	breaker *llm.CircuitBreaker
}

// NewGuard wraps inner. timeout <= 0 selects 5s. breaker may be nil.
func NewGuard(inner SimilarityProvider, timeout time.Duration, breaker *llm.CircuitBreaker) *Guard {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Guard{inner: inner, timeout: timeout, breaker: breaker}
}

// Similarity implements SimilarityProvider.
func (g *Guard) Similarity(ctx context.Context, query string, m *types.Memory) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		v   float64
		err error
	}

	v, err := llm.Call(ctx, g.breaker, func(ctx context.Context) (float64, error) {
		// Run the provider in its own goroutine so a provider that ignores
		// ctx still cannot hold the caller past the deadline.
		ch := make(chan result, 1)
		go func() {
			v, err := g.inner.Similarity(ctx, query, m)
			ch <- result{v, err}
		}()

		select {
		case r := <-ch:
			return r.v, r.err
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w after %s", ErrSimilarityTimeout, g.timeout)
		}
		return 0, err
	}

	return types.ClampUnit(v), nil
}

// Breaker returns the guard's circuit breaker, or nil.
func (g *Guard) Breaker() *llm.CircuitBreaker {
	return g.breaker
}
