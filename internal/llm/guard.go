package llm

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

// guard bundles the breaker and optional rate limiter shared by every
// provider call of one client.
type guard struct {
	name    string
	breaker *CircuitBreaker
	limiter *rate.Limiter
}

func newGuard(name string, requestsPerSecond float64) guard {
	return guard{
		name:    name,
		breaker: NewCircuitBreaker(name),
		limiter: newLimiter(requestsPerSecond),
	}
}

// newLimiter returns nil (unlimited) for a non-positive rate.
func newLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// do waits for the limiter and runs fn through the breaker.
func do[T any](ctx context.Context, g guard, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return zero, fmt.Errorf("%s rate limit: %w", g.name, err)
		}
	}
	result, err := g.breaker.Execute(ctx, func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return zero, fmt.Errorf("%s circuit breaker open: %w", g.name, err)
		}
		return zero, err
	}
	return result.(T), nil
}
