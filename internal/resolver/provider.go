package resolver

import (
	"context"
	"fmt"
)

// Provider fetches one logical metric from one upstream source.
type Provider[T any] interface {
	Name() string
	Fetch(ctx context.Context) (T, error)
}

// Degrader is implemented by providers that may serve data fetched earlier
// rather than live. What they return is cached with zero TTL and reported
// stale.
type Degrader interface {
	Degraded() bool
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc[T any] struct {
	ID       string
	Fn       func(ctx context.Context) (T, error)
	Fallback bool
}

func (p ProviderFunc[T]) Name() string { return p.ID }

func (p ProviderFunc[T]) Degraded() bool { return p.Fallback }

func (p ProviderFunc[T]) Fetch(ctx context.Context) (T, error) { return p.Fn(ctx) }

func degraded[T any](p Provider[T]) bool {
	d, ok := p.(Degrader)
	return ok && d.Degraded()
}

// ProviderError wraps errors with context about the provider and metric key.
type ProviderError struct {
	Provider string
	Key      string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider=%s key=%s: %v", e.Provider, e.Key, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
