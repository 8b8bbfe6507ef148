// Package resolver resolves one logical metric through an ordered chain of
// providers, degrading to the last cached value when every provider fails.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"SupplySentinel/internal/cache"
	"SupplySentinel/internal/observability"
)

// ErrAllProvidersExhausted is the only hard failure a consumer sees: every
// provider failed and nothing was ever cached or backed up for the key.
var ErrAllProvidersExhausted = errors.New("all providers exhausted")

// Warnings attached to degraded results.
const (
	StaleWarning  = "Data may be out of date due to rate limiting or fetch error."
	BackupWarning = "Live providers unavailable; serving the last durable backup."
)

// ExhaustedError lists why each provider failed.
type ExhaustedError struct {
	Key  string
	Errs []error
}

func (e *ExhaustedError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	if len(msgs) == 0 {
		return fmt.Sprintf("key=%s: %v: no providers configured", e.Key, ErrAllProvidersExhausted)
	}
	return fmt.Sprintf("key=%s: %v: %s", e.Key, ErrAllProvidersExhausted, strings.Join(msgs, "; "))
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrAllProvidersExhausted }

func (e *ExhaustedError) Unwrap() []error { return e.Errs }

// Result is what consumers of a metric receive.
type Result[T any] struct {
	Key       string
	Value     T
	Source    string
	Stale     bool
	Warning   string
	FetchedAt time.Time
}

// LastResortFunc supplies a value once providers and cache have both failed,
// e.g. from the durable backup store. It returns the value and its source.
type LastResortFunc[T any] func(ctx context.Context) (T, string, time.Time, error)

// Chain is the ordered provider list for one logical metric.
type Chain[T any] struct {
	Key        string
	TTL        time.Duration
	Providers  []Provider[T]
	Cache      *cache.TTLCache[T]
	LastResort LastResortFunc[T]
	// Validate rejects a provider result so the next provider is tried.
	Validate func(T) error
	Metrics  *observability.Metrics
}

// NewChain creates a chain backed by c.
func NewChain[T any](key string, ttl time.Duration, c *cache.TTLCache[T], providers ...Provider[T]) *Chain[T] {
	return &Chain[T]{Key: key, TTL: ttl, Providers: providers, Cache: c}
}

// ProviderNames lists the providers in priority order.
func (c *Chain[T]) ProviderNames() []string {
	names := make([]string, len(c.Providers))
	for i, p := range c.Providers {
		names[i] = p.Name()
	}
	return names
}

// Resolve serves a fresh cached value, or fetches through the chain.
func (c *Chain[T]) Resolve(ctx context.Context) (Result[T], error) {
	if _, ok := c.Cache.Get(c.Key); ok {
		if e, ok := c.Cache.Entry(c.Key); ok {
			res := c.result(e, false, "")
			c.Metrics.ObserveResolution(c.Key, res.Source, false)
			return res, nil
		}
	}
	return c.resolve(ctx, false)
}

// Refresh fetches through the chain ignoring the TTL. Concurrent callers
// for the same key still share one in-flight fetch.
func (c *Chain[T]) Refresh(ctx context.Context) (Result[T], error) {
	return c.resolve(ctx, true)
}

// Peek returns the cached entry without fetching.
func (c *Chain[T]) Peek() (cache.Entry[T], bool) {
	return c.Cache.Entry(c.Key)
}

func (c *Chain[T]) resolve(ctx context.Context, force bool) (Result[T], error) {
	_, err := c.Cache.WithSingleFlight(ctx, c.Key, func(ctx context.Context) (T, error) {
		if !force {
			if v, ok := c.Cache.Get(c.Key); ok {
				return v, nil
			}
		}
		return c.fetch(ctx)
	})
	if err == nil {
		if e, ok := c.Cache.Entry(c.Key); ok {
			stale, warning := false, ""
			if c.fromFallback(e.Source) {
				stale, warning = true, StaleWarning
			}
			res := c.result(e, stale, warning)
			c.Metrics.ObserveResolution(c.Key, res.Source, stale)
			return res, nil
		}
	}
	return c.degrade(ctx, err)
}

func (c *Chain[T]) fetch(ctx context.Context) (T, error) {
	var errs []error
	for _, p := range c.Providers {
		v, err := p.Fetch(ctx)
		if err == nil && c.Validate != nil {
			err = c.Validate(v)
		}
		if err != nil {
			log.Printf("[WARN] [%s] source=%s status=failed error=%v", c.Key, p.Name(), err)
			errs = append(errs, &ProviderError{Provider: p.Name(), Key: c.Key, Err: err})
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if degraded(p) {
			c.Cache.Put(c.Key, v, 0, p.Name())
			log.Printf("[WARN] [%s] source=%s status=degraded", c.Key, p.Name())
			return v, nil
		}
		c.Cache.Put(c.Key, v, c.TTL, p.Name())
		log.Printf("[INFO] [%s] source=%s status=success", c.Key, p.Name())
		return v, nil
	}

	var zero T
	return zero, &ExhaustedError{Key: c.Key, Errs: errs}
}

func (c *Chain[T]) fromFallback(source string) bool {
	for _, p := range c.Providers {
		if p.Name() == source {
			return degraded(p)
		}
	}
	return false
}

// degrade serves the last cached value, then the last resort, marking the
// result stale. With neither available the failure is returned as an
// ExhaustedError.
func (c *Chain[T]) degrade(ctx context.Context, cause error) (Result[T], error) {
	if e, ok := c.Cache.Entry(c.Key); ok {
		log.Printf("[WARN] [%s] source=%s status=stale fetched_at=%s", c.Key, e.Source, e.FetchedAt.Format(time.RFC3339))
		res := c.result(e, true, StaleWarning)
		c.Metrics.ObserveResolution(c.Key, res.Source, true)
		return res, nil
	}

	exhausted := &ExhaustedError{Key: c.Key}
	if cause != nil && !errors.As(cause, &exhausted) {
		exhausted = &ExhaustedError{Key: c.Key, Errs: []error{cause}}
	}

	if c.LastResort != nil {
		v, source, at, err := c.LastResort(ctx)
		if err == nil {
			log.Printf("[WARN] [%s] source=%s status=last_resort", c.Key, source)
			// Zero TTL: kept as a stale fallback, providers are still tried first next time.
			c.Cache.Put(c.Key, v, 0, source)
			c.Metrics.ObserveResolution(c.Key, source, true)
			return Result[T]{
				Key:       c.Key,
				Value:     v,
				Source:    source,
				Stale:     true,
				Warning:   BackupWarning,
				FetchedAt: at,
			}, nil
		}
		exhausted = &ExhaustedError{Key: c.Key, Errs: append(append([]error{}, exhausted.Errs...), &ProviderError{Provider: "last-resort", Key: c.Key, Err: err})}
	}

	log.Printf("[ERROR] [%s] source=all status=failed error=%v", c.Key, exhausted)
	var zero Result[T]
	zero.Key = c.Key
	return zero, exhausted
}

func (c *Chain[T]) result(e cache.Entry[T], stale bool, warning string) Result[T] {
	return Result[T]{
		Key:       c.Key,
		Value:     e.Value,
		Source:    e.Source,
		Stale:     stale,
		Warning:   warning,
		FetchedAt: e.FetchedAt,
	}
}
