// Package cache holds the process-wide TTL cache for aggregated metrics.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"SupplySentinel/internal/observability"
)

// Default TTLs per data type.
const (
	TTLPrice   = 5 * time.Minute  // spot prices
	TTLMarket  = 60 * time.Minute // chain market data
	TTLHistory = 24 * time.Hour   // long historical series
)

// Entry is a cached value with its provenance. Callers only ever see copies.
type Entry[T any] struct {
	Value     T
	FetchedAt time.Time
	TTL       time.Duration
	Source    string
	Stale     bool
}

// Fresh reports whether the entry is still inside its TTL at now.
func (e Entry[T]) Fresh(now time.Time) bool {
	return now.Sub(e.FetchedAt) < e.TTL
}

// TTLCache is a per-key store with explicit expiry and single-flight
// de-duplication of producers. It is unbounded; the key space is the fixed
// set of tracked metrics and entries are only replaced, never evicted.
type TTLCache[T any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[T]
	group   singleflight.Group

	name    string
	now     func() time.Time
	clone   func(T) T
	metrics *observability.Metrics
}

// Option configures a TTLCache.
type Option func(*options)

type options struct {
	name    string
	now     func() time.Time
	metrics *observability.Metrics
}

// WithName labels the cache in logs and metrics.
func WithName(name string) Option { return func(o *options) { o.name = name } }

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithMetrics records hit/miss/stale lookups.
func WithMetrics(m *observability.Metrics) Option { return func(o *options) { o.metrics = m } }

// New creates an empty cache.
func New[T any](opts ...Option) *TTLCache[T] {
	o := options{name: "default", now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTLCache[T]{
		entries: make(map[string]Entry[T]),
		name:    o.name,
		now:     o.now,
		metrics: o.metrics,
	}
}

// WithCloner sets a deep-copy function applied to every value handed out,
// for value types that carry slices or pointers.
func (c *TTLCache[T]) WithCloner(clone func(T) T) *TTLCache[T] {
	c.clone = clone
	return c
}

// Now returns the cache's notion of the current time.
func (c *TTLCache[T]) Now() time.Time { return c.now() }

// Name returns the cache label.
func (c *TTLCache[T]) Name() string { return c.name }

// Get returns the value only while it is inside its TTL.
func (c *TTLCache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.metrics.ObserveCache(c.name, "miss")
		var zero T
		return zero, false
	}
	if !e.Fresh(c.now()) {
		c.metrics.ObserveCache(c.name, "expired")
		var zero T
		return zero, false
	}
	c.metrics.ObserveCache(c.name, "hit")
	return c.copyValue(e.Value), true
}

// GetStale returns the last known value regardless of expiry; stale is true
// once the TTL has passed.
func (c *TTLCache[T]) GetStale(key string) (value T, stale bool, ok bool) {
	e, ok := c.Entry(key)
	if !ok {
		var zero T
		return zero, false, false
	}
	if e.Stale {
		c.metrics.ObserveCache(c.name, "stale")
	}
	return e.Value, e.Stale, true
}

// Entry returns a copy of the whole entry, stale flag evaluated at call time.
func (c *TTLCache[T]) Entry(key string) (Entry[T], bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Entry[T]{}, false
	}
	e.Stale = !e.Fresh(c.now())
	e.Value = c.copyValue(e.Value)
	return e, true
}

// Put replaces any existing entry for key.
func (c *TTLCache[T]) Put(key string, value T, ttl time.Duration, source string) {
	e := Entry[T]{
		Value:     c.copyValue(value),
		FetchedAt: c.now(),
		TTL:       ttl,
		Source:    source,
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Keys returns the cached keys in no particular order.
func (c *TTLCache[T]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// WithSingleFlight runs producer at most once concurrently per key; callers
// arriving while it runs wait for and share its result. A caller whose ctx
// ends stops waiting, but the producer keeps running for the others.
func (c *TTLCache[T]) WithSingleFlight(ctx context.Context, key string, producer func(ctx context.Context) (T, error)) (T, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		return producer(context.WithoutCancel(ctx))
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("cache %s: unexpected producer result %T for key %s", c.name, res.Val, key)
		}
		return c.copyValue(v), nil
	}
}

func (c *TTLCache[T]) copyValue(v T) T {
	if c.clone == nil {
		return v
	}
	return c.clone(v)
}
