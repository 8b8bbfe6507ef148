package fetcher

import (
	"context"
	"sync"
	"time"
)

// Throttle spaces out sequential requests to one provider. Callers reserve
// the next free slot under the lock and sleep outside it, so concurrent
// callers queue up one delay apart. A nil or zero-delay Throttle never waits.
type Throttle struct {
	mu    sync.Mutex
	delay time.Duration
	next  time.Time

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewThrottle creates a throttle enforcing delay between request starts.
func NewThrottle(delay time.Duration) *Throttle {
	return &Throttle{delay: delay, Now: time.Now, Sleep: SleepContext}
}

// Delay returns the configured spacing.
func (t *Throttle) Delay() time.Duration {
	if t == nil {
		return 0
	}
	return t.delay
}

// Wait blocks until the caller's slot comes up.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.delay <= 0 {
		return nil
	}

	t.mu.Lock()
	now := t.Now()
	slot := t.next
	if slot.Before(now) {
		slot = now
	}
	t.next = slot.Add(t.delay)
	t.mu.Unlock()

	return t.Sleep(ctx, slot.Sub(now))
}
