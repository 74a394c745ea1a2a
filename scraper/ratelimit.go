package scraper

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a minimum spacing between consecutive scrape
// attempts. It is safe for concurrent use and may be shared by several
// Scrapers so that spacing holds across all of them.
type RateLimiter struct {
	mu    sync.Mutex
	clock Clock
	last  time.Time
}

// NewRateLimiter returns a limiter with no previous call recorded.
func NewRateLimiter(clock Clock) *RateLimiter {
	if clock == nil {
		clock = SystemClock{}
	}
	return &RateLimiter{clock: clock}
}

// WaitIfNeeded blocks until at least minSpacing has passed since the
// previous call returned, then records the current time. Callers sharing
// the limiter are served one at a time.
func (r *RateLimiter) WaitIfNeeded(ctx context.Context, minSpacing time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.last.IsZero() {
		if wait := minSpacing - r.clock.Now().Sub(r.last); wait > 0 {
			if err := r.clock.Sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	r.last = r.clock.Now()
	return nil
}

// Last returns the time of the most recent call, or zero.
func (r *RateLimiter) Last() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
