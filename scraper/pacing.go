package scraper

import (
	"context"
	"math/rand/v2"
	"time"
)

// Clock abstracts wall time so pacing can run on a virtual clock in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer produces the randomized human-like pauses between browser actions.
// Every pause is multiplied by scale, which is 1 normally and the fast-mode
// factor otherwise. A Pacer is not safe for concurrent use.
type Pacer struct {
	clock Clock
	rng   *rand.Rand
	scale float64
}

// NewPacer returns a pacer. A nil rng seeds one from the runtime source.
func NewPacer(clock Clock, rng *rand.Rand, scale float64) *Pacer {
	if clock == nil {
		clock = SystemClock{}
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if scale <= 0 {
		scale = 1
	}
	return &Pacer{clock: clock, rng: rng, scale: scale}
}

// Between returns a uniformly random, scaled duration in [lo, hi].
func (p *Pacer) Between(lo, hi time.Duration) time.Duration {
	d := lo
	if hi > lo {
		d += time.Duration(p.rng.Int64N(int64(hi-lo) + 1))
	}
	return p.scaled(d)
}

// Pause sleeps for a random duration in [lo, hi], scaled.
func (p *Pacer) Pause(ctx context.Context, lo, hi time.Duration) error {
	return p.clock.Sleep(ctx, p.Between(lo, hi))
}

// Sleep sleeps for d, scaled.
func (p *Pacer) Sleep(ctx context.Context, d time.Duration) error {
	return p.clock.Sleep(ctx, p.scaled(d))
}

// Spread returns n shifted by a uniform offset in [-delta, delta].
func (p *Pacer) Spread(n, delta int) int {
	if delta <= 0 {
		return n
	}
	return n - delta + p.rng.IntN(2*delta+1)
}

// IntN returns a uniform int in [0, n).
func (p *Pacer) IntN(n int) int {
	return p.rng.IntN(n)
}

// Scale is the pacing multiplier.
func (p *Pacer) Scale() float64 {
	return p.scale
}

// Clock returns the underlying clock.
func (p *Pacer) Clock() Clock {
	return p.clock
}

// Scaled returns d multiplied by the pacing scale.
func (p *Pacer) Scaled(d time.Duration) time.Duration {
	return p.scaled(d)
}

func (p *Pacer) scaled(d time.Duration) time.Duration {
	if p.scale == 1 {
		return d
	}
	return time.Duration(float64(d) * p.scale)
}
