package util

import (
	"context"
	"math/rand/v2"
	"time"
)

// Delayer yields the spacing interval to insert before the next outbound
// request. Implementations other than JitterLimiter (fixed delay, zero delay
// for tests) can be substituted without touching fetch or coordinator code.
type Delayer interface {
	NextDelay() time.Duration
}

// JitterLimiter spaces outbound fetch calls by a pseudo-random interval
// within [Min, Max]. Randomising the spacing desynchronises request timing
// so the upstream source does not see a fixed-period automated pattern.
// Stateless apart from the configured bounds.
type JitterLimiter struct {
	Min time.Duration
	Max time.Duration
}

// NewJitterLimiter creates a JitterLimiter with the given bounds. A max at
// or below min collapses to a fixed min delay.
func NewJitterLimiter(min, max time.Duration) *JitterLimiter {
	if max < min {
		max = min
	}
	return &JitterLimiter{Min: min, Max: max}
}

// NextDelay returns a pseudo-random duration in [Min, Max], independent
// across calls.
func (j *JitterLimiter) NextDelay() time.Duration {
	if j.Max <= j.Min {
		return j.Min
	}
	return j.Min + rand.N(j.Max-j.Min)
}

// Wait blocks for the next jitter interval or until the context is
// cancelled.
func (j *JitterLimiter) Wait(ctx context.Context) error {
	return Sleep(ctx, j.NextDelay())
}

// Sleep blocks for d or until the context is cancelled, whichever comes
// first.
func Sleep(ctx context.Context, d time.Duration) error {
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

// FixedDelay is a Delayer returning the same interval on every call. Used by
// tests and for disabling jitter.
type FixedDelay time.Duration

// NextDelay returns the fixed interval.
func (f FixedDelay) NextDelay() time.Duration { return time.Duration(f) }
