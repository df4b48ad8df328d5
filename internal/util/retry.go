package util

import (
	"context"
	"errors"
	"time"
)

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Retry stops immediately instead of exhausting the
// attempt budget.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Retry calls fn up to maxAttempts times, sleeping for the Delayer's next
// interval between attempts. It returns nil on the first successful call,
// the unwrapped error immediately if fn returns a Permanent error, or the
// last error once all attempts fail. Context cancellation is respected
// between retries.
func Retry(ctx context.Context, maxAttempts int, delay Delayer, fn func() error) error {
	if delay == nil {
		delay = FixedDelay(0)
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var p *permanentError
		if errors.As(err, &p) {
			return p.err
		}

		// Don't sleep after the last failed attempt.
		if attempt < maxAttempts-1 {
			if serr := Sleep(ctx, delay.NextDelay()); serr != nil {
				return serr
			}
		}
	}
	return err
}

// Backoff is a Delayer that doubles its interval on every call, starting at
// Base. It is not safe for concurrent use; create one per retry loop.
type Backoff struct {
	Base time.Duration
	next time.Duration
}

// NextDelay returns the current interval and doubles the next one.
func (b *Backoff) NextDelay() time.Duration {
	if b.next == 0 {
		b.next = b.Base
	}
	d := b.next
	b.next *= 2
	return d
}
