package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, FixedDelay(0), func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, FixedDelay(0), func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryPermanentStopsEarly(t *testing.T) {
	attempts := 0
	cause := errors.New("malformed response")

	err := Retry(context.Background(), 5, FixedDelay(0), func() error {
		attempts++
		return Permanent(cause)
	})

	if attempts != 1 {
		t.Errorf("Retry called fn %d times after permanent error, want 1", attempts)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Retry returned %v, want unwrapped %v", err, cause)
	}
	if IsPermanent(err) {
		t.Error("Retry should unwrap the permanent marker before returning")
	}
}

func TestRetryRespectsMinimumSpacing(t *testing.T) {
	const minDelay = 20 * time.Millisecond
	var calls []time.Time

	err := Retry(context.Background(), 3, NewJitterLimiter(minDelay, 2*minDelay), func() error {
		calls = append(calls, time.Now())
		return errors.New("transient")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if len(calls) != 3 {
		t.Fatalf("fn called %d times, want 3", len(calls))
	}
	for i := 1; i < len(calls); i++ {
		if gap := calls[i].Sub(calls[i-1]); gap < minDelay {
			t.Errorf("gap between attempts %d and %d was %v, want >= %v", i-1, i, gap, minDelay)
		}
	}
}

func TestJitterLimiterBounds(t *testing.T) {
	jl := NewJitterLimiter(time.Second, 4*time.Second)
	for i := 0; i < 1000; i++ {
		d := jl.NextDelay()
		if d < time.Second || d > 4*time.Second {
			t.Fatalf("NextDelay() = %v, want within [1s, 4s]", d)
		}
	}
}

func TestJitterLimiterCollapsedBounds(t *testing.T) {
	jl := NewJitterLimiter(2*time.Second, time.Second)
	if d := jl.NextDelay(); d != 2*time.Second {
		t.Errorf("NextDelay() with max < min = %v, want fixed 2s", d)
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Minute); err == nil {
		t.Error("Sleep should return the context error when cancelled")
	}
}

func TestBackoffDoubles(t *testing.T) {
	b := &Backoff{Base: 100 * time.Millisecond}
	want := []time.Duration{100, 200, 400}
	for i, w := range want {
		if d := b.NextDelay(); d != w*time.Millisecond {
			t.Errorf("NextDelay() call %d = %v, want %v", i, d, w*time.Millisecond)
		}
	}
}
