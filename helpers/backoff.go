package helpers

import (
	"context"
	"time"
)

// Linear backoff for retry delays without jitter.
// Delay before attempt k+1 is k*Unit, so total worst case is bounded
// and easy to reason about for periodic telemetry.
// Zero Max means no limit.
type LinearBackoff struct {
	Unit time.Duration
	Max  time.Duration
}

// Delay after failed attempt number `attempt` (1-based).
func (b LinearBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := time.Duration(attempt) * b.Unit
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Total sleep across `attempts` tries, no sleep after the last one.
func (b LinearBackoff) Total(attempts int) time.Duration {
	var sum time.Duration
	for k := 1; k < attempts; k++ {
		sum += b.Delay(k)
	}
	return sum
}

type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepCtx returns ctx.Err() if context is done before d elapsed.
func SleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-tmr.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
