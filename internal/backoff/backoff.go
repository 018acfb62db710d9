package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

const minDelay = 100 * time.Millisecond

// Jitter returns an exponential delay with full jitter.
//
//	delay = max(minDelay, rand(0, min(cap, base * 2^attempt)))
func Jitter(attempt int, base, cap time.Duration) time.Duration {
	exp := float64(base) * math.Pow(2, float64(attempt))
	if exp > float64(cap) || exp <= 0 { // overflow guard
		exp = float64(cap)
	}
	d := time.Duration(rand.Int64N(int64(exp)))
	return max(d, minDelay)
}

// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
// latter case.
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

// Retry calls fn up to attempts times, sleeping a jittered delay between
// calls while retryable(err) holds. The last error is returned.
func Retry(ctx context.Context, attempts int, base, cap time.Duration, retryable func(error) bool, fn func(attempt int) error) error {
	var err error
	for attempt := range max(attempts, 1) {
		if attempt > 0 {
			if serr := Sleep(ctx, Jitter(attempt-1, base, cap)); serr != nil {
				return err
			}
		}
		if err = fn(attempt); err == nil || !retryable(err) {
			return err
		}
	}
	return err
}
