package batch

import "time"

// Clock is the time source used for the interval trigger.
type Clock interface {
	Now() time.Time
	// After delivers the time once d has elapsed on this clock.
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns a Clock backed by time.Now. Go's time.Time carries a
// monotonic reading, so elapsed-time checks are immune to wall clock jumps.
func SystemClock() Clock { return systemClock{} }
