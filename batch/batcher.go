// Package batch groups index operations into bulk batches under count, byte
// and time pressure.
package batch

import (
	"iter"
	"time"

	"github.com/florinutz/binsync/event"
)

const defaultMaxInterval = time.Second

// Config holds the flush thresholds. MaxCount <= 1 selects singleton batches.
// MaxBytes <= 0 disables the byte trigger. MaxInterval <= 0 defaults to one
// second.
type Config struct {
	MaxCount    int
	MaxBytes    int
	MaxInterval time.Duration
}

// Batcher accumulates operations and decides when the pending batch must be
// closed. It is not safe for concurrent use; the sync loop owns it.
type Batcher struct {
	maxCount    int
	maxBytes    int
	maxInterval time.Duration
	clock       Clock

	pending      event.Batch
	pendingBytes int
	opened       time.Time
}

// New creates a Batcher. A nil clock uses the system clock.
func New(cfg Config, clock Clock) *Batcher {
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = defaultMaxInterval
	}
	if cfg.MaxBytes < 0 {
		cfg.MaxBytes = 0
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Batcher{
		maxCount:    cfg.MaxCount,
		maxBytes:    cfg.MaxBytes,
		maxInterval: cfg.MaxInterval,
		clock:       clock,
	}
}

// Singleton reports whether the batcher runs in low-latency mode, flushing
// every operation on its own.
func (b *Batcher) Singleton() bool { return b.maxCount <= 1 }

// Len returns the number of pending operations.
func (b *Batcher) Len() int { return len(b.pending) }

// Bytes returns the accumulated size of the pending operations.
func (b *Batcher) Bytes() int { return b.pendingBytes }

// Add considers the next operation. When the pending batch must be closed
// before op can join, that batch is returned and op opens the next one.
// In singleton mode the returned batch is [op] itself.
func (b *Batcher) Add(op event.Operation) event.Batch {
	if b.Singleton() {
		return event.Batch{op}
	}

	size := op.Size()
	var flushed event.Batch
	if len(b.pending) > 0 && b.shouldFlush(size) {
		flushed = b.Flush()
	}
	if len(b.pending) == 0 {
		b.opened = b.clock.Now()
	}
	b.pending = append(b.pending, op)
	b.pendingBytes += size
	return flushed
}

func (b *Batcher) shouldFlush(nextSize int) bool {
	if len(b.pending) >= b.maxCount {
		return true
	}
	if b.maxBytes > 0 && b.pendingBytes+nextSize > b.maxBytes {
		return true
	}
	return b.Expired()
}

// Full reports whether the pending batch has reached MaxCount, so the next
// Add would close it anyway.
func (b *Batcher) Full() bool {
	return !b.Singleton() && len(b.pending) >= b.maxCount
}

// Expired reports whether a non-empty pending batch has been open longer
// than MaxInterval.
func (b *Batcher) Expired() bool {
	return len(b.pending) > 0 && b.clock.Now().Sub(b.opened) > b.maxInterval
}

// Deadline returns the instant the pending batch expires. ok is false when
// nothing is pending.
func (b *Batcher) Deadline() (deadline time.Time, ok bool) {
	if len(b.pending) == 0 {
		return time.Time{}, false
	}
	return b.opened.Add(b.maxInterval), true
}

// Flush closes and returns the pending batch, or nil when it is empty.
func (b *Batcher) Flush() event.Batch {
	if len(b.pending) == 0 {
		return nil
	}
	out := b.pending
	b.pending = nil
	b.pendingBytes = 0
	return out
}

// Feed returns a lazy sequence of batches pulled from ops. Each batch is
// yielded as soon as the next operation closes it; the remaining pending
// batch is yielded once ops is exhausted. The sequence shares the batcher's
// state and must be ranged over only once.
func (b *Batcher) Feed(ops iter.Seq[event.Operation]) iter.Seq[event.Batch] {
	return func(yield func(event.Batch) bool) {
		for op := range ops {
			if out := b.Add(op); len(out) > 0 {
				if !yield(out) {
					return
				}
			}
		}
		if out := b.Flush(); len(out) > 0 {
			yield(out)
		}
	}
}
