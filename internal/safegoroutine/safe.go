// Package safegoroutine runs the process's long-lived goroutines (the sync
// pipeline, the metrics server) under an errgroup with panic recovery.
package safegoroutine

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/florinutz/binsync/metrics"
	"golang.org/x/sync/errgroup"
)

// PanicError is returned in place of a recovered panic.
type PanicError struct {
	Goroutine string
	Value     any
	Stack     []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Goroutine, e.Value)
}

// Go starts fn in g. A panic in fn is recovered, logged with its stack,
// counted and returned as a *PanicError.
func Go(g *errgroup.Group, logger *slog.Logger, name string, fn func() error) {
	if logger == nil {
		logger = slog.Default()
	}
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				metrics.PanicsRecovered.WithLabelValues(name).Inc()
				logger.Error("panic recovered", "goroutine", name, "panic", r, "stack", string(stack))
				err = &PanicError{Goroutine: name, Value: r, Stack: stack}
			}
		}()
		return fn()
	})
}
