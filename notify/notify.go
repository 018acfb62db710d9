// Package notify delivers failure alerts to operators.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/florinutz/binsync/syncerr"
)

// Notifier delivers a single alert message.
type Notifier interface {
	Notify(ctx context.Context, msg string) error
	Name() string
}

// Log writes alerts to the process log. It never fails and is the fallback
// when no other channel is configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("notifier", "log")}
}

func (l *Log) Notify(ctx context.Context, msg string) error {
	l.logger.ErrorContext(ctx, "sync failure alert", "report", msg)
	return nil
}

func (l *Log) Name() string { return "log" }

// Multi fans an alert out to every notifier. All are attempted; their
// failures are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			var ne *syncerr.NotifyError
			if !errors.As(err, &ne) {
				err = &syncerr.NotifyError{Notifier: n.Name(), Err: err}
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Name() string { return "multi" }
