package binsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/florinutz/binsync/event"
	"github.com/florinutz/binsync/metrics"
)

// report is the free-text failure summary handed to the notifier.
type report struct {
	RunID     string
	Host      string
	Source    string
	Sink      string
	Observed  event.Position
	Committed event.Position
	At        time.Time
	Err       error
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func positionOrNone(p event.Position) string {
	if !p.Known() {
		return "none"
	}
	return p.String()
}

func (r report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "binsync stopped on an unrecoverable error\n\n")
	fmt.Fprintf(&b, "run:       %s\n", r.RunID)
	fmt.Fprintf(&b, "host:      %s\n", r.Host)
	fmt.Fprintf(&b, "time:      %s\n", r.At.UTC().Format(time.RFC3339))
	if r.Source != "" {
		fmt.Fprintf(&b, "source:    %s\n", r.Source)
	}
	fmt.Fprintf(&b, "sink:      %s\n", r.Sink)
	fmt.Fprintf(&b, "observed:  %s\n", positionOrNone(r.Observed))
	fmt.Fprintf(&b, "committed: %s\n", positionOrNone(r.Committed))
	fmt.Fprintf(&b, "\nerror: %v\n", r.Err)

	chain := errorChain(r.Err)
	if len(chain) > 1 {
		b.WriteString("\ncaused by:\n")
		for _, e := range chain[1:] {
			fmt.Fprintf(&b, "  %T: %v\n", e, e)
		}
	}
	b.WriteString("\nThe stream resumes from the committed position on restart.\n")
	return b.String()
}

// errorChain flattens err depth first, following both single and joined
// unwrapping.
func errorChain(err error) []error {
	if err == nil {
		return nil
	}
	out := []error{err}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			out = append(out, errorChain(e)...)
		}
	default:
		if next := errors.Unwrap(err); next != nil {
			out = append(out, errorChain(next)...)
		}
	}
	return out
}

// alert makes the single best-effort notification attempt for a failed run.
// Its own failure is logged and counted, never returned.
func (p *Pipeline) alert(ctx context.Context, r report) {
	if p.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.shutdownTimeout)
	defer cancel()

	if err := p.notifier.Notify(ctx, r.String()); err != nil {
		metrics.NotifyAttempts.WithLabelValues("error").Inc()
		p.logger.Error("failure notification not delivered", "notifier", p.notifier.Name(), "error", err)
		return
	}
	metrics.NotifyAttempts.WithLabelValues("ok").Inc()
	p.logger.Info("failure notification sent", "notifier", p.notifier.Name())
}
