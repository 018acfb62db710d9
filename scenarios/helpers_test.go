//go:build integration

package scenarios

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/florinutz/binsync"
)

func testLogger() *slog.Logger {
	if os.Getenv("BINSYNC_TEST_VERBOSE") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runPipeline starts p in the background and waits until it is streaming.
// The returned stop func cancels the run and returns its error.
func runPipeline(t *testing.T, p *binsync.Pipeline) (stop func() error, done <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()
	t.Cleanup(cancel)

	deadline := time.Now().Add(30 * time.Second)
	for p.State() != binsync.StateStreaming {
		if p.State() == binsync.StateTerminated {
			t.Fatalf("pipeline terminated during startup: %v", <-errc)
		}
		if time.Now().After(deadline) {
			t.Fatal("pipeline did not reach streaming")
		}
		time.Sleep(20 * time.Millisecond)
	}

	return func() error {
		cancel()
		select {
		case err := <-errc:
			return err
		case <-time.After(30 * time.Second):
			t.Fatal("pipeline did not stop")
			return nil
		}
	}, errc
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
