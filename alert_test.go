package binsync

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/florinutz/binsync/event"
	"github.com/florinutz/binsync/syncerr"
)

func TestReport_String(t *testing.T) {
	cause := errors.New("connection refused")
	r := report{
		RunID:     "run-1",
		Host:      "indexer-01",
		Source:    "mysql",
		Sink:      "elasticsearch",
		Observed:  event.Position{File: "mysql-bin.000007", Offset: 4410},
		At:        time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC),
		Err:       &syncerr.SinkCommitError{Sink: "elasticsearch", Ops: 12, Err: fmt.Errorf("post bulk: %w", cause)},
		Committed: event.Position{},
	}
	s := r.String()

	for _, want := range []string{
		"run:       run-1\n",
		"host:      indexer-01\n",
		"time:      2024-05-01T08:30:00Z\n",
		"observed:  mysql-bin.000007:4410\n",
		"committed: none\n",
		"commit of 12 operations failed",
		"*errors.errorString: connection refused",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("report missing %q:\n%s", want, s)
		}
	}
}

func TestErrorChain(t *testing.T) {
	a := errors.New("a")
	b := errors.New("b")
	joined := errors.Join(a, fmt.Errorf("wrap: %w", b))

	chain := errorChain(fmt.Errorf("top: %w", joined))
	// top, join, a, wrap, b
	if len(chain) != 5 {
		t.Fatalf("chain length = %d, want 5: %v", len(chain), chain)
	}
	if chain[2] != a || chain[4] != b {
		t.Errorf("chain = %v", chain)
	}
	if errorChain(nil) != nil {
		t.Error("nil error should have an empty chain")
	}
}

func TestStateString(t *testing.T) {
	want := []string{"initializing", "streaming", "draining", "failing", "terminated"}
	for i, w := range want {
		if got := State(i).String(); got != w {
			t.Errorf("State(%d) = %q, want %q", i, got, w)
		}
	}
	if State(42).String() != "unknown" {
		t.Error("out of range state")
	}
}
