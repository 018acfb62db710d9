package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/florinutz/binsync/syncerr"
	"github.com/florinutz/binsync/testutil"
)

type failing struct{ name string }

func (f failing) Notify(context.Context, string) error { return errors.New(f.name + " down") }
func (f failing) Name() string                         { return f.name }

func TestLog_NeverFails(t *testing.T) {
	lc := testutil.NewLineCapture()
	n := NewLog(slog.New(slog.NewTextHandler(lc, nil)))
	if err := n.Notify(context.Background(), "disk full"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if line := lc.WaitLine(t, time.Second); !strings.Contains(line, "disk full") {
		t.Errorf("report not logged: %q", line)
	}
}

func TestMulti_AttemptsAll(t *testing.T) {
	rec := &testutil.RecordingNotifier{}
	m := Multi{failing{name: "smtp"}, rec, failing{name: "webhook"}}

	err := m.Notify(context.Background(), "alert")
	if err == nil {
		t.Fatal("expected joined error")
	}
	if got := rec.Messages(); len(got) != 1 || got[0] != "alert" {
		t.Errorf("recording notifier got %v", got)
	}
	var ne *syncerr.NotifyError
	if !errors.As(err, &ne) || ne.Notifier != "smtp" {
		t.Errorf("first error = %v, want NotifyError from smtp", err)
	}
	if !strings.Contains(err.Error(), "webhook down") {
		t.Errorf("error %q lost the webhook failure", err)
	}
}

func TestMulti_AllSucceed(t *testing.T) {
	a, b := &testutil.RecordingNotifier{}, &testutil.RecordingNotifier{}
	if err := (Multi{a, b}).Notify(context.Background(), "x"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(a.Messages()) != 1 || len(b.Messages()) != 1 {
		t.Error("fan-out incomplete")
	}
}
