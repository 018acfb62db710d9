package testutil_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/florinutz/binsync/event"
	"github.com/florinutz/binsync/testutil"
)

func TestLineCapture(t *testing.T) {
	c := testutil.NewLineCapture()
	_, _ = c.Write([]byte("hello\nwor"))
	_, _ = c.Write([]byte("ld\n"))

	if got := c.WaitLine(t, time.Second); got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
	if got := c.WaitLine(t, time.Second); got != "world" {
		t.Errorf("got %q, want %q", got, "world")
	}
}

// A commit can emit far more documents than a test reads at once.
func TestLineCapture_KeepsEveryLine(t *testing.T) {
	c := testutil.NewLineCapture()
	for i := range 500 {
		_, _ = fmt.Fprintf(c, "{\"id\":%d}\n", i)
	}
	if n := len(c.Lines()); n != 500 {
		t.Fatalf("captured %d lines, want 500", n)
	}
	for want := range 500 {
		var doc struct{ ID int }
		c.WaitJSON(t, time.Second, &doc)
		if doc.ID != want {
			t.Fatalf("line %d has id %d", want, doc.ID)
		}
	}
}

func TestLineCapture_WaitsForWriter(t *testing.T) {
	c := testutil.NewLineCapture()
	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = c.Write([]byte("late\r\n"))
	}()
	if got := c.WaitLine(t, 5*time.Second); got != "late" {
		t.Errorf("got %q, want late", got)
	}
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := testutil.NewFakeClock(start)
	c.Advance(1500 * time.Millisecond)
	if got := c.Now().Sub(start); got != 1500*time.Millisecond {
		t.Errorf("advanced %v, want 1.5s", got)
	}
}

func TestFakeClock_After(t *testing.T) {
	c := testutil.NewFakeClock(time.Unix(0, 0))
	early := c.After(time.Second)
	late := c.After(time.Minute)
	select {
	case <-c.After(0):
	default:
		t.Error("After(0) did not fire at once")
	}

	c.Advance(999 * time.Millisecond)
	select {
	case <-early:
		t.Fatal("fired before its time")
	default:
	}

	c.Advance(time.Millisecond)
	select {
	case got := <-early:
		if !got.Equal(time.Unix(1, 0)) {
			t.Errorf("fired with %v", got)
		}
	default:
		t.Fatal("did not fire once due")
	}
	if c.Waiters() != 1 {
		t.Errorf("waiters = %d, want 1", c.Waiters())
	}
	select {
	case <-late:
		t.Error("minute timer fired after one second")
	default:
	}
}

func TestFakeSource_ResumeSkipsEarlierSteps(t *testing.T) {
	p := func(off uint64) event.Position { return event.Position{File: "mysql-bin.000001", Offset: off} }
	src := testutil.NewFakeSource(
		testutil.Step{Pos: p(100)},
		testutil.Step{Pos: p(200)},
		testutil.Step{Pos: p(300)},
	)

	s, err := src.Opener().Open(context.Background(), p(200), true)
	if err != nil {
		t.Fatal(err)
	}
	_, pos, err := s.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if pos != p(200) {
		t.Errorf("first position after resume = %v, want %v", pos, p(200))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, _ = s.Next(ctx)
	if _, _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("idle Next = %v, want deadline exceeded", err)
	}
}

func TestRecordingSink_FailOn(t *testing.T) {
	s := testutil.NewRecordingSink().FailOn(2, nil)
	ctx := context.Background()
	b := event.Batch{{Action: event.ActionDelete, Index: "shop", DocType: "orders", ID: "1"}}

	if err := s.Commit(ctx, b); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := s.Commit(ctx, b); !errors.Is(err, testutil.ErrInjected) {
		t.Fatalf("second commit = %v, want ErrInjected", err)
	}
	if len(s.Batches()) != 1 || s.Calls() != 2 {
		t.Errorf("batches=%d calls=%d, want 1 and 2", len(s.Batches()), s.Calls())
	}
}

func TestMemStore(t *testing.T) {
	s := testutil.NewMemStore()
	ctx := context.Background()
	if _, ok, _ := s.Load(ctx); ok {
		t.Fatal("empty store reported a position")
	}
	_ = s.Save(ctx, event.Position{})
	_ = s.Save(ctx, event.Position{File: "mysql-bin.000001", Offset: 4})
	if got := s.Saves(); len(got) != 1 {
		t.Errorf("saves = %v, want only the known position", got)
	}
}
