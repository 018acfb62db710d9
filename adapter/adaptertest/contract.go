package adaptertest

import (
	"context"
	"errors"
	"testing"

	"github.com/florinutz/binsync/adapter"
	"github.com/florinutz/binsync/event"
)

// RunContractTests runs the standard Sink contract tests. newSink must return
// a sink whose backend accepts every operation.
func RunContractTests(t *testing.T, newSink func(t *testing.T) adapter.Sink) {
	t.Helper()

	t.Run("name_non_empty", func(t *testing.T) {
		if newSink(t).Name() == "" {
			t.Error("sink name must not be empty")
		}
	})

	t.Run("empty_batch", func(t *testing.T) {
		if err := newSink(t).Commit(context.Background(), nil); err != nil {
			t.Errorf("expected nil error for empty batch, got %v", err)
		}
	})

	t.Run("cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := newSink(t).Commit(ctx, TestBatch())
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("commits_batch", func(t *testing.T) {
		if err := newSink(t).Commit(context.Background(), TestBatch()); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	})

	t.Run("replay", func(t *testing.T) {
		s := newSink(t)
		for i := range 2 {
			if err := s.Commit(context.Background(), TestBatch()); err != nil {
				t.Fatalf("commit %d: %v", i+1, err)
			}
		}
	})
}

// TestBatch returns one operation of every action against the same document.
func TestBatch() event.Batch {
	body := event.Row{"id": event.IntValue(1), "name": event.StringValue("widget")}
	return event.Batch{
		{Action: event.ActionUpsert, Index: "shop", DocType: "products", ID: "1", Body: body},
		{Action: event.ActionUpdate, Index: "shop", DocType: "products", ID: "1", Body: body},
		{Action: event.ActionDelete, Index: "shop", DocType: "products", ID: "1"},
	}
}
