package adapter

import (
	"context"

	"github.com/florinutz/binsync/event"
)

// Sink applies batches of index operations to a search engine.
//
// Commit is all-or-nothing from the caller's point of view: a nil error means
// every operation in the batch is durable in the index. Operations are
// idempotent, so a failed batch may be re-sent in full.
type Sink interface {
	Commit(ctx context.Context, b event.Batch) error
	Name() string
}

// Validator is implemented by sinks that can probe their backend before the
// pipeline starts streaming.
type Validator interface {
	Validate(ctx context.Context) error
}
