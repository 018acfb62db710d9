package detector

import (
	"context"

	"github.com/florinutz/binsync/event"
)

// Source yields row changes in log order. The position returned with each
// change is a safe resume point: reopening at it replays that change (and
// possibly a few before it) but never skips one.
type Source interface {
	Next(ctx context.Context) (event.Change, event.Position, error)
	Name() string
	Close() error
}

// Opener opens a Source. When ok is false there is no checkpoint and the
// source starts from the current tail of the log.
type Opener interface {
	Open(ctx context.Context, pos event.Position, ok bool) (Source, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, pos event.Position, ok bool) (Source, error)

func (f OpenerFunc) Open(ctx context.Context, pos event.Position, ok bool) (Source, error) {
	return f(ctx, pos, ok)
}
