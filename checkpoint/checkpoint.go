// Package checkpoint persists the binlog position binsync has durably indexed
// up to, so a restart resumes the stream instead of starting at the tail.
package checkpoint

import (
	"context"

	"github.com/florinutz/binsync/event"
)

// Store persists a single stream position.
type Store interface {
	// Load returns the last persisted position. ok is false when no
	// checkpoint exists yet.
	Load(ctx context.Context) (pos event.Position, ok bool, err error)

	// Save persists pos. Positions that are not fully known are ignored.
	Save(ctx context.Context, pos event.Position) error

	// Close releases any underlying resources.
	Close() error
}
