package syncerr

import (
	"fmt"

	"github.com/florinutz/binsync/event"
)

// WrapChange wraps err with the table and kind of the change being processed.
// Use this for per-change failures so errors are self-describing in logs and
// alerts.
func WrapChange(err error, pos event.Position, ch event.Change) error {
	return fmt.Errorf("[pos=%s table=%s.%s op=%s]: %w",
		pos, ch.Schema, ch.Table, ch.Kind, err)
}
