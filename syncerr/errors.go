package syncerr

import (
	"errors"
	"fmt"

	"github.com/florinutz/binsync/event"
)

// ErrSourceClosed is returned by a source after Close has been called.
var ErrSourceClosed = errors.New("source: closed")

// Reason classifies why a change could not be normalized.
type Reason int

const (
	// ReasonUnsupportedKind marks a change kind the index has no operation
	// for. The change is skipped and streaming continues.
	ReasonUnsupportedKind Reason = iota + 1
	// ReasonMissingPrimaryKey marks a row without a usable primary key
	// value. It points at a schema mismatch and stops the stream.
	ReasonMissingPrimaryKey
)

func (r Reason) String() string {
	switch r {
	case ReasonUnsupportedKind:
		return "unsupported event kind"
	case ReasonMissingPrimaryKey:
		return "missing primary key"
	default:
		return "unknown"
	}
}

// NormalizationError indicates that a change could not be turned into an
// index operation.
type NormalizationError struct {
	Reason Reason
	Schema string
	Table  string
	Kind   event.ChangeKind
	Field  string
}

func (e *NormalizationError) Error() string {
	if e.Reason == ReasonMissingPrimaryKey {
		return fmt.Sprintf("normalize %s %s.%s: %s (field %q)", e.Kind, e.Schema, e.Table, e.Reason, e.Field)
	}
	return fmt.Sprintf("normalize %s %s.%s: %s", e.Kind, e.Schema, e.Table, e.Reason)
}

// SinkCommitError indicates that a batch could not be committed to the index.
type SinkCommitError struct {
	Sink       string
	Ops        int
	StatusCode int
	Err        error
}

func (e *SinkCommitError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sink %s: commit of %d operations failed (status %d): %v", e.Sink, e.Ops, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("sink %s: commit of %d operations failed: %v", e.Sink, e.Ops, e.Err)
}

func (e *SinkCommitError) Unwrap() error {
	return e.Err
}

// SourceDisconnectedError indicates that the change stream source stopped
// delivering events for a reason other than an operator stop.
type SourceDisconnectedError struct {
	Source string
	Err    error
}

func (e *SourceDisconnectedError) Error() string {
	return fmt.Sprintf("source %s disconnected: %v", e.Source, e.Err)
}

func (e *SourceDisconnectedError) Unwrap() error {
	return e.Err
}

// MySQLReplicationError wraps failures of the binlog replication connection.
type MySQLReplicationError struct {
	Addr string
	Err  error
}

func (e *MySQLReplicationError) Error() string {
	return fmt.Sprintf("mysql replication %s: %v", e.Addr, e.Err)
}

func (e *MySQLReplicationError) Unwrap() error {
	return e.Err
}

// CheckpointError indicates that a checkpoint could not be loaded or saved.
type CheckpointError struct {
	Op   string // "load" or "save"
	Path string
	Err  error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// NotifyError indicates that an alert could not be delivered.
type NotifyError struct {
	Notifier string
	Err      error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notifier %s: %v", e.Notifier, e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether err may be logged and skipped without stopping
// the stream: unsupported change kinds, checkpoint and notifier failures.
func Recoverable(err error) bool {
	var ne *NormalizationError
	if errors.As(err, &ne) {
		return ne.Reason == ReasonUnsupportedKind
	}
	var ce *CheckpointError
	if errors.As(err, &ce) {
		return true
	}
	var nf *NotifyError
	return errors.As(err, &nf)
}
