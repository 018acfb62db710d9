package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/florinutz/binsync/event"
)

// ErrInjected is returned by RecordingSink when a commit is set to fail.
var ErrInjected = errors.New("injected sink failure")

// RecordingSink keeps every committed batch in memory.
type RecordingSink struct {
	mu      sync.Mutex
	batches []event.Batch
	calls   int
	failOn  map[int]error
	onCall  func(n int)

	// ValidateErr is returned from Validate.
	ValidateErr error
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{failOn: make(map[int]error)}
}

// FailOn makes the nth Commit call (1-based) fail with err, or ErrInjected
// when err is nil.
func (s *RecordingSink) FailOn(n int, err error) *RecordingSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	s.failOn[n] = err
	return s
}

// OnCommit registers fn to run at the start of every Commit with the call
// number. Used to trigger cancellation at a precise point.
func (s *RecordingSink) OnCommit(fn func(n int)) *RecordingSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCall = fn
	return s
}

func (s *RecordingSink) Commit(ctx context.Context, b event.Batch) error {
	s.mu.Lock()
	s.calls++
	n := s.calls
	hook := s.onCall
	err := s.failOn[n]
	s.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append(event.Batch(nil), b...))
	return nil
}

func (s *RecordingSink) Name() string { return "recording" }

func (s *RecordingSink) Validate(context.Context) error { return s.ValidateErr }

// Batches returns a copy of the successfully committed batches.
func (s *RecordingSink) Batches() []event.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Batch(nil), s.batches...)
}

// Operations flattens all committed batches.
func (s *RecordingSink) Operations() []event.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ops []event.Operation
	for _, b := range s.batches {
		ops = append(ops, b...)
	}
	return ops
}

// Calls returns the number of Commit calls, failed ones included.
func (s *RecordingSink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
