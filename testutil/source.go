package testutil

import (
	"context"
	"sync"

	"github.com/florinutz/binsync/detector"
	"github.com/florinutz/binsync/event"
)

// Step is one scripted Next result of a FakeSource.
type Step struct {
	Change event.Change
	Pos    event.Position
	Err    error
}

// FakeSource replays a fixed script. Once the script is exhausted Next blocks
// until ctx is done, like an idle binlog stream.
type FakeSource struct {
	mu     sync.Mutex
	steps  []Step
	next   int
	closed bool
	opened []OpenCall
}

// OpenCall records one Opener.Open invocation.
type OpenCall struct {
	Pos event.Position
	OK  bool
}

// NewFakeSource creates a source scripted with steps.
func NewFakeSource(steps ...Step) *FakeSource {
	return &FakeSource{steps: steps}
}

// Opener returns an Opener that records its arguments and hands out s. When
// the resume position is known, steps positioned before it are skipped, the way
// a binlog reader resumes mid-stream.
func (s *FakeSource) Opener() detector.Opener {
	return detector.OpenerFunc(func(_ context.Context, pos event.Position, ok bool) (detector.Source, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.opened = append(s.opened, OpenCall{Pos: pos, OK: ok})
		s.closed = false
		s.next = 0
		if ok {
			for s.next < len(s.steps) && s.steps[s.next].Err == nil && before(s.steps[s.next].Pos, pos) {
				s.next++
			}
		}
		return s, nil
	})
}

// Opens returns the (pos, ok) pairs passed to Open, oldest first.
func (s *FakeSource) Opens() []OpenCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OpenCall(nil), s.opened...)
}

func before(a, b event.Position) bool {
	if a.File != b.File {
		return a.File < b.File
	}
	return a.Offset < b.Offset
}

func (s *FakeSource) Next(ctx context.Context) (event.Change, event.Position, error) {
	s.mu.Lock()
	if s.next < len(s.steps) {
		st := s.steps[s.next]
		s.next++
		s.mu.Unlock()
		return st.Change, st.Pos, st.Err
	}
	s.mu.Unlock()

	<-ctx.Done()
	return event.Change{}, event.Position{}, ctx.Err()
}

// Exhausted reports whether every scripted step has been returned.
func (s *FakeSource) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next >= len(s.steps)
}

func (s *FakeSource) Name() string { return "fake" }

func (s *FakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called since the last Open.
func (s *FakeSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
