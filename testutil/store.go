package testutil

import (
	"context"
	"sync"

	"github.com/florinutz/binsync/event"
)

// MemStore is an in-memory checkpoint store that records every save.
type MemStore struct {
	mu      sync.Mutex
	pos     event.Position
	ok      bool
	saves   []event.Position
	saveErr error
	closed  bool
}

// NewMemStore returns an empty store. Pass a position to pre-seed it.
func NewMemStore(seed ...event.Position) *MemStore {
	s := &MemStore{}
	if len(seed) > 0 && seed[0].Known() {
		s.pos, s.ok = seed[0], true
	}
	return s
}

// FailSaves makes every subsequent Save return err.
func (s *MemStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

func (s *MemStore) Load(context.Context) (event.Position, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos, s.ok, nil
}

func (s *MemStore) Save(_ context.Context, pos event.Position) error {
	if !pos.Known() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.pos, s.ok = pos, true
	s.saves = append(s.saves, pos)
	return nil
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Position returns the current stored position.
func (s *MemStore) Position() (event.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos, s.ok
}

// Saves returns every successfully saved position in order.
func (s *MemStore) Saves() []event.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Position(nil), s.saves...)
}
