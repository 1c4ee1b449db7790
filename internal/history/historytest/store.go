// Package historytest provides test helpers for the history package.
package historytest

import (
	"context"
	"sync"

	"github.com/flemzord/confidant/internal/history"
)

// Store is an in-memory history.Store that records every Persist call.
// Set LoadErr or PersistErr to inject failures. Safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	stored     history.History
	persists   int
	LoadErr    error
	PersistErr error
}

// NewStore returns a Store holding a copy of h.
func NewStore(h history.History) *Store {
	return &Store{stored: h.Clone()}
}

// Load returns a copy of the stored history.
func (s *Store) Load(_ context.Context) (history.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	return s.stored.Clone(), nil
}

// Persist replaces the stored history unless PersistErr is set.
func (s *Store) Persist(_ context.Context, h history.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persists++
	if s.PersistErr != nil {
		return s.PersistErr
	}
	s.stored = h.Clone()
	return nil
}

// SetPersistErr changes the injected Persist failure.
func (s *Store) SetPersistErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PersistErr = err
}

// Stored returns a copy of the last successfully persisted history.
func (s *Store) Stored() history.History {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stored.Clone()
}

// Persists returns how many times Persist was called.
func (s *Store) Persists() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persists
}

// Interface guard.
var _ history.Store = (*Store)(nil)
