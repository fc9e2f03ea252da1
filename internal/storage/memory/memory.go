package memory

import (
	"context"
	"sync"

	"pomotimer/internal/session"
	"pomotimer/internal/storage"
)

// Store keeps the flattened snapshot in a map. The daemon falls back to it
// when the database cannot be opened.
type Store struct {
	mu     sync.Mutex
	values map[string]string
	closed bool
}

func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

var _ storage.StateStore = (*Store)(nil)

func (s *Store) Init(ctx context.Context) error { return nil }

func (s *Store) SaveSnapshot(ctx context.Context, snap session.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	for k, v := range storage.Encode(snap) {
		s.values[k] = v
	}
	return nil
}

func (s *Store) LoadSnapshot(ctx context.Context) (session.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return session.Default(), storage.ErrClosed
	}
	return storage.Decode(s.values), nil
}

// Values returns a copy of the raw key-value record.
func (s *Store) Values() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
