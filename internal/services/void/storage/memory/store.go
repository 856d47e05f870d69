// Package memory provides a process-local storage backend.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/louisbranch/thevoid/internal/services/void/storage"
)

// Store keeps records in a map. Values do not survive a restart.
type Store struct {
	mu      sync.Mutex
	records map[string][]byte
	closed  bool
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, ok := storage.NormalizeKey(key)
	if !ok {
		return nil, fmt.Errorf("key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	value, found := s.records[key]
	if !found {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Put stores a copy of value under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, ok := storage.NormalizeKey(key)
	if !ok {
		return fmt.Errorf("key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	s.records[key] = append([]byte(nil), value...)
	return nil
}

// Close marks the store closed; later calls return storage.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
