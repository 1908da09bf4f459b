// Package memstore is an in-process Store, used for development and tests.
package memstore

import (
	"context"
	"sync"

	"offer-api/internal/store"
)

// Store keeps values in a map and remembers insertion order for Keys.
type Store struct {
	data  map[string][]byte
	order []string
	mu    sync.RWMutex
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.data[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists {
		s.order = append(s.order, key)
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists {
		return nil
	}
	delete(s.data, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.order...), nil
}

func (s *Store) Close() error {
	return nil
}
