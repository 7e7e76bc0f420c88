package storage

import (
	"context"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a mutex-guarded map.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	used   int
	quota  int
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithQuota caps the total bytes of keys plus values. Zero means unlimited.
func WithQuota(bytes int) MemoryOption {
	return func(s *MemoryStore) {
		s.quota = bytes
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		values: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.used + len(key) + len(value)
	if old, ok := s.values[key]; ok {
		used -= len(key) + len(old)
	}
	if s.quota > 0 && used > s.quota {
		return ErrQuotaExceeded
	}

	s.values[key] = value
	s.used = used
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.values[key]; ok {
		s.used -= len(key) + len(old)
		delete(s.values, key)
	}
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
