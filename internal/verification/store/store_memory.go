package store

import (
	"context"
	"slices"
	"sync"

	"deepname/internal/verification/models"
	"deepname/pkg/platform/sentinel"
)

// InMemoryStore keeps records in process memory. It is the default backend and
// does not survive restarts.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[models.Kind]models.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[models.Kind]models.Entry)}
}

func (s *InMemoryStore) Put(_ context.Context, entry models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.entries[entry.Kind]; ok && entry.StoredAt.Before(current.StoredAt) {
		return sentinel.ErrSuperseded
	}
	entry.Payload = slices.Clone(entry.Payload)
	s.entries[entry.Kind] = entry
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, kind models.Kind) (models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[kind]
	if !ok {
		return models.Entry{}, sentinel.ErrNotFound
	}
	entry.Payload = slices.Clone(entry.Payload)
	return entry, nil
}

func (s *InMemoryStore) Clear(_ context.Context, kind models.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, kind)
	return nil
}
