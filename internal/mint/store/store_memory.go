package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"deepname/internal/mint/models"
	"deepname/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	attempts map[uuid.UUID]*models.Attempt
	// pending indexes in-flight attempts by nullifier hash.
	pending map[string]uuid.UUID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		attempts: make(map[uuid.UUID]*models.Attempt),
		pending:  make(map[string]uuid.UUID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, a *models.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[a.ID]; ok {
		return sentinel.ErrConflict
	}
	if a.State.Pending() {
		if _, busy := s.pending[a.NullifierHash]; busy {
			return sentinel.ErrConflict
		}
		s.pending[a.NullifierHash] = a.ID
	}
	s.attempts[a.ID] = a.Clone()
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, a *models.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.attempts[a.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if a.State.Pending() {
		if id, busy := s.pending[a.NullifierHash]; busy && id != a.ID {
			return sentinel.ErrConflict
		}
		s.pending[a.NullifierHash] = a.ID
	} else if id, ok := s.pending[prev.NullifierHash]; ok && id == a.ID {
		delete(s.pending, prev.NullifierHash)
	}
	s.attempts[a.ID] = a.Clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *InMemoryStore) FindPending(_ context.Context, nullifierHash string) (*models.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pending[nullifierHash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.attempts[id].Clone(), nil
}

var _ Store = (*InMemoryStore)(nil)
