// Package store keeps media sessions and their encoded artifacts until they
// expire.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"deepname/internal/media/models"
	"deepname/pkg/platform/sentinel"
)

type entry struct {
	session   *models.Session
	artifacts map[models.Format]models.Artifact
}

// InMemoryStore holds sessions in process memory. Expired sessions read as
// sentinel.ErrNotFound and are dropped by DeleteExpired.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
	now     func() time.Time
}

type Option func(*InMemoryStore)

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(s *InMemoryStore) { s.now = now }
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		entries: make(map[uuid.UUID]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PutSession creates or replaces the session, keeping any stored artifacts.
func (s *InMemoryStore) PutSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[session.ID]
	if !ok {
		e = &entry{artifacts: make(map[models.Format]models.Artifact)}
		s.entries[session.ID] = e
	}
	e.session = session.Clone()
	return nil
}

// PutArtifacts attaches artifacts to an existing session.
func (s *InMemoryStore) PutArtifacts(_ context.Context, id uuid.UUID, artifacts []models.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	for _, a := range artifacts {
		e.artifacts[a.Format] = a
	}
	return nil
}

func (s *InMemoryStore) Session(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok || e.session.Expired(s.now()) {
		return nil, sentinel.ErrNotFound
	}
	return e.session.Clone(), nil
}

func (s *InMemoryStore) Artifact(_ context.Context, id uuid.UUID, format models.Format) (models.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok || e.session.Expired(s.now()) {
		return models.Artifact{}, sentinel.ErrNotFound
	}
	a, ok := e.artifacts[format]
	if !ok {
		return models.Artifact{}, sentinel.ErrNotFound
	}
	return a, nil
}

// DeleteExpired drops sessions whose TTL has passed at now.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, e := range s.entries {
		if e.session.Expired(now) {
			delete(s.entries, id)
			deleted++
		}
	}
	return deleted, nil
}
