package nonce

import (
	"context"
	"sync"
	"time"

	"deepname/pkg/platform/sentinel"
	"deepname/pkg/requestcontext"
)

type entry struct {
	expiresAt time.Time
	used      bool
}

type InMemoryStore struct {
	mu     sync.Mutex
	nonces map[string]*entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{nonces: make(map[string]*entry)}
}

func (s *InMemoryStore) Issue(ctx context.Context, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nonces[nonce]; ok {
		return sentinel.ErrConflict
	}
	s.nonces[nonce] = &entry{expiresAt: requestcontext.Now(ctx).Add(ttl)}
	return nil
}

func (s *InMemoryStore) Consume(ctx context.Context, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.nonces[nonce]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !requestcontext.Now(ctx).Before(e.expiresAt) {
		delete(s.nonces, nonce)
		return sentinel.ErrExpired
	}
	if e.used {
		return sentinel.ErrAlreadyUsed
	}
	e.used = true
	return nil
}

// DeleteExpired drops nonces whose TTL has passed. Used nonces are kept until
// then so a replay still reports ErrAlreadyUsed.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for n, e := range s.nonces {
		if !now.Before(e.expiresAt) {
			delete(s.nonces, n)
			deleted++
		}
	}
	return deleted, nil
}
