package store

import (
	"context"
	"sync"
	"time"

	"deepname/internal/ratelimit/models"
)

// InMemoryStore keeps a sliding window of request timestamps per key.
// Use RedisStore when more than one replica serves traffic.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
	now     func() time.Time
}

type slidingWindow struct {
	timestamps []time.Time
}

func (sw *slidingWindow) tryConsume(cost int, limit models.Limit, now time.Time) models.Result {
	sw.dropExpired(now, limit.Window)

	if len(sw.timestamps)+cost > limit.Requests {
		resetAt := now.Add(limit.Window)
		if len(sw.timestamps) > 0 {
			resetAt = sw.timestamps[0].Add(limit.Window)
		}
		return models.Result{Limit: limit.Requests, ResetAt: resetAt}
	}
	for range cost {
		sw.timestamps = append(sw.timestamps, now)
	}
	return models.Result{
		Allowed:   true,
		Limit:     limit.Requests,
		Remaining: limit.Requests - len(sw.timestamps),
		ResetAt:   sw.timestamps[0].Add(limit.Window),
	}
}

// dropExpired removes timestamps at or before now-window.
func (sw *slidingWindow) dropExpired(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}

type MemoryOption func(*InMemoryStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryStore) { s.now = now }
}

func NewInMemory(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		windows: make(map[string]*slidingWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) AllowN(_ context.Context, key string, cost int, limit models.Limit) (models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = &slidingWindow{}
		s.windows[key] = w
	}
	return w.tryConsume(cost, limit, s.now()), nil
}

// Reset clears the window for a key.
func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// DeleteIdle drops windows with no request newer than maxWindow. Returns the
// number of keys removed.
func (s *InMemoryStore) DeleteIdle(_ context.Context, maxWindow time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, w := range s.windows {
		w.dropExpired(now, maxWindow)
		if len(w.timestamps) == 0 {
			delete(s.windows, key)
			removed++
		}
	}
	return removed, nil
}
