// Package cleanup sweeps expired in-memory state: spent or stale SIWE nonces,
// media sessions past their TTL and idle rate limit windows. Redis-backed
// state expires on its own.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// NonceStore exposes cleanup for expired sign-in nonces.
type NonceStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// MediaStore exposes cleanup for expired media sessions and their artifacts.
type MediaStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// RateLimitStore exposes cleanup for idle rate limit windows.
type RateLimitStore interface {
	DeleteIdle(ctx context.Context, maxWindow time.Duration) (int, error)
}

// Result summarizes the deletions performed by a cleanup run.
type Result struct {
	DeletedNonces        int
	DeletedMediaSessions int
	DeletedRateLimitKeys int
}

// Service periodically removes expired state.
type Service struct {
	nonces   NonceStore
	media    MediaStore
	limits   RateLimitStore
	window   time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

// WithInterval overrides the cleanup interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNonces adds the nonce store to the sweep. It is optional because a
// Redis nonce store needs no sweeping.
func WithNonces(nonces NonceStore) Option {
	return func(s *Service) { s.nonces = nonces }
}

// WithRateLimits adds in-memory rate limit windows to the sweep. maxWindow is
// the longest configured window.
func WithRateLimits(limits RateLimitStore, maxWindow time.Duration) Option {
	return func(s *Service) {
		s.limits = limits
		s.window = maxWindow
	}
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(media MediaStore, opts ...Option) (*Service, error) {
	if media == nil {
		return nil, fmt.Errorf("media store is required")
	}
	svc := &Service{
		media:    media,
		interval: time.Minute,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Start runs cleanup periodically until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "cleanup failed", "error", err)
				continue
			}
			if res.DeletedNonces > 0 || res.DeletedMediaSessions > 0 || res.DeletedRateLimitKeys > 0 {
				s.logger.DebugContext(ctx, "cleanup removed expired state",
					"nonces", res.DeletedNonces,
					"media_sessions", res.DeletedMediaSessions,
					"rate_limit_keys", res.DeletedRateLimitKeys,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single sweep. Errors from each store are joined; one
// failing store does not stop the others.
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	now := s.now()
	var (
		res  Result
		errs []error
	)

	if s.nonces != nil {
		n, err := s.nonces.DeleteExpired(ctx, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete expired nonces: %w", err))
		} else {
			res.DeletedNonces = n
		}
	}

	n, err := s.media.DeleteExpired(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete expired media sessions: %w", err))
	} else {
		res.DeletedMediaSessions = n
	}

	if s.limits != nil && s.window > 0 {
		n, err := s.limits.DeleteIdle(ctx, s.window)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete idle rate limit windows: %w", err))
		} else {
			res.DeletedRateLimitKeys = n
		}
	}

	return res, errors.Join(errs...)
}
