// Package service runs the Sign-In with Ethereum exchange: nonce issuance,
// message verification and wallet session issuance.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"deepname/internal/auth/nonce"
	"deepname/internal/auth/session"
	"deepname/internal/auth/siwe"
	"deepname/internal/platform/metrics"
	dErrors "deepname/pkg/domain-errors"
	"deepname/pkg/platform/sentinel"
	"deepname/pkg/requestcontext"
)

type NonceStore interface {
	Issue(ctx context.Context, nonce string, ttl time.Duration) error
	Consume(ctx context.Context, nonce string) error
}

type MessageVerifier interface {
	Verify(ctx context.Context, p siwe.Payload, nonce string, now time.Time) (*siwe.Message, error)
}

type SessionIssuer interface {
	Issue(ctx context.Context, wallet string, chainID int64) (string, *session.Claims, error)
}

// SignIn is a completed sign-in.
type SignIn struct {
	Token   string
	Claims  *session.Claims
	Message *siwe.Message
}

type Service struct {
	nonces   NonceStore
	verifier MessageVerifier
	sessions SessionIssuer
	nonceTTL time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(nonces NonceStore, verifier MessageVerifier, sessions SessionIssuer, nonceTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		nonces:   nonces,
		verifier: verifier,
		sessions: sessions,
		nonceTTL: nonceTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) NonceTTL() time.Duration {
	return s.nonceTTL
}

// IssueNonce stores and returns a fresh single-use nonce.
func (s *Service) IssueNonce(ctx context.Context) (string, error) {
	n := nonce.New()
	if err := s.nonces.Issue(ctx, n, s.nonceTTL); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue nonce")
	}
	return n, nil
}

// CompleteSignIn consumes the nonce, verifies the signed message and issues a
// session for the signing wallet. The nonce is spent even when verification
// fails.
func (s *Service) CompleteSignIn(ctx context.Context, p siwe.Payload, n string) (*SignIn, error) {
	if err := s.nonces.Consume(ctx, n); err != nil {
		s.record("nonce_rejected")
		switch {
		case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrExpired):
			return nil, dErrors.NewWithDetail(dErrors.CodeUnauthorized, "Invalid nonce", "nonce_unknown")
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			return nil, dErrors.NewWithDetail(dErrors.CodeUnauthorized, "Invalid nonce", "nonce_used")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check nonce")
		}
	}

	msg, err := s.verifier.Verify(ctx, p, n, requestcontext.Now(ctx))
	if err != nil {
		s.record("rejected")
		s.logger.InfoContext(ctx, "siwe message rejected",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, translateVerifyError(err)
	}

	token, claims, err := s.sessions.Issue(ctx, msg.Address.Hex(), msg.ChainID)
	if err != nil {
		s.record("error")
		return nil, err
	}
	s.record("success")
	s.logger.InfoContext(ctx, "wallet signed in",
		"wallet", claims.Wallet,
		"chain_id", msg.ChainID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &SignIn{Token: token, Claims: claims, Message: msg}, nil
}

func translateVerifyError(err error) error {
	detail := ""
	switch {
	case errors.Is(err, siwe.ErrMalformed):
		return &dErrors.Error{Code: dErrors.CodeBadRequest, Message: err.Error(), Detail: "malformed_message", Err: err}
	case errors.Is(err, siwe.ErrNonceMismatch):
		detail = "nonce_mismatch"
	case errors.Is(err, siwe.ErrAddressMismatch):
		detail = "address_mismatch"
	case errors.Is(err, siwe.ErrDomainMismatch):
		detail = "domain_mismatch"
	case errors.Is(err, siwe.ErrExpired):
		detail = "expired"
	case errors.Is(err, siwe.ErrNotYetValid):
		detail = "not_yet_valid"
	case errors.Is(err, siwe.ErrInvalidSignature):
		detail = "invalid_signature"
	default:
		return &dErrors.Error{Code: dErrors.CodeUnavailable, Message: "signature check unavailable", Err: err}
	}
	return &dErrors.Error{Code: dErrors.CodeUnauthorized, Message: err.Error(), Detail: detail, Err: err}
}

func (s *Service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementSIWE(outcome)
	}
}
