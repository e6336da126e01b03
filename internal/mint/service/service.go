// Package service orchestrates a mint: load both verification records, build
// the registration call, submit it, and follow it to confirmation.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"deepname/internal/events"
	"deepname/internal/mint/chain"
	"deepname/internal/mint/models"
	"deepname/internal/mint/sources"
	"deepname/internal/mint/store"
	"deepname/internal/platform/metrics"
	"deepname/internal/platform/tracer"
	dErrors "deepname/pkg/domain-errors"
	"deepname/pkg/platform/sentinel"
	"deepname/pkg/requestcontext"
)

// Registrar submits registrations and waits for them to be mined.
type Registrar interface {
	Submit(ctx context.Context, req models.Request) (*types.Transaction, error)
	WaitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// outcomeWriteTimeout bounds the writes that record what happened to a
// submitted transaction.
const outcomeWriteTimeout = 5 * time.Second

type Service struct {
	stored         sources.Source
	attempts       store.Store
	registrar      Registrar
	missingChain   []string
	submitTimeout  time.Duration
	confirmTimeout time.Duration
	events         events.Emitter
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         tracer.Tracer

	// confirmations run on baseCtx so they outlive the request that started
	// them; Close cancels it.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithEvents(e events.Emitter) Option {
	return func(s *Service) { s.events = e }
}

// WithMissingChain records chain settings that were absent at startup. While
// any are missing every mint fails as a configuration error.
func WithMissingChain(names []string) Option {
	return func(s *Service) { s.missingChain = names }
}

func WithTimeouts(submit, confirm time.Duration) Option {
	return func(s *Service) {
		if submit > 0 {
			s.submitTimeout = submit
		}
		if confirm > 0 {
			s.confirmTimeout = confirm
		}
	}
}

// New builds the orchestrator. registrar may be nil when the chain is not
// configured.
func New(stored sources.Source, attempts store.Store, registrar Registrar, opts ...Option) *Service {
	s := &Service{
		stored:         stored,
		attempts:       attempts,
		registrar:      registrar,
		submitTimeout:  30 * time.Second,
		confirmTimeout: 3 * time.Minute,
		events:         events.Discard{},
		logger:         slog.Default(),
		tracer:         tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Mint runs one attempt up to submission and returns it in minting. The
// confirmation continues in the background; poll Get for the outcome.
//
// On failure the returned attempt carries the failure class and, for missing
// records, the flow to redirect to. On a duplicate trigger it is the attempt
// already in flight.
func (s *Service) Mint(ctx context.Context, owner string, cached sources.Cached) (*models.Attempt, error) {
	start := requestcontext.Now(ctx)
	attempt := models.NewAttempt(owner, start)

	loaded, err := s.load(ctx, cached)
	if err != nil {
		var missing *sources.MissingError
		if errors.As(err, &missing) {
			attempt.Redirect = missing.Redirect()
			s.fail(ctx, attempt, models.FailureMissingRecords, missing.Error())
			return attempt, dErrors.NewWithDetail(dErrors.CodeRecordsMissing,
				"verification records are missing", attempt.Redirect)
		}
		s.fail(ctx, attempt, models.FailureUnavailable, err.Error())
		return attempt, err
	}

	attempt.NullifierHash = loaded.Humanity.NullifierHash
	req, err := models.BuildRequest(owner, loaded.Humanity, loaded.Identity)
	if err != nil {
		s.fail(ctx, attempt, models.FailureMissingField, err.Error())
		return attempt, err
	}
	attempt.Name = req.Name

	if len(s.missingChain) > 0 || s.registrar == nil {
		detail := strings.Join(s.missingChain, ",")
		s.fail(ctx, attempt, models.FailureConfiguration, "chain is not configured")
		return attempt, dErrors.NewWithDetail(dErrors.CodeConfiguration, "minting is not configured", detail)
	}

	if err := attempt.TransitionTo(models.StateReady, requestcontext.Now(ctx)); err != nil {
		return attempt, dErrors.Wrap(err, dErrors.CodeInternal, "failed to prepare mint")
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return s.conflict(ctx, attempt)
		}
		return attempt, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record mint attempt")
	}

	if err := attempt.TransitionTo(models.StateMinting, requestcontext.Now(ctx)); err != nil {
		return attempt, dErrors.Wrap(err, dErrors.CodeInternal, "failed to start mint")
	}

	tx, err := s.submit(ctx, attempt, req)

	// Once a transaction may have been sent its outcome is recorded even if the
	// caller has gone away.
	writeCtx, writeCancel := context.WithTimeout(context.WithoutCancel(ctx), outcomeWriteTimeout)
	defer writeCancel()

	if err != nil {
		failure := chain.ClassifyChainError(err)
		s.fail(ctx, attempt, failure, err.Error())
		s.persist(writeCtx, attempt)
		s.emit(writeCtx, events.MintFailed, attempt)
		if s.metrics != nil {
			s.metrics.MintFinished(string(models.StateError), string(failure), false, 0)
		}
		return attempt, &dErrors.Error{
			Code:    dErrors.CodeChainFailure,
			Message: "mint transaction was not submitted",
			Detail:  string(failure),
			Err:     err,
		}
	}

	attempt.TxHash = tx.Hash().Hex()
	attempt.UpdatedAt = requestcontext.Now(ctx)
	s.persist(writeCtx, attempt)
	s.emit(writeCtx, events.MintSubmitted, attempt)
	if s.metrics != nil {
		s.metrics.IncrementMintAttempt("submitted")
		s.metrics.MintSubmitted()
	}
	s.logger.InfoContext(ctx, "mint submitted",
		"attempt_id", attempt.ID,
		"tx_hash", attempt.TxHash,
		"owner_hash", tracer.HashIdentifier(owner),
	)

	snapshot := attempt.Clone()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.confirm(snapshot, tx, start)
	}()

	return attempt, nil
}

// Get returns an attempt by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Attempt, error) {
	a, err := s.attempts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "mint attempt not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load mint attempt")
	}
	return a, nil
}

// Close stops waiting on outstanding confirmations. Attempts still waiting
// are moved to error so none stays pending across restarts.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) load(ctx context.Context, cached sources.Cached) (loaded *sources.Loaded, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanMintLoad)
	defer func() { span.End(err) }()

	loaded, err = sources.Chain{s.stored, cached}.Load(ctx)
	if loaded != nil {
		span.SetAttributes(
			tracer.String(tracer.AttrSource+".humanity", loaded.HumanitySource),
			tracer.String(tracer.AttrSource+".identity", loaded.IdentitySource),
		)
	}
	return loaded, err
}

func (s *Service) submit(ctx context.Context, attempt *models.Attempt, req models.Request) (tx *types.Transaction, err error) {
	// The user closing the request must not abandon a half-sent transaction.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.submitTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, tracer.SpanMintSubmit,
		tracer.String(tracer.AttrOwner, tracer.HashIdentifier(attempt.Owner)),
		tracer.String(tracer.AttrNullifier, tracer.HashIdentifier(attempt.NullifierHash)),
	)
	defer func() { span.End(err) }()

	tx, err = s.registrar.Submit(ctx, req)
	if err != nil {
		span.SetAttributes(tracer.String(tracer.AttrFailure, string(chain.ClassifyChainError(err))))
		return nil, err
	}
	span.SetAttributes(tracer.String(tracer.AttrTxHash, tx.Hash().Hex()))
	return tx, nil
}

func (s *Service) confirm(attempt *models.Attempt, tx *types.Transaction, start time.Time) {
	ctx, cancel := context.WithTimeout(s.baseCtx, s.confirmTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, tracer.SpanMintConfirm, tracer.String(tracer.AttrTxHash, attempt.TxHash))
	_, err := s.registrar.WaitConfirmed(ctx, tx)
	span.End(err)

	// Outcome writes must land even when the wait was cut short.
	writeCtx, writeCancel := context.WithTimeout(context.Background(), outcomeWriteTimeout)
	defer writeCancel()

	now := time.Now().UTC()
	evt := events.MintConfirmed
	if err != nil {
		failure := chain.ClassifyChainError(err)
		msg := err.Error()
		if errors.Is(err, context.Canceled) {
			failure = models.FailureTimeout
			msg = "stopped waiting for confirmation; check the transaction hash"
		}
		_ = attempt.Fail(failure, msg, now)
		evt = events.MintFailed
		s.logger.Warn("mint failed after submission",
			"attempt_id", attempt.ID,
			"tx_hash", attempt.TxHash,
			"failure", failure,
			"error", err,
		)
	} else {
		_ = attempt.TransitionTo(models.StateSuccess, now)
		s.logger.Info("mint confirmed", "attempt_id", attempt.ID, "tx_hash", attempt.TxHash)
	}

	s.persist(writeCtx, attempt)
	s.emit(writeCtx, evt, attempt)
	if s.metrics != nil {
		s.metrics.MintFinished(string(attempt.State), string(attempt.Failure), true, now.Sub(start).Seconds())
	}
}

func (s *Service) conflict(ctx context.Context, attempt *models.Attempt) (*models.Attempt, error) {
	if s.metrics != nil {
		s.metrics.IncrementMintAttempt("duplicate")
	}
	err := dErrors.New(dErrors.CodeConflict, "a mint for this identity is already in progress")
	pending, findErr := s.attempts.FindPending(ctx, attempt.NullifierHash)
	if findErr != nil {
		// The other attempt finished in between; report the conflict anyway so
		// the user retries deliberately.
		return attempt, err
	}
	return pending, err
}

// fail moves an attempt that was never persisted to error.
func (s *Service) fail(ctx context.Context, attempt *models.Attempt, f models.Failure, msg string) {
	if err := attempt.Fail(f, msg, requestcontext.Now(ctx)); err != nil {
		s.logger.ErrorContext(ctx, "mint attempt in unexpected state", "attempt_id", attempt.ID, "error", err)
	}
	if s.metrics != nil && f != models.FailureNone {
		s.metrics.IncrementMintAttempt(string(f))
	}
	s.logger.InfoContext(ctx, "mint rejected",
		"attempt_id", attempt.ID,
		"failure", f,
		"redirect", attempt.Redirect,
	)
}

func (s *Service) persist(ctx context.Context, attempt *models.Attempt) {
	if err := s.attempts.Update(ctx, attempt); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist mint attempt",
			"attempt_id", attempt.ID,
			"state", attempt.State,
			"error", err,
		)
	}
}

func (s *Service) emit(ctx context.Context, t events.Type, attempt *models.Attempt) {
	data := map[string]string{
		"attempt_id": attempt.ID.String(),
		"name":       attempt.Name,
		"state":      string(attempt.State),
	}
	if attempt.TxHash != "" {
		data["tx_hash"] = attempt.TxHash
	}
	if attempt.Failure != models.FailureNone {
		data["failure"] = string(attempt.Failure)
	}
	s.events.Emit(ctx, events.Event{Type: t, Key: attempt.NullifierHash, Data: data})
}
