// Package identity runs the Self identity-attribute proof flow and keeps the
// label and commitment root the mint flow needs.
package identity

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"deepname/internal/events"
	"deepname/internal/platform/metrics"
	"deepname/internal/platform/tracer"
	"deepname/internal/verification/flow"
	"deepname/internal/verification/identity/selfid"
	"deepname/internal/verification/models"
	"deepname/internal/verification/records"
	dErrors "deepname/pkg/domain-errors"
	"deepname/pkg/requestcontext"
)

// DefaultRoot stands in for a credential subject that carries no merkle root.
const DefaultRoot = "0"

// Submission is what the companion app produces.
type Submission struct {
	Proof         json.RawMessage
	PublicSignals []string
}

// ProofSource yields the companion app's submission.
type ProofSource interface {
	Obtain(ctx context.Context) (Submission, error)
}

// Verifier is the Self verification collaborator.
type Verifier interface {
	Verify(ctx context.Context, proof json.RawMessage, publicSignals []string) (*selfid.Result, error)
}

// RecordWriter stores the verified record.
type RecordWriter interface {
	PutIdentity(ctx context.Context, rec models.IdentityAttributeRecord) (models.IdentityAttributeRecord, records.WriteResult, error)
}

// StaticSubmission is a ProofSource for a submission the client already holds.
type StaticSubmission Submission

func (s StaticSubmission) Obtain(context.Context) (Submission, error) {
	return Submission(s), nil
}

// Outcome describes where the flow ended. On a rejected proof Result still
// carries the verifier's per-check details.
type Outcome struct {
	State   models.FlowState
	History []models.FlowState
	Record  models.IdentityAttributeRecord
	Result  *selfid.Result
	Write   records.WriteResult
}

type Service struct {
	verifier      Verifier
	records       RecordWriter
	userIDType    selfid.UserIDType
	requireRoot   bool
	proofTimeout  time.Duration
	verifyTimeout time.Duration
	events        events.Emitter
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        tracer.Tracer
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

func WithTimeouts(proof, verify time.Duration) Option {
	return func(s *Service) {
		if proof > 0 {
			s.proofTimeout = proof
		}
		if verify > 0 {
			s.verifyTimeout = verify
		}
	}
}

// WithRequireRoot makes a credential subject without merkle_root a failure
// instead of defaulting the root to DefaultRoot.
func WithRequireRoot(require bool) Option {
	return func(s *Service) { s.requireRoot = require }
}

func New(v Verifier, rw RecordWriter, userIDType selfid.UserIDType, opts ...Option) *Service {
	s := &Service{
		verifier:      v,
		records:       rw,
		userIDType:    userIDType,
		proofTimeout:  2 * time.Minute,
		verifyTimeout: 20 * time.Second,
		events:        events.Discard{},
		logger:        slog.Default(),
		tracer:        tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Verify(ctx context.Context, src ProofSource) (out *Outcome, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanIdentityVerify,
		tracer.String(tracer.AttrKind, models.KindIdentity.String()),
	)
	defer func() { span.End(err) }()

	tr := flow.Start(models.KindIdentity, s.logger, s.metrics)
	out = &Outcome{}
	defer func() {
		out.State = tr.State()
		out.History = tr.History()
		span.SetAttributes(tracer.String(tracer.AttrState, out.State.String()))
	}()

	if src == nil {
		return out, tr.Fail(ctx, dErrors.New(dErrors.CodeBadRequest, "proof source is required"))
	}
	if err := tr.Advance(ctx, models.FlowAwaitingExternalProof); err != nil {
		return out, err
	}
	sub, err := s.obtain(ctx, src)
	if err != nil {
		return out, tr.Fail(ctx, err)
	}
	if err := validateSubmission(sub); err != nil {
		return out, tr.Fail(ctx, err)
	}
	userID, err := selfid.UserIdentifier(sub.PublicSignals, s.userIDType)
	if err != nil {
		return out, tr.Fail(ctx, dErrors.NewWithDetail(dErrors.CodeValidation, "public signals carry no usable user identifier", err.Error()))
	}

	if err := tr.Advance(ctx, models.FlowAwaitingServerVerification); err != nil {
		return out, err
	}
	result, err := s.verify(ctx, tr, sub)
	if err != nil {
		return out, tr.Fail(ctx, err)
	}
	out.Result = result
	if !result.Valid {
		return out, tr.Fail(ctx, dErrors.NewWithDetail(dErrors.CodeProofInvalid, "Verification failed", strings.Join(result.FailedChecks(), ",")))
	}

	root, ok := result.CredentialSubject.MerkleRoot()
	if !ok {
		if s.requireRoot {
			return out, tr.Fail(ctx, dErrors.NewWithDetail(dErrors.CodeMissingField, "credential subject has no merkle_root", "merkle_root"))
		}
		s.logger.WarnContext(ctx, "credential subject has no merkle_root, using default",
			"default_root", DefaultRoot,
			"request_id", requestcontext.RequestID(ctx),
		)
		root = DefaultRoot
	}

	rec, write, err := s.records.PutIdentity(ctx, models.IdentityAttributeRecord{
		Label:          result.CredentialSubject.Label(),
		RootCommitment: root,
		SubjectID:      userID,
	})
	if err != nil {
		return out, tr.Fail(ctx, err)
	}
	out.Record, out.Write = rec, write

	if err := tr.Succeed(ctx); err != nil {
		return out, err
	}
	s.logger.InfoContext(ctx, "identity proof verified",
		"subject", tracer.HashIdentifier(userID),
		"label_words", len(strings.Fields(rec.Label)),
		"write", write,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.events.Emit(ctx, events.Event{
		Type: events.IdentityVerified,
		Key:  userID,
		Data: map[string]string{
			"subject_id": userID,
			"write":      string(write),
		},
	})
	return out, nil
}

func (s *Service) obtain(ctx context.Context, src ProofSource) (Submission, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.proofTimeout)
	defer cancel()
	return src.Obtain(stepCtx)
}

func (s *Service) verify(ctx context.Context, tr *flow.Tracker, sub Submission) (*selfid.Result, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()
	stepCtx, span := s.tracer.Start(stepCtx, tracer.SpanSelfCall)

	start := time.Now()
	result, err := s.verifier.Verify(stepCtx, sub.Proof, sub.PublicSignals)
	tr.ObserveCall(start)
	span.End(err)
	return result, err
}

func validateSubmission(sub Submission) error {
	proof := strings.TrimSpace(string(sub.Proof))
	if proof == "" || proof == "null" {
		return dErrors.NewWithDetail(dErrors.CodeMissingField, "proof is required", "proof")
	}
	if len(sub.PublicSignals) == 0 {
		return dErrors.NewWithDetail(dErrors.CodeMissingField, "publicSignals is required", "publicSignals")
	}
	return nil
}
