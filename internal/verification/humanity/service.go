// Package humanity runs the World ID proof flow: obtain the proof, have the
// cloud verifier accept it, and keep the compact record the mint flow reads.
package humanity

import (
	"context"
	"log/slog"
	"time"

	"deepname/internal/events"
	"deepname/internal/platform/metrics"
	"deepname/internal/platform/tracer"
	"deepname/internal/verification/flow"
	"deepname/internal/verification/humanity/worldid"
	"deepname/internal/verification/models"
	"deepname/internal/verification/records"
	dErrors "deepname/pkg/domain-errors"
	"deepname/pkg/requestcontext"
)

// ProofSource produces a proof bound to action and signal. Over HTTP the
// proof was already generated by the user's World ID app.
type ProofSource interface {
	Obtain(ctx context.Context, action, signal string) (worldid.Proof, error)
}

// Verifier is the World ID cloud verification collaborator.
type Verifier interface {
	Verify(ctx context.Context, proof worldid.Proof, action, signal string) (*worldid.Result, error)
}

// RecordWriter stores the verified record.
type RecordWriter interface {
	PutHumanity(ctx context.Context, rec models.HumanityProofRecord) (models.HumanityProofRecord, records.WriteResult, error)
}

// StaticProof is a ProofSource for a proof the client already holds.
type StaticProof worldid.Proof

func (p StaticProof) Obtain(context.Context, string, string) (worldid.Proof, error) {
	return worldid.Proof(p), nil
}

type Request struct {
	Source ProofSource
	// Action defaults to the configured action; any other value is rejected.
	Action string
	Signal string
}

// Outcome describes where the flow ended. It is returned on failure too.
type Outcome struct {
	State   models.FlowState
	History []models.FlowState
	Record  models.HumanityProofRecord
	Result  *worldid.Result
	Write   records.WriteResult
}

type Service struct {
	verifier      Verifier
	records       RecordWriter
	action        string
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

// WithTimeouts bounds the proof wait and the verifier call.
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

func New(v Verifier, rw RecordWriter, action string, opts ...Option) *Service {
	s := &Service{
		verifier:      v,
		records:       rw,
		action:        action,
		proofTimeout:  2 * time.Minute,
		verifyTimeout: 15 * time.Second,
		events:        events.Discard{},
		logger:        slog.Default(),
		tracer:        tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Action is the identifier proofs must be bound to.
func (s *Service) Action() string {
	return s.action
}

// Verify runs the flow once. There is no retry: a failed attempt is re-run
// by the user.
func (s *Service) Verify(ctx context.Context, req Request) (out *Outcome, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanHumanityVerify,
		tracer.String(tracer.AttrKind, models.KindHumanity.String()),
		tracer.Bool("signal_bound", req.Signal != ""),
	)
	defer func() { span.End(err) }()

	tr := flow.Start(models.KindHumanity, s.logger, s.metrics)
	out = &Outcome{}
	defer func() {
		out.State = tr.State()
		out.History = tr.History()
		span.SetAttributes(tracer.String(tracer.AttrState, out.State.String()))
	}()

	action := req.Action
	if action == "" {
		action = s.action
	}
	if action != s.action {
		return out, tr.Fail(ctx, dErrors.NewWithDetail(dErrors.CodeValidation, "proof is bound to an unexpected action", "action_mismatch"))
	}
	if req.Source == nil {
		return out, tr.Fail(ctx, dErrors.New(dErrors.CodeBadRequest, "proof source is required"))
	}

	if err := tr.Advance(ctx, models.FlowAwaitingExternalProof); err != nil {
		return out, err
	}
	proof, err := s.obtain(ctx, req.Source, action, req.Signal)
	if err != nil {
		return out, tr.Fail(ctx, err)
	}
	if err := validateProof(proof); err != nil {
		return out, tr.Fail(ctx, err)
	}

	if err := tr.Advance(ctx, models.FlowAwaitingServerVerification); err != nil {
		return out, err
	}
	result, err := s.verify(ctx, tr, proof, action, req.Signal)
	if err != nil {
		return out, tr.Fail(ctx, err)
	}
	out.Result = result

	rec, write, err := s.records.PutHumanity(ctx, models.HumanityProofRecord{
		Root:          proof.MerkleRoot,
		NullifierHash: proof.NullifierHash,
		Proof:         []string{proof.Proof},
	})
	if err != nil {
		return out, tr.Fail(ctx, err)
	}
	out.Record, out.Write = rec, write

	if err := tr.Succeed(ctx); err != nil {
		return out, err
	}
	s.logger.InfoContext(ctx, "humanity proof verified",
		"nullifier_hash", tracer.HashIdentifier(proof.NullifierHash),
		"verification_level", proof.VerificationLevel,
		"write", write,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.events.Emit(ctx, events.Event{
		Type: events.HumanityVerified,
		Key:  proof.NullifierHash,
		Data: map[string]string{
			"nullifier_hash":     proof.NullifierHash,
			"verification_level": proof.VerificationLevel,
			"write":              string(write),
		},
	})
	return out, nil
}

func (s *Service) obtain(ctx context.Context, src ProofSource, action, signal string) (worldid.Proof, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.proofTimeout)
	defer cancel()
	return src.Obtain(stepCtx, action, signal)
}

func (s *Service) verify(ctx context.Context, tr *flow.Tracker, proof worldid.Proof, action, signal string) (*worldid.Result, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()
	stepCtx, span := s.tracer.Start(stepCtx, tracer.SpanWorldIDCall)

	start := time.Now()
	result, err := s.verifier.Verify(stepCtx, proof, action, signal)
	tr.ObserveCall(start)
	span.End(err)
	return result, err
}

func validateProof(p worldid.Proof) error {
	switch {
	case p.MerkleRoot == "":
		return dErrors.NewWithDetail(dErrors.CodeMissingField, "merkle_root is required", "merkle_root")
	case p.NullifierHash == "":
		return dErrors.NewWithDetail(dErrors.CodeMissingField, "nullifier_hash is required", "nullifier_hash")
	case p.Proof == "":
		return dErrors.NewWithDetail(dErrors.CodeMissingField, "proof is required", "proof")
	}
	return nil
}
