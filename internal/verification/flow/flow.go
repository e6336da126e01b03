// Package flow tracks one proof verification attempt through its states and
// turns whatever stopped it into a domain error.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"deepname/internal/platform/metrics"
	"deepname/internal/verification/models"
	"deepname/internal/verification/verifier"
	dErrors "deepname/pkg/domain-errors"
	"deepname/pkg/platform/fsm"
	"deepname/pkg/requestcontext"
)

// Tracker wraps the state machine of a single attempt.
type Tracker struct {
	kind    models.Kind
	machine *fsm.Machine[models.FlowState]
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Start returns a tracker in the idle state. metrics may be nil.
func Start(kind models.Kind, logger *slog.Logger, m *metrics.Metrics) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		kind:    kind,
		machine: models.NewFlow(),
		logger:  logger,
		metrics: m,
	}
}

func (t *Tracker) State() models.FlowState {
	return t.machine.Current()
}

func (t *Tracker) History() []models.FlowState {
	return t.machine.History()
}

// Advance moves to the next non-terminal state.
func (t *Tracker) Advance(ctx context.Context, to models.FlowState) error {
	if err := t.machine.Transition(to); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "invalid verification flow transition")
	}
	t.logger.DebugContext(ctx, "verification flow advanced",
		"kind", t.kind,
		"state", to,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// Succeed ends the flow verified.
func (t *Tracker) Succeed(ctx context.Context) error {
	if err := t.Advance(ctx, models.FlowVerified); err != nil {
		return err
	}
	t.count(models.FlowVerified)
	return nil
}

// Fail ends the flow failed, or cancelled when ctx (the caller's context, not
// a step context) was cancelled. It returns err as a domain error.
func (t *Tracker) Fail(ctx context.Context, err error) error {
	target := models.FlowFailed
	if errors.Is(ctx.Err(), context.Canceled) {
		target = models.FlowCancelled
	}
	from := t.machine.Current()
	if terr := t.machine.Transition(target); terr != nil {
		t.logger.ErrorContext(ctx, "verification flow could not record failure",
			"kind", t.kind,
			"state", from,
			"error", terr,
		)
	}

	translated := Translate(t.kind, err)
	if target == models.FlowCancelled {
		translated = &dErrors.Error{Code: dErrors.CodeCancelled, Message: "verification cancelled", Detail: "cancelled", Err: err}
	}
	t.logger.WarnContext(ctx, "verification flow failed",
		"kind", t.kind,
		"state", target,
		"failed_in", from,
		"code", dErrors.CodeOf(translated),
		"detail", dErrors.DetailOf(translated),
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	t.count(target)
	return translated
}

// ObserveCall records how long a collaborator call took.
func (t *Tracker) ObserveCall(start time.Time) {
	if t.metrics != nil {
		t.metrics.ObserveVerifierLatency(t.kind.String(), time.Since(start).Seconds())
	}
}

func (t *Tracker) count(state models.FlowState) {
	if t.metrics != nil {
		t.metrics.IncrementVerification(t.kind.String(), state.String())
	}
}

// Translate maps a collaborator or step error onto the domain taxonomy.
// Domain errors pass through unchanged.
func Translate(kind models.Kind, err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}

	var ve *verifier.Error
	if errors.As(err, &ve) {
		switch ve.Category {
		case verifier.CategoryProofInvalid:
			return dErrors.NewWithDetail(dErrors.CodeProofInvalid, ve.Message, ve.Detail)
		case verifier.CategoryTimeout:
			return dErrors.NewWithDetail(dErrors.CodeTimeout, kind.String()+" verifier timed out", string(ve.Category))
		case verifier.CategoryAuthentication:
			return dErrors.NewWithDetail(dErrors.CodeConfiguration, kind.String()+" verifier refused our credentials", string(ve.Category))
		default:
			return dErrors.NewWithDetail(dErrors.CodeUnavailable, kind.String()+" verifier unavailable", string(ve.Category))
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.NewWithDetail(dErrors.CodeTimeout, kind.String()+" proof timed out", "timeout")
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, kind.String()+" proof provider failed")
}
