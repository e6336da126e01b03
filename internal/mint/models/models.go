package models

import (
	"time"

	"github.com/google/uuid"

	"deepname/pkg/platform/fsm"
)

// State is where a mint attempt stands.
type State string

const (
	StateLoadingRecords State = "loading_records"
	StateReady          State = "ready"
	StateMinting        State = "minting"
	StateSuccess        State = "success"
	StateError          State = "error"
)

// Transitions lists the allowed moves between attempt states.
var Transitions = fsm.Table[State]{
	StateLoadingRecords: {StateReady, StateError},
	StateReady:          {StateMinting, StateError},
	StateMinting:        {StateSuccess, StateError},
}

// Pending reports whether an attempt in s may still produce a transaction.
func (s State) Pending() bool {
	return s == StateReady || s == StateMinting
}

// Failure classifies why an attempt ended in error.
type Failure string

const (
	FailureNone           Failure = ""
	FailureMissingRecords Failure = "missing_records"
	FailureMissingField   Failure = "missing_field"
	FailureConfiguration  Failure = "configuration"
	FailureUserRejected   Failure = "user_rejected"
	FailureInsufficient   Failure = "insufficient_funds"
	FailureGasEstimation  Failure = "gas_estimation_failed"
	FailureNonceConflict  Failure = "nonce_conflict"
	FailureReverted       Failure = "reverted"
	FailureTimeout        Failure = "timeout"
	FailureUnavailable    Failure = "chain_unavailable"
)

// Attempt is one user-triggered mint.
type Attempt struct {
	ID            uuid.UUID
	Owner         string
	NullifierHash string
	Name          string
	State         State
	TxHash        string
	Failure       Failure
	Message       string
	Redirect      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewAttempt starts an attempt in loading_records.
func NewAttempt(owner string, now time.Time) *Attempt {
	return &Attempt{
		ID:        uuid.New(),
		Owner:     owner,
		State:     StateLoadingRecords,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo moves the attempt to s when the table allows it.
func (a *Attempt) TransitionTo(s State, now time.Time) error {
	if !Transitions.Allows(a.State, s) {
		return &fsm.TransitionError[State]{From: a.State, To: s}
	}
	a.State = s
	a.UpdatedAt = now
	return nil
}

// Fail moves the attempt to error with a classified failure.
func (a *Attempt) Fail(f Failure, msg string, now time.Time) error {
	if err := a.TransitionTo(StateError, now); err != nil {
		return err
	}
	a.Failure = f
	a.Message = msg
	return nil
}

// Clone returns a copy safe to hand out while the original keeps changing.
func (a *Attempt) Clone() *Attempt {
	c := *a
	return &c
}
