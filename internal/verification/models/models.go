package models

import (
	"encoding/json"
	"time"

	"deepname/pkg/platform/fsm"
)

// Kind names a verification record slot. The store keeps at most one record
// per kind.
type Kind string

const (
	KindHumanity Kind = "humanity"
	KindIdentity Kind = "identity"
)

func (k Kind) String() string { return string(k) }

// IsValid reports whether k is one of the known record kinds.
func (k Kind) IsValid() bool {
	return k == KindHumanity || k == KindIdentity
}

// Kinds lists every record kind in the order the mint flow loads them.
func Kinds() []Kind {
	return []Kind{KindHumanity, KindIdentity}
}

// HumanityProofRecord is the compact result of a successful World ID verification.
type HumanityProofRecord struct {
	Root          string    `json:"root"`
	NullifierHash string    `json:"nullifierHash"`
	Proof         []string  `json:"proof"`
	Timestamp     time.Time `json:"timestamp"`
}

// IdentityAttributeRecord is the compact result of a successful Self verification.
type IdentityAttributeRecord struct {
	Label          string    `json:"label"`
	RootCommitment string    `json:"self_root"`
	SubjectID      string    `json:"userId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Entry is the untyped form the store backends persist. StoredAt decides
// last-write-wins ordering.
type Entry struct {
	Kind     Kind
	Payload  json.RawMessage
	StoredAt time.Time
}

// FlowState is the lifecycle of a single proof verification attempt.
type FlowState string

const (
	FlowIdle                       FlowState = "idle"
	FlowAwaitingExternalProof      FlowState = "awaiting_external_proof"
	FlowAwaitingServerVerification FlowState = "awaiting_server_verification"
	FlowVerified                   FlowState = "verified"
	FlowFailed                     FlowState = "failed"
	FlowCancelled                  FlowState = "cancelled"
)

// FlowTransitions is shared by the humanity and identity flows.
var FlowTransitions = fsm.Table[FlowState]{
	FlowIdle:                       {FlowAwaitingExternalProof, FlowFailed, FlowCancelled},
	FlowAwaitingExternalProof:      {FlowAwaitingServerVerification, FlowFailed, FlowCancelled},
	FlowAwaitingServerVerification: {FlowVerified, FlowFailed, FlowCancelled},
}

func (s FlowState) String() string { return string(s) }

// CanTransitionTo checks if a transition from the current state to the target is valid.
func (s FlowState) CanTransitionTo(target FlowState) bool {
	return FlowTransitions.Allows(s, target)
}

// IsTerminal reports whether the flow has finished.
func (s FlowState) IsTerminal() bool {
	return FlowTransitions.IsTerminal(s)
}

// NewFlow starts a verification flow machine in the idle state.
func NewFlow() *fsm.Machine[FlowState] {
	return fsm.New(FlowTransitions, FlowIdle)
}
