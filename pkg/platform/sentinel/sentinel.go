package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and clients return these
// (optionally wrapped) so services can translate them into domain errors once.
//
//   - ErrNotFound: entity does not exist in store
//   - ErrSuperseded: a write lost to a record stamped later
//   - ErrConflict: a competing operation already holds the resource
//   - ErrExpired: nonce/session/artifact has expired
//   - ErrAlreadyUsed: single-use value (nonce) already consumed
//   - ErrUnavailable: dependency temporarily unavailable
var (
	ErrNotFound    = errors.New("not found")
	ErrSuperseded  = errors.New("superseded by newer record")
	ErrConflict    = errors.New("conflict")
	ErrExpired     = errors.New("expired")
	ErrAlreadyUsed = errors.New("already used")
	ErrUnavailable = errors.New("unavailable")
)
