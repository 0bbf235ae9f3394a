package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores (ledger, session
// registry, offline queue, replay guard) return these, optionally wrapped,
// so services can translate them into coded domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in the store
// - ErrConflict: unique-key collision the caller cannot resolve
// - ErrExpired: token or queue entry past its validity window
// - ErrAlreadyUsed: single-use resource (check-in nonce) already consumed
// - ErrInvalidState: entity in the wrong state for the requested transition
// - ErrUnavailable: backing service temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
