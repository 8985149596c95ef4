package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into coded domain errors.
//
// These represent factual states about stored records, not rule violations:
// - ErrNotFound: record does not exist in the store
// - ErrConflict: a uniqueness constraint would be violated
// - ErrInvalidState: record in wrong state for the requested write
// - ErrUnavailable: backing store temporarily unreachable
//
// For rule violations (gating, authorization, lifecycle misuse) use
// pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
