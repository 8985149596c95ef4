// Package domainerrors carries typed error codes across layer boundaries.
// Services wrap infrastructure errors (see pkg/platform/sentinel) into coded
// errors; the HTTP layer translates codes into status responses.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code names a rejection reason. Every failed operation surfaces exactly one
// code so callers can branch without string matching.
type Code string

const (
	// Authorization and input.
	CodeUnauthorized Code = "unauthorized"
	CodeInvalidInput Code = "invalid_input"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal"

	// Identity preconditions.
	CodeNotRegistered     Code = "not_registered"
	CodeAlreadyRegistered Code = "already_registered"
	CodeCommitmentReused  Code = "commitment_reused"

	// Gating failures.
	CodeInsufficientTrustScore        Code = "insufficient_trust_score"
	CodeInsufficientVerificationLevel Code = "insufficient_verification_level"
	CodeInvalidProof                  Code = "invalid_proof"
	CodeAccountLocked                 Code = "account_locked"

	// Certificate / badge lifecycle misuse.
	CodeAlreadyRevoked  Code = "already_revoked"
	CodeNotTransferable Code = "not_transferable"
	CodeSupplyExhausted Code = "supply_exhausted"

	// Dispute misuse.
	CodeAlreadyVoted            Code = "already_voted"
	CodeNotPanelMember          Code = "not_panel_member"
	CodeReviewClosed            Code = "review_closed"
	CodeInsufficientBond        Code = "insufficient_bond"
	CodeInsufficientArbitrators Code = "insufficient_arbitrators"
)

// Error pairs a code with a human-readable message and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err yields
// nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not originate in domain logic.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code onto the HTTP status the transport layer should
// return. Unknown codes map to 500 so nothing leaks as accidental success.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeInvalidInput, CodeInsufficientBond:
		return http.StatusBadRequest
	case CodeNotFound, CodeNotRegistered:
		return http.StatusNotFound
	case CodeConflict, CodeAlreadyRegistered, CodeCommitmentReused,
		CodeAlreadyRevoked, CodeAlreadyVoted, CodeSupplyExhausted:
		return http.StatusConflict
	case CodeInsufficientTrustScore, CodeInsufficientVerificationLevel,
		CodeInvalidProof, CodeAccountLocked, CodeNotTransferable,
		CodeNotPanelMember, CodeReviewClosed, CodeInsufficientArbitrators:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
