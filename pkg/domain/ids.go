package domain

import (
	"github.com/google/uuid"

	dErrors "credence/pkg/domain-errors"
)

// SubjectID identifies a holder, issuer, or arbitrator. All actors in the
// registry share one identifier space; capabilities, not types, distinguish
// what an actor may do.
type SubjectID uuid.UUID

// CertificateID is allocated monotonically at issuance and never reused.
type CertificateID uint64

// BadgeID identifies a badge definition, not an individual award.
type BadgeID uint64

// DisputeID identifies a dispute case.
type DisputeID uint64

var NilSubject = SubjectID(uuid.Nil)

func (id SubjectID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id SubjectID) String() string {
	return uuid.UUID(id).String()
}

// ParseSubjectID validates the invariant that IDs must be valid, non-empty,
// non-nil UUIDs. Enforced at trust boundaries so internal code can assume it.
func ParseSubjectID(s string) (SubjectID, error) {
	if s == "" {
		return NilSubject, dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return NilSubject, dErrors.Wrap(err, dErrors.CodeInvalidInput, "subject id is not a valid UUID")
	}
	if u == uuid.Nil {
		return NilSubject, dErrors.New(dErrors.CodeInvalidInput, "subject id must not be the nil UUID")
	}
	return SubjectID(u), nil
}

// NewSubjectID mints a random subject identifier. Used by tests and by the
// bootstrap path; external callers normally arrive with their own.
func NewSubjectID() SubjectID {
	return SubjectID(uuid.New())
}
