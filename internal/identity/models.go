package identity

import (
	"time"

	id "credence/pkg/domain"
)

// VerificationKind names one of the three independent checks a holder can
// pass. The internal mechanics of each check live with external verification
// managers; the registry only records the outcome.
type VerificationKind string

const (
	KindFace   VerificationKind = "face"
	KindGovID  VerificationKind = "gov_id"
	KindIncome VerificationKind = "income"
)

func (k VerificationKind) Valid() bool {
	switch k {
	case KindFace, KindGovID, KindIncome:
		return true
	}
	return false
}

// Identity binds a subject to a commitment and tracks which verifications
// have passed. Records are never physically deleted; deactivation flips
// Active so audit history survives.
type Identity struct {
	Subject        id.SubjectID
	Commitment     id.Commitment
	RegisteredAt   time.Time
	Active         bool
	FaceVerified   bool
	GovIDVerified  bool
	IncomeVerified bool
	Level          int
}

// Verified reports whether the flag for kind is set.
func (i Identity) Verified(kind VerificationKind) bool {
	switch kind {
	case KindFace:
		return i.FaceVerified
	case KindGovID:
		return i.GovIDVerified
	case KindIncome:
		return i.IncomeVerified
	}
	return false
}

// ComputeLevel derives the verification level in fixed priority order:
// face, then government ID, then income. Income alone never raises the
// level; each tier requires every tier below it.
func (i Identity) ComputeLevel() int {
	level := 0
	if i.FaceVerified {
		level = 1
		if i.GovIDVerified {
			level = 2
			if i.IncomeVerified {
				level = 3
			}
		}
	}
	return level
}
