package dispute

import (
	"time"

	id "credence/pkg/domain"
)

// Status tracks a dispute's lifecycle. Panel assignment happens inside
// creation, so Pending is instantaneous and external observers only ever see
// UnderReview and the terminal states. Rejected and Appealed exist in the
// data model but no transition reaches them yet.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusResolved    Status = "resolved"
	StatusRejected    Status = "rejected"
	StatusAppealed    Status = "appealed"
)

// Vote records one arbitrator's ballot. Each panel member votes at most once.
type Vote struct {
	Arbitrator id.SubjectID
	InFavor    bool // true = in favor of the challenger
	CastAt     time.Time
}

// Dispute is a bonded, arbitrator-voted challenge against a respondent's
// credential or behavior claim.
type Dispute struct {
	ID             id.DisputeID
	Challenger     id.SubjectID
	Respondent     id.SubjectID
	Kind           string
	Title          string
	Description    string
	EvidenceRef    string
	Bond           int64
	CreatedAt      time.Time
	ReviewDeadline time.Time
	Status         Status
	Panel          []id.SubjectID
	Votes          []Vote
	VotesFor       int
	VotesAgainst   int
	ChallengerWon  bool
}

// OnPanel reports whether subject was assigned to this dispute's panel.
func (d Dispute) OnPanel(subject id.SubjectID) bool {
	for _, member := range d.Panel {
		if member == subject {
			return true
		}
	}
	return false
}

// HasVoted reports whether subject already cast a ballot.
func (d Dispute) HasVoted(subject id.SubjectID) bool {
	for _, vote := range d.Votes {
		if vote.Arbitrator == subject {
			return true
		}
	}
	return false
}
