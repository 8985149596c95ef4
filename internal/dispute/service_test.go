package dispute

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"credence/internal/platform/config"
	"credence/internal/policy"
	"credence/internal/trust"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/keylock"
)

// recordingSlasher captures slash calls for assertions.
type recordingSlasher struct {
	subjects []id.SubjectID
	reasons  []string
}

func (r *recordingSlasher) Slash(ctx context.Context, subject id.SubjectID, reason string) error {
	r.subjects = append(r.subjects, subject)
	r.reasons = append(r.reasons, reason)
	return nil
}

type DisputeServiceSuite struct {
	suite.Suite
	ctx    context.Context
	root   id.SubjectID
	writer id.SubjectID
	trust  *trust.Service
	escrow *InMemoryEscrow
	slash  *recordingSlasher
	svc    *Service

	arbitrators []id.SubjectID
	now         time.Time
}

func (s *DisputeServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.root = id.NewSubjectID()
	s.writer = id.NewSubjectID()
	s.now = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	gate := policy.Bootstrap(s.root)
	s.Require().NoError(gate.Grant(s.ctx, s.root, policy.CapScoreWriter, s.writer))

	locks := keylock.New()
	trustSvc, err := trust.New(trust.NewInMemoryStore(), gate, locks)
	s.Require().NoError(err)
	s.trust = trustSvc

	actor := id.NewSubjectID()
	s.Require().NoError(gate.Grant(s.ctx, s.root, policy.CapScoreWriter, actor))

	s.escrow = NewInMemoryEscrow()
	s.slash = &recordingSlasher{}
	svc, err := New(NewInMemoryStore(), s.escrow, gate, locks, trustSvc, s.slash,
		config.DisputeConfig{MinimumBond: 10, PanelSize: 3, ReviewPeriod: 72 * time.Hour},
		actor,
		WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
	s.svc = svc

	s.arbitrators = nil
	for range 5 {
		arb := id.NewSubjectID()
		s.Require().NoError(s.svc.AddArbitrator(s.ctx, s.root, arb))
		s.arbitrators = append(s.arbitrators, arb)
	}
}

func TestDisputeServiceSuite(t *testing.T) {
	suite.Run(t, new(DisputeServiceSuite))
}

func (s *DisputeServiceSuite) newParty() id.SubjectID {
	subject := id.NewSubjectID()
	s.Require().NoError(s.trust.Initialize(s.ctx, s.writer, subject))
	return subject
}

func (s *DisputeServiceSuite) score(subject id.SubjectID) int64 {
	score, err := s.trust.GetScore(s.ctx, subject)
	s.Require().NoError(err)
	return score
}

func (s *DisputeServiceSuite) open(challenger, respondent id.SubjectID) id.DisputeID {
	disputeID, err := s.svc.Create(s.ctx, challenger, respondent, "credential", "fake cert", "", "", 10)
	s.Require().NoError(err)
	return disputeID
}

// vote casts ballots from the assigned panel in order.
func (s *DisputeServiceSuite) vote(disputeID id.DisputeID, ballots ...bool) {
	dispute, err := s.svc.Get(s.ctx, disputeID)
	s.Require().NoError(err)
	s.Require().LessOrEqual(len(ballots), len(dispute.Panel))
	for i, inFavor := range ballots {
		s.Require().NoError(s.svc.Vote(s.ctx, dispute.Panel[i], disputeID, inFavor))
	}
}

func (s *DisputeServiceSuite) TestRoster() {
	s.Run("requires admin", func() {
		err := s.svc.AddArbitrator(s.ctx, id.NewSubjectID(), id.NewSubjectID())
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("rejects duplicates", func() {
		err := s.svc.AddArbitrator(s.ctx, s.root, s.arbitrators[0])
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("remove shrinks the roster", func() {
		s.Require().NoError(s.svc.RemoveArbitrator(s.ctx, s.root, s.arbitrators[0]))
		s.Len(s.svc.Arbitrators(), 4)
		s.NotContains(s.svc.Arbitrators(), s.arbitrators[0])
	})

	s.Run("remove of a stranger fails", func() {
		err := s.svc.RemoveArbitrator(s.ctx, s.root, id.NewSubjectID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *DisputeServiceSuite) TestCreate() {
	challenger := s.newParty()
	respondent := s.newParty()

	s.Run("rejects a bond below the minimum", func() {
		_, err := s.svc.Create(s.ctx, challenger, respondent, "k", "t", "", "", 9)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientBond))
	})

	s.Run("rejects self-disputes", func() {
		_, err := s.svc.Create(s.ctx, challenger, challenger, "k", "t", "", "", 10)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("escrows the bond and assigns a panel", func() {
		disputeID := s.open(challenger, respondent)

		held, err := s.escrow.Held(s.ctx, disputeID)
		s.Require().NoError(err)
		s.Equal(int64(10), held)

		dispute, err := s.svc.Get(s.ctx, disputeID)
		s.Require().NoError(err)
		s.Equal(StatusUnderReview, dispute.Status)
		s.Len(dispute.Panel, 3)
		s.Equal(s.now.Add(72*time.Hour), dispute.ReviewDeadline)
	})

	s.Run("lists the dispute for both parties", func() {
		forChallenger, err := s.svc.ListByParty(s.ctx, challenger)
		s.Require().NoError(err)
		forRespondent, err := s.svc.ListByParty(s.ctx, respondent)
		s.Require().NoError(err)
		s.Equal(forChallenger, forRespondent)
		s.Len(forChallenger, 1)
	})
}

func (s *DisputeServiceSuite) TestPanelExcludesParties() {
	// Shrink the eligible pool to exactly the panel size so the panel is
	// forced to consist of everyone except the parties.
	challenger := s.arbitrators[0]
	respondent := s.arbitrators[1]
	s.Require().NoError(s.trust.Initialize(s.ctx, s.writer, challenger))
	s.Require().NoError(s.trust.Initialize(s.ctx, s.writer, respondent))

	disputeID := s.open(challenger, respondent)
	dispute, err := s.svc.Get(s.ctx, disputeID)
	s.Require().NoError(err)
	s.ElementsMatch(s.arbitrators[2:], dispute.Panel)
}

func (s *DisputeServiceSuite) TestInsufficientArbitrators() {
	for _, arb := range s.arbitrators[:3] {
		s.Require().NoError(s.svc.RemoveArbitrator(s.ctx, s.root, arb))
	}
	_, err := s.svc.Create(s.ctx, s.newParty(), s.newParty(), "k", "t", "", "", 10)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientArbitrators))
}

func (s *DisputeServiceSuite) TestVoteValidation() {
	challenger := s.newParty()
	respondent := s.newParty()
	disputeID := s.open(challenger, respondent)
	dispute, err := s.svc.Get(s.ctx, disputeID)
	s.Require().NoError(err)

	s.Run("rejects non-panel members", func() {
		err := s.svc.Vote(s.ctx, id.NewSubjectID(), disputeID, true)
		s.True(dErrors.HasCode(err, dErrors.CodeNotPanelMember))
	})

	s.Run("rejects double votes", func() {
		s.Require().NoError(s.svc.Vote(s.ctx, dispute.Panel[0], disputeID, true))
		err := s.svc.Vote(s.ctx, dispute.Panel[0], disputeID, false)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyVoted))
	})

	s.Run("rejects votes after the deadline", func() {
		s.now = s.now.Add(73 * time.Hour)
		err := s.svc.Vote(s.ctx, dispute.Panel[1], disputeID, true)
		s.True(dErrors.HasCode(err, dErrors.CodeReviewClosed))
	})
}

func (s *DisputeServiceSuite) TestChallengerWins() {
	challenger := s.newParty()
	respondent := s.newParty()
	challengerBefore := s.score(challenger)
	respondentBefore := s.score(respondent)

	disputeID := s.open(challenger, respondent)
	s.vote(disputeID, true, true, false)

	dispute, err := s.svc.Get(s.ctx, disputeID)
	s.Require().NoError(err)
	s.Equal(StatusResolved, dispute.Status)
	s.True(dispute.ChallengerWon)

	s.Run("settlement deltas", func() {
		s.Equal(challengerBefore+ChallengerWinReward, s.score(challenger))
		s.Equal(respondentBefore-RespondentLossPenalty, s.score(respondent))
	})

	s.Run("respondent is slashed", func() {
		s.Equal([]id.SubjectID{respondent}, s.slash.subjects)
		s.Equal([]string{"Lost dispute"}, s.slash.reasons)
	})

	s.Run("bond left escrow", func() {
		held, err := s.escrow.Held(s.ctx, disputeID)
		s.Require().NoError(err)
		s.Zero(held)
	})
}

func (s *DisputeServiceSuite) TestRespondentWins() {
	challenger := s.newParty()
	respondent := s.newParty()
	challengerBefore := s.score(challenger)
	respondentBefore := s.score(respondent)

	disputeID := s.open(challenger, respondent)
	s.vote(disputeID, false, false, true)

	dispute, err := s.svc.Get(s.ctx, disputeID)
	s.Require().NoError(err)
	s.False(dispute.ChallengerWon)
	s.Equal(challengerBefore-ChallengerLossPenalty, s.score(challenger))
	s.Equal(respondentBefore+RespondentWinReward, s.score(respondent))
	s.Empty(s.slash.subjects)
}

// A tie is not a challenger win; the strict majority requirement protects
// the respondent.
func (s *DisputeServiceSuite) TestTieFavorsRespondent() {
	challenger := s.newParty()
	respondent := s.newParty()
	challengerBefore := s.score(challenger)
	respondentBefore := s.score(respondent)

	disputeID := s.open(challenger, respondent)
	s.vote(disputeID, true, false)

	// Two of three voted; settle by deadline.
	s.now = s.now.Add(73 * time.Hour)
	s.Require().NoError(s.svc.Resolve(s.ctx, disputeID))

	dispute, err := s.svc.Get(s.ctx, disputeID)
	s.Require().NoError(err)
	s.False(dispute.ChallengerWon)
	s.Equal(challengerBefore-ChallengerLossPenalty, s.score(challenger))
	s.Equal(respondentBefore+RespondentWinReward, s.score(respondent))
}

func (s *DisputeServiceSuite) TestResolveTiming() {
	challenger := s.newParty()
	respondent := s.newParty()
	disputeID := s.open(challenger, respondent)

	s.Run("premature resolution fails", func() {
		err := s.svc.Resolve(s.ctx, disputeID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("full tally settles immediately", func() {
		s.vote(disputeID, true, true, true)
		dispute, err := s.svc.Get(s.ctx, disputeID)
		s.Require().NoError(err)
		s.Equal(StatusResolved, dispute.Status)
	})

	s.Run("settlement is one-time", func() {
		err := s.svc.Resolve(s.ctx, disputeID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("no votes land after settlement", func() {
		dispute, err := s.svc.Get(s.ctx, disputeID)
		s.Require().NoError(err)
		err = s.svc.Vote(s.ctx, dispute.Panel[0], disputeID, false)
		s.True(dErrors.HasCode(err, dErrors.CodeReviewClosed))
	})
}

func (s *DisputeServiceSuite) TestDeadlineResolutionWithNoVotes() {
	challenger := s.newParty()
	respondent := s.newParty()
	challengerBefore := s.score(challenger)

	disputeID := s.open(challenger, respondent)
	s.now = s.now.Add(73 * time.Hour)
	s.Require().NoError(s.svc.Resolve(s.ctx, disputeID))

	// Zero votes is a tie; the respondent prevails.
	dispute, err := s.svc.Get(s.ctx, disputeID)
	s.Require().NoError(err)
	s.False(dispute.ChallengerWon)
	s.Equal(challengerBefore-ChallengerLossPenalty, s.score(challenger))
}

func (s *DisputeServiceSuite) TestGetUnknownDispute() {
	_, err := s.svc.Get(s.ctx, id.DisputeID(404))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
