package verification

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"credence/internal/identity"
	"credence/internal/policy"
	"credence/internal/trust"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/keylock"
)

type ManagerSuite struct {
	suite.Suite
	ctx     context.Context
	subject id.SubjectID
	trust   *trust.Service
	ids     *identity.Service
	mgr     *Manager
}

func (s *ManagerSuite) SetupTest() {
	s.ctx = context.Background()
	root := id.NewSubjectID()
	actor := id.NewSubjectID()

	gate := policy.Bootstrap(root)
	s.Require().NoError(gate.Grant(s.ctx, root, policy.CapScoreWriter, actor))
	s.Require().NoError(gate.Grant(s.ctx, root, policy.CapRegistryWriter, actor))

	locks := keylock.New()
	trustSvc, err := trust.New(trust.NewInMemoryStore(), gate, locks)
	s.Require().NoError(err)
	s.trust = trustSvc

	idSvc, err := identity.New(identity.NewInMemoryStore(), gate, locks, trustSvc.InitializerAs(actor))
	s.Require().NoError(err)
	s.ids = idSvc

	mgr, err := New(idSvc, trustSvc, actor)
	s.Require().NoError(err)
	s.mgr = mgr

	s.subject = id.NewSubjectID()
	commitment, err := id.ParseCommitment(strings.Repeat("fe", 32))
	s.Require().NoError(err)
	s.Require().NoError(idSvc.Register(s.ctx, s.subject, commitment))
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) score() int64 {
	score, err := s.trust.GetScore(s.ctx, s.subject)
	s.Require().NoError(err)
	return score
}

func (s *ManagerSuite) TestRewardPerKind() {
	cases := []struct {
		kind   identity.VerificationKind
		reward int64
	}{
		{identity.KindFace, FaceReward},
		{identity.KindGovID, GovIDReward},
		{identity.KindIncome, IncomeReward},
	}
	for _, tc := range cases {
		before := s.score()
		s.Require().NoError(s.mgr.SubmitResult(s.ctx, s.subject, tc.kind, true))
		s.Equal(before+tc.reward, s.score(), "kind %s", tc.kind)
	}
}

// A repeated success for an already verified kind must not pay twice.
func (s *ManagerSuite) TestRewardIsOneTime() {
	s.Require().NoError(s.mgr.SubmitResult(s.ctx, s.subject, identity.KindFace, true))
	after := s.score()

	s.Require().NoError(s.mgr.SubmitResult(s.ctx, s.subject, identity.KindFace, true))
	s.Equal(after, s.score())
}

func (s *ManagerSuite) TestFailureClearsWithoutPenalty() {
	s.Require().NoError(s.mgr.SubmitResult(s.ctx, s.subject, identity.KindFace, true))
	after := s.score()

	s.Require().NoError(s.mgr.SubmitResult(s.ctx, s.subject, identity.KindFace, false))
	s.Equal(after, s.score())

	level, err := s.ids.GetLevel(s.ctx, s.subject)
	s.Require().NoError(err)
	s.Zero(level)

	s.Run("a retry pays again after the flag was cleared", func() {
		s.Require().NoError(s.mgr.SubmitResult(s.ctx, s.subject, identity.KindFace, true))
		s.Equal(after+FaceReward, s.score())
	})
}

func (s *ManagerSuite) TestInvalidKind() {
	err := s.mgr.SubmitResult(s.ctx, s.subject, identity.VerificationKind("retina"), true)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ManagerSuite) TestUnregisteredSubject() {
	err := s.mgr.SubmitResult(s.ctx, id.NewSubjectID(), identity.KindFace, true)
	s.True(dErrors.HasCode(err, dErrors.CodeNotRegistered))
}
