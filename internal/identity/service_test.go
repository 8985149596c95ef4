package identity

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"credence/internal/policy"
	"credence/internal/trust"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/keylock"
)

type IdentityServiceSuite struct {
	suite.Suite
	ctx    context.Context
	root   id.SubjectID
	writer id.SubjectID
	gate   *policy.Gate
	trust  *trust.Service
	svc    *Service
}

func (s *IdentityServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.root = id.NewSubjectID()
	s.writer = id.NewSubjectID()
	s.gate = policy.Bootstrap(s.root)
	s.Require().NoError(s.gate.Grant(s.ctx, s.root, policy.CapScoreWriter, s.writer))
	s.Require().NoError(s.gate.Grant(s.ctx, s.root, policy.CapRegistryWriter, s.writer))

	locks := keylock.New()
	trustSvc, err := trust.New(trust.NewInMemoryStore(), s.gate, locks)
	s.Require().NoError(err)
	s.trust = trustSvc

	svc, err := New(NewInMemoryStore(), s.gate, locks, trustSvc.InitializerAs(s.writer))
	s.Require().NoError(err)
	s.svc = svc
}

func TestIdentityServiceSuite(t *testing.T) {
	suite.Run(t, new(IdentityServiceSuite))
}

func commitmentOf(s *IdentityServiceSuite, seed string) id.Commitment {
	c, err := id.ParseCommitment(strings.Repeat(seed, 32))
	s.Require().NoError(err)
	return c
}

func (s *IdentityServiceSuite) TestRegister() {
	subject := id.NewSubjectID()

	s.Run("creates identity and baseline score", func() {
		s.Require().NoError(s.svc.Register(s.ctx, subject, commitmentOf(s, "aa")))

		registered, err := s.svc.IsRegistered(s.ctx, subject)
		s.Require().NoError(err)
		s.True(registered)

		score, err := s.trust.GetScore(s.ctx, subject)
		s.Require().NoError(err)
		s.Equal(int64(trust.BaselineScore), score)

		level, err := s.svc.GetLevel(s.ctx, subject)
		s.Require().NoError(err)
		s.Equal(0, level)
	})

	s.Run("rejects duplicate registration", func() {
		err := s.svc.Register(s.ctx, subject, commitmentOf(s, "bb"))
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyRegistered))
	})

	s.Run("rejects a consumed commitment", func() {
		err := s.svc.Register(s.ctx, id.NewSubjectID(), commitmentOf(s, "aa"))
		s.True(dErrors.HasCode(err, dErrors.CodeCommitmentReused))
	})

	s.Run("rejects nil subject and zero commitment", func() {
		s.True(dErrors.HasCode(
			s.svc.Register(s.ctx, id.NilSubject, commitmentOf(s, "cc")),
			dErrors.CodeInvalidInput))
		s.True(dErrors.HasCode(
			s.svc.Register(s.ctx, id.NewSubjectID(), id.Commitment{}),
			dErrors.CodeInvalidInput))
	})
}

func (s *IdentityServiceSuite) TestCommitmentStaysConsumedAfterDeactivation() {
	subject := id.NewSubjectID()
	commitment := commitmentOf(s, "dd")
	s.Require().NoError(s.svc.Register(s.ctx, subject, commitment))
	s.Require().NoError(s.svc.Deactivate(s.ctx, s.root, subject, "compromised"))

	err := s.svc.Register(s.ctx, id.NewSubjectID(), commitment)
	s.True(dErrors.HasCode(err, dErrors.CodeCommitmentReused))

	// The deactivated subject cannot re-register either.
	err = s.svc.Register(s.ctx, subject, commitmentOf(s, "ee"))
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyRegistered))
}

func (s *IdentityServiceSuite) TestVerificationLevelPriorityOrder() {
	subject := id.NewSubjectID()
	s.Require().NoError(s.svc.Register(s.ctx, subject, commitmentOf(s, "ab")))

	level := func() int {
		l, err := s.svc.GetLevel(s.ctx, subject)
		s.Require().NoError(err)
		return l
	}

	s.Run("income alone does not raise the level", func() {
		s.Require().NoError(s.svc.UpdateVerificationStatus(s.ctx, s.writer, subject, KindIncome, true))
		s.Equal(0, level())
	})

	s.Run("gov id without face does not raise the level", func() {
		s.Require().NoError(s.svc.UpdateVerificationStatus(s.ctx, s.writer, subject, KindGovID, true))
		s.Equal(0, level())
	})

	s.Run("face unlocks the full chain", func() {
		s.Require().NoError(s.svc.UpdateVerificationStatus(s.ctx, s.writer, subject, KindFace, true))
		s.Equal(3, level())
	})

	s.Run("clearing face drops to zero", func() {
		s.Require().NoError(s.svc.UpdateVerificationStatus(s.ctx, s.writer, subject, KindFace, false))
		s.Equal(0, level())
	})
}

func (s *IdentityServiceSuite) TestUpdateVerificationStatusAuthorization() {
	subject := id.NewSubjectID()
	s.Require().NoError(s.svc.Register(s.ctx, subject, commitmentOf(s, "ba")))

	s.Run("requires registry writer", func() {
		err := s.svc.UpdateVerificationStatus(s.ctx, id.NewSubjectID(), subject, KindFace, true)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("rejects unknown kinds", func() {
		err := s.svc.UpdateVerificationStatus(s.ctx, s.writer, subject, VerificationKind("retina"), true)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects unregistered subjects", func() {
		err := s.svc.UpdateVerificationStatus(s.ctx, s.writer, id.NewSubjectID(), KindFace, true)
		s.True(dErrors.HasCode(err, dErrors.CodeNotRegistered))
	})
}

func (s *IdentityServiceSuite) TestDeactivate() {
	subject := id.NewSubjectID()
	s.Require().NoError(s.svc.Register(s.ctx, subject, commitmentOf(s, "cd")))

	s.Run("requires registry admin", func() {
		err := s.svc.Deactivate(s.ctx, s.writer, subject, "nope")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("flips the active flag but keeps the record", func() {
		s.Require().NoError(s.svc.Deactivate(s.ctx, s.root, subject, "fraud"))

		registered, err := s.svc.IsRegistered(s.ctx, subject)
		s.Require().NoError(err)
		s.False(registered)

		// The commitment remains readable for audit purposes.
		commitment, err := s.svc.GetCommitment(s.ctx, subject)
		s.Require().NoError(err)
		s.False(commitment.IsZero())
	})

	s.Run("level reads fail for deactivated subjects", func() {
		_, err := s.svc.GetLevel(s.ctx, subject)
		s.True(dErrors.HasCode(err, dErrors.CodeNotRegistered))
	})
}
