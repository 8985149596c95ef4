package certificate

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"credence/internal/certificate/mocks"
	"credence/internal/identity"
	"credence/internal/policy"
	"credence/internal/proof"
	"credence/internal/trust"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/keylock"
)

// CertificateServiceSuite wires real identity and trust services so gating
// reads go through the same paths production uses.
type CertificateServiceSuite struct {
	suite.Suite
	ctx    context.Context
	root   id.SubjectID
	issuer id.SubjectID
	writer id.SubjectID
	gate   *policy.Gate
	locks  *keylock.KeyLock
	trust  *trust.Service
	ids    *identity.Service
	svc    *Service

	now time.Time
}

func (s *CertificateServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.root = id.NewSubjectID()
	s.issuer = id.NewSubjectID()
	s.writer = id.NewSubjectID()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.gate = policy.Bootstrap(s.root)
	s.Require().NoError(s.gate.Grant(s.ctx, s.root, policy.CapIssuer, s.issuer))
	s.Require().NoError(s.gate.Grant(s.ctx, s.root, policy.CapScoreWriter, s.writer))
	s.Require().NoError(s.gate.Grant(s.ctx, s.root, policy.CapRegistryWriter, s.writer))

	s.locks = keylock.New()
	trustSvc, err := trust.New(trust.NewInMemoryStore(), s.gate, s.locks)
	s.Require().NoError(err)
	s.trust = trustSvc

	idSvc, err := identity.New(identity.NewInMemoryStore(), s.gate, s.locks, trustSvc.InitializerAs(s.writer))
	s.Require().NoError(err)
	s.ids = idSvc

	actor := id.NewSubjectID()
	s.Require().NoError(s.gate.Grant(s.ctx, s.root, policy.CapScoreWriter, actor))
	svc, err := New(NewInMemoryStore(), s.gate, s.locks, idSvc, trustSvc, proof.NewOpaqueChecker(), actor,
		WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
	s.svc = svc
}

func TestCertificateServiceSuite(t *testing.T) {
	suite.Run(t, new(CertificateServiceSuite))
}

var commitmentSeq byte

// newHolder registers a subject at verification level 1 and tops the score
// up to clear the global minimum.
func (s *CertificateServiceSuite) newHolder() id.SubjectID {
	holder := id.NewSubjectID()
	commitmentSeq++
	var c id.Commitment
	c[0] = commitmentSeq
	c[1] = byte(commitmentSeq >> 4)
	c[31] = 1
	s.Require().NoError(s.ids.Register(s.ctx, holder, c))
	s.Require().NoError(s.ids.UpdateVerificationStatus(s.ctx, s.writer, holder, identity.KindFace, true))
	s.Require().NoError(s.trust.Adjust(s.ctx, s.writer, holder, GlobalMinimumScore, "test top-up"))
	return holder
}

func (s *CertificateServiceSuite) score(holder id.SubjectID) int64 {
	score, err := s.trust.GetScore(s.ctx, holder)
	s.Require().NoError(err)
	return score
}

func (s *CertificateServiceSuite) TestIssue() {
	holder := s.newHolder()
	before := s.score(holder)

	certID, err := s.svc.Issue(s.ctx, s.issuer, holder, "employment", "ipfs://meta", 0, "proof-1", 0)
	s.Require().NoError(err)
	s.Equal(id.CertificateID(1), certID)

	s.Run("rewards the holder", func() {
		s.Equal(before+IssuanceReward, s.score(holder))
	})

	s.Run("certificate verifies", func() {
		valid, err := s.svc.Verify(s.ctx, certID)
		s.Require().NoError(err)
		s.True(valid)
	})

	s.Run("ids are monotonic", func() {
		next, err := s.svc.Issue(s.ctx, s.issuer, holder, "employment", "", 0, "proof-2", 0)
		s.Require().NoError(err)
		s.Equal(id.CertificateID(2), next)
	})
}

func (s *CertificateServiceSuite) TestIssueGating() {
	s.Run("requires issuer capability", func() {
		_, err := s.svc.Issue(s.ctx, id.NewSubjectID(), s.newHolder(), "t", "", 0, "p", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("requires registered holder", func() {
		_, err := s.svc.Issue(s.ctx, s.issuer, id.NewSubjectID(), "t", "", 0, "p", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeNotRegistered))
	})

	s.Run("requires minimum verification level", func() {
		holder := id.NewSubjectID()
		var c id.Commitment
		copy(c[:], strings.Repeat("q", 32))
		s.Require().NoError(s.ids.Register(s.ctx, holder, c))
		s.Require().NoError(s.trust.Adjust(s.ctx, s.writer, holder, 100, "top-up"))

		_, err := s.svc.Issue(s.ctx, s.issuer, holder, "t", "", 0, "p", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientVerificationLevel))
	})

	s.Run("requires the global minimum score", func() {
		holder := id.NewSubjectID()
		var c id.Commitment
		copy(c[:], strings.Repeat("r", 32))
		s.Require().NoError(s.ids.Register(s.ctx, holder, c))
		s.Require().NoError(s.ids.UpdateVerificationStatus(s.ctx, s.writer, holder, identity.KindFace, true))

		// Baseline 10 < global minimum 20.
		_, err := s.svc.Issue(s.ctx, s.issuer, holder, "t", "", 0, "p", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientTrustScore))
	})

	s.Run("per-certificate threshold can exceed the global one", func() {
		holder := s.newHolder()
		_, err := s.svc.Issue(s.ctx, s.issuer, holder, "t", "", 0, "p", 1000)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientTrustScore))
	})

	s.Run("rejects locked accounts", func() {
		holder := s.newHolder()
		s.Require().NoError(s.svc.LockAccount(s.ctx, s.root, holder))

		_, err := s.svc.Issue(s.ctx, s.issuer, holder, "t", "", 0, "p", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked))

		s.Require().NoError(s.svc.UnlockAccount(s.ctx, s.root, holder))
		_, err = s.svc.Issue(s.ctx, s.issuer, holder, "t", "", 0, "p", 0)
		s.NoError(err)
	})

	s.Run("rejects empty inputs", func() {
		holder := s.newHolder()
		_, err := s.svc.Issue(s.ctx, s.issuer, holder, "", "", 0, "p", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		_, err = s.svc.Issue(s.ctx, s.issuer, holder, "t", "", 0, "", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

// Gating is evaluated at issuance only. A score collapse afterwards must not
// invalidate the certificate.
func (s *CertificateServiceSuite) TestGatingAtIssuanceOnly() {
	holder := s.newHolder()
	certID, err := s.svc.Issue(s.ctx, s.issuer, holder, "t", "", 0, "p", 0)
	s.Require().NoError(err)

	s.Require().NoError(s.trust.Adjust(s.ctx, s.writer, holder, -1000, "collapse"))
	s.Negative(s.score(holder))

	valid, err := s.svc.Verify(s.ctx, certID)
	s.Require().NoError(err)
	s.True(valid)
}

func (s *CertificateServiceSuite) TestRevoke() {
	holder := s.newHolder()
	certID, err := s.svc.Issue(s.ctx, s.issuer, holder, "t", "", 0, "p", 0)
	s.Require().NoError(err)
	before := s.score(holder)

	s.Run("random actor may not revoke", func() {
		err := s.svc.Revoke(s.ctx, id.NewSubjectID(), certID, "nope")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("issuer revokes with penalty", func() {
		s.Require().NoError(s.svc.Revoke(s.ctx, s.issuer, certID, "fraud"))
		s.Equal(before-RevocationPenalty, s.score(holder))

		valid, err := s.svc.Verify(s.ctx, certID)
		s.Require().NoError(err)
		s.False(valid)
	})

	s.Run("revocation is one-way", func() {
		err := s.svc.Revoke(s.ctx, s.issuer, certID, "again")
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyRevoked))
		s.Equal(before-RevocationPenalty, s.score(holder))
	})

	s.Run("admin can revoke too", func() {
		other, err := s.svc.Issue(s.ctx, s.issuer, holder, "t", "", 0, "p", 0)
		s.Require().NoError(err)
		s.NoError(s.svc.Revoke(s.ctx, s.root, other, "admin action"))
	})
}

func (s *CertificateServiceSuite) TestTransferAlwaysFails() {
	holder := s.newHolder()
	certID, err := s.svc.Issue(s.ctx, s.issuer, holder, "t", "", 0, "p", 0)
	s.Require().NoError(err)

	err = s.svc.Transfer(s.ctx, holder, certID, id.NewSubjectID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotTransferable))

	// Even the admin cannot use the generic transfer path.
	err = s.svc.Transfer(s.ctx, s.root, certID, id.NewSubjectID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotTransferable))
}

func (s *CertificateServiceSuite) TestMigrate() {
	holder := s.newHolder()
	newHolder := s.newHolder()
	certID, err := s.svc.Issue(s.ctx, s.issuer, holder, "t", "", 0, "p", 0)
	s.Require().NoError(err)

	s.Run("requires admin", func() {
		err := s.svc.Migrate(s.ctx, s.issuer, certID, newHolder, "mp")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("moves the certificate without touching identity fields", func() {
		s.Require().NoError(s.svc.Migrate(s.ctx, s.root, certID, newHolder, "mp"))

		cert, err := s.svc.Get(s.ctx, certID)
		s.Require().NoError(err)
		s.Equal(newHolder, cert.Holder)
		s.Equal(s.issuer, cert.Issuer)
		s.Equal("p", cert.ProofHash)

		fromOld, err := s.svc.ListByHolder(s.ctx, holder)
		s.Require().NoError(err)
		s.Empty(fromOld)
	})

	s.Run("rejects deactivated targets", func() {
		s.Require().NoError(s.ids.Deactivate(s.ctx, s.root, holder, "gone"))
		err := s.svc.Migrate(s.ctx, s.root, certID, holder, "mp")
		s.True(dErrors.HasCode(err, dErrors.CodeNotRegistered))
	})
}

func (s *CertificateServiceSuite) TestExpiry() {
	holder := s.newHolder()
	certID, err := s.svc.Issue(s.ctx, s.issuer, holder, "t", "", time.Hour, "p", 0)
	s.Require().NoError(err)

	valid, err := s.svc.Verify(s.ctx, certID)
	s.Require().NoError(err)
	s.True(valid)

	s.now = s.now.Add(2 * time.Hour)
	valid, err = s.svc.Verify(s.ctx, certID)
	s.Require().NoError(err)
	s.False(valid)

	s.Run("expired certificates drop out of the valid count", func() {
		count, err := s.svc.CountValid(s.ctx, holder)
		s.Require().NoError(err)
		s.Zero(count)
	})
}

func (s *CertificateServiceSuite) TestVerifyUnknownCertificate() {
	valid, err := s.svc.Verify(s.ctx, id.CertificateID(999))
	s.Require().NoError(err)
	s.False(valid)
}

// The proof checker is an external collaborator; a rejection must surface as
// an invalid-proof error and leave no certificate behind.
func TestIssueRejectedProof(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	root := id.NewSubjectID()
	issuer := id.NewSubjectID()
	holder := id.NewSubjectID()
	gate := policy.Bootstrap(root)
	if err := gate.Grant(ctx, root, policy.CapIssuer, issuer); err != nil {
		t.Fatal(err)
	}

	mockIdentities := mocks.NewMockIdentityReader(ctrl)
	mockIdentities.EXPECT().Get(gomock.Any(), holder).Return(identity.Identity{
		Subject: holder,
		Active:  true,
		Level:   2,
	}, nil)

	mockScores := mocks.NewMockTrustLedger(ctrl)
	mockScores.EXPECT().GetScore(gomock.Any(), holder).Return(int64(50), nil)

	mockProofs := mocks.NewMockProofChecker(ctrl)
	mockProofs.EXPECT().Check(gomock.Any(), "bad-proof", holder, "certificate:t").Return(false, nil)

	svc, err := New(NewInMemoryStore(), gate, keylock.New(), mockIdentities, mockScores, mockProofs, id.NewSubjectID())
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Issue(ctx, issuer, holder, "t", "", 0, "bad-proof", 0)
	if !dErrors.HasCode(err, dErrors.CodeInvalidProof) {
		t.Fatalf("expected invalid_proof, got %v", err)
	}

	certs, err := svc.ListByHolder(ctx, holder)
	if err != nil {
		t.Fatal(err)
	}
	if len(certs) != 0 {
		t.Fatalf("expected no certificates, got %d", len(certs))
	}
}
