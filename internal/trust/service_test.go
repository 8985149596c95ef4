package trust

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"credence/internal/policy"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/keylock"
)

type TrustServiceSuite struct {
	suite.Suite
	ctx    context.Context
	root   id.SubjectID
	writer id.SubjectID
	svc    *Service
}

func (s *TrustServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.root = id.NewSubjectID()
	s.writer = id.NewSubjectID()
	gate := policy.Bootstrap(s.root)
	s.Require().NoError(gate.Grant(s.ctx, s.root, policy.CapScoreWriter, s.writer))

	svc, err := New(NewInMemoryStore(), gate, keylock.New())
	s.Require().NoError(err)
	s.svc = svc
}

func TestTrustServiceSuite(t *testing.T) {
	suite.Run(t, new(TrustServiceSuite))
}

func (s *TrustServiceSuite) TestInitialize() {
	subject := id.NewSubjectID()

	s.Run("requires score writer", func() {
		err := s.svc.Initialize(s.ctx, id.NewSubjectID(), subject)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("sets the baseline", func() {
		s.Require().NoError(s.svc.Initialize(s.ctx, s.writer, subject))
		score, err := s.svc.GetScore(s.ctx, subject)
		s.Require().NoError(err)
		s.Equal(int64(BaselineScore), score)
	})

	s.Run("rejects double initialization", func() {
		err := s.svc.Initialize(s.ctx, s.writer, subject)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *TrustServiceSuite) TestAdjust() {
	subject := id.NewSubjectID()
	s.Require().NoError(s.svc.Initialize(s.ctx, s.writer, subject))

	s.Run("requires score writer", func() {
		err := s.svc.Adjust(s.ctx, id.NewSubjectID(), subject, 5, "nope")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("applies signed deltas", func() {
		s.Require().NoError(s.svc.Adjust(s.ctx, s.writer, subject, 15, "verification"))
		score, err := s.svc.GetScore(s.ctx, subject)
		s.Require().NoError(err)
		s.Equal(int64(BaselineScore+15), score)
	})

	s.Run("has no floor and can go negative", func() {
		s.Require().NoError(s.svc.Adjust(s.ctx, s.writer, subject, -100, "penalties"))
		score, err := s.svc.GetScore(s.ctx, subject)
		s.Require().NoError(err)
		s.Equal(int64(BaselineScore+15-100), score)
		s.Negative(score)
	})

	s.Run("rejects subjects without a score", func() {
		err := s.svc.Adjust(s.ctx, s.writer, id.NewSubjectID(), 1, "nope")
		s.True(dErrors.HasCode(err, dErrors.CodeNotRegistered))
	})
}

func (s *TrustServiceSuite) TestGetScoreUnknownSubject() {
	_, err := s.svc.GetScore(s.ctx, id.NewSubjectID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotRegistered))
}

// Concurrent deltas must all land; the store adjustment is atomic under the
// subject's key lock.
func (s *TrustServiceSuite) TestConcurrentAdjustments() {
	subject := id.NewSubjectID()
	s.Require().NoError(s.svc.Initialize(s.ctx, s.writer, subject))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(s.svc.Adjust(s.ctx, s.writer, subject, 1, "concurrent"))
		}()
	}
	wg.Wait()

	score, err := s.svc.GetScore(s.ctx, subject)
	s.Require().NoError(err)
	s.Equal(int64(BaselineScore+50), score)
}
