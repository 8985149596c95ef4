package badge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"credence/internal/policy"
	"credence/internal/trust"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/keylock"
)

// staticCounter is a fixed-count stand-in for the certificate ledger.
type staticCounter struct{ count int }

func (c staticCounter) CountValid(ctx context.Context, holder id.SubjectID) (int, error) {
	return c.count, nil
}

type BadgeServiceSuite struct {
	suite.Suite
	ctx    context.Context
	root   id.SubjectID
	minter id.SubjectID
	writer id.SubjectID
	gate   *policy.Gate
	trust  *trust.Service
	svc    *Service
	certs  *staticCounter

	now time.Time
}

func (s *BadgeServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.root = id.NewSubjectID()
	s.minter = id.NewSubjectID()
	s.writer = id.NewSubjectID()
	s.now = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	s.gate = policy.Bootstrap(s.root)
	s.Require().NoError(s.gate.Grant(s.ctx, s.root, policy.CapBadgeMinter, s.minter))
	s.Require().NoError(s.gate.Grant(s.ctx, s.root, policy.CapScoreWriter, s.writer))

	locks := keylock.New()
	trustSvc, err := trust.New(trust.NewInMemoryStore(), s.gate, locks)
	s.Require().NoError(err)
	s.trust = trustSvc

	actor := id.NewSubjectID()
	s.Require().NoError(s.gate.Grant(s.ctx, s.root, policy.CapScoreWriter, actor))
	s.certs = &staticCounter{}
	svc, err := New(NewInMemoryStore(), s.gate, locks, trustSvc, s.certs, actor,
		WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
	s.svc = svc
}

func TestBadgeServiceSuite(t *testing.T) {
	suite.Run(t, new(BadgeServiceSuite))
}

func (s *BadgeServiceSuite) newHolder() id.SubjectID {
	holder := id.NewSubjectID()
	s.Require().NoError(s.trust.Initialize(s.ctx, s.writer, holder))
	return holder
}

func (s *BadgeServiceSuite) score(holder id.SubjectID) int64 {
	score, err := s.trust.GetScore(s.ctx, holder)
	s.Require().NoError(err)
	return score
}

func (s *BadgeServiceSuite) createBadge(badge Badge, criterion *Criterion) id.BadgeID {
	badgeID, err := s.svc.CreateBadge(s.ctx, s.root, badge, criterion)
	s.Require().NoError(err)
	return badgeID
}

func (s *BadgeServiceSuite) TestCreateBadge() {
	s.Run("requires admin", func() {
		_, err := s.svc.CreateBadge(s.ctx, s.minter, Badge{BadgeType: "t", Rarity: RarityCommon}, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("rejects unknown rarity", func() {
		_, err := s.svc.CreateBadge(s.ctx, s.root, Badge{BadgeType: "t", Rarity: Rarity("mythic")}, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects empty type", func() {
		_, err := s.svc.CreateBadge(s.ctx, s.root, Badge{Rarity: RarityCommon}, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("starts active with zero supply", func() {
		badgeID := s.createBadge(Badge{BadgeType: "t", Rarity: RarityRare}, nil)
		badge, err := s.svc.GetBadge(s.ctx, badgeID)
		s.Require().NoError(err)
		s.True(badge.Active)
		s.Zero(badge.CurrentSupply)
	})
}

func (s *BadgeServiceSuite) TestAwardRewardsScaleWithRarity() {
	holder := s.newHolder()
	expected := map[Rarity]int64{
		RarityCommon:    2,
		RarityUncommon:  4,
		RarityRare:      6,
		RarityEpic:      8,
		RarityLegendary: 10,
	}

	for rarity, reward := range expected {
		badgeID := s.createBadge(Badge{BadgeType: "tier-" + string(rarity), Rarity: rarity}, nil)
		before := s.score(holder)
		s.Require().NoError(s.svc.Award(s.ctx, s.minter, badgeID, holder, "earned", ""))
		s.Equal(before+reward, s.score(holder), "rarity %s", rarity)
	}
}

func (s *BadgeServiceSuite) TestAwardGating() {
	badgeID := s.createBadge(Badge{BadgeType: "t", Rarity: RarityCommon}, nil)
	holder := s.newHolder()

	s.Run("requires minter capability", func() {
		err := s.svc.Award(s.ctx, id.NewSubjectID(), badgeID, holder, "r", "")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown badge", func() {
		err := s.svc.Award(s.ctx, s.minter, id.BadgeID(999), holder, "r", "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("inactive badge cannot be awarded", func() {
		s.Require().NoError(s.svc.SetBadgeActive(s.ctx, s.root, badgeID, false))
		err := s.svc.Award(s.ctx, s.minter, badgeID, holder, "r", "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		s.Require().NoError(s.svc.SetBadgeActive(s.ctx, s.root, badgeID, true))
	})

	s.Run("required score gates the award", func() {
		gated := s.createBadge(Badge{BadgeType: "elite", Rarity: RarityEpic, RequiredTrustScore: 100}, nil)
		err := s.svc.Award(s.ctx, s.minter, gated, holder, "r", "")
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientTrustScore))

		s.Require().NoError(s.trust.Adjust(s.ctx, s.writer, holder, 100, "top-up"))
		s.NoError(s.svc.Award(s.ctx, s.minter, gated, holder, "r", ""))
	})
}

func (s *BadgeServiceSuite) TestSupplyExhaustion() {
	badgeID := s.createBadge(Badge{BadgeType: "limited", Rarity: RarityCommon, MaxSupply: 2}, nil)

	s.Require().NoError(s.svc.Award(s.ctx, s.minter, badgeID, s.newHolder(), "r", ""))
	s.Require().NoError(s.svc.Award(s.ctx, s.minter, badgeID, s.newHolder(), "r", ""))

	err := s.svc.Award(s.ctx, s.minter, badgeID, s.newHolder(), "r", "")
	s.True(dErrors.HasCode(err, dErrors.CodeSupplyExhausted))

	badge, err := s.svc.GetBadge(s.ctx, badgeID)
	s.Require().NoError(err)
	s.Equal(uint64(2), badge.CurrentSupply)
}

// One award per holder per badge, ever. Revocation does not reopen the slot.
func (s *BadgeServiceSuite) TestNoReAward() {
	badgeID := s.createBadge(Badge{BadgeType: "t", Rarity: RarityCommon}, nil)
	holder := s.newHolder()
	s.Require().NoError(s.svc.Award(s.ctx, s.minter, badgeID, holder, "r", ""))

	err := s.svc.Award(s.ctx, s.minter, badgeID, holder, "again", "")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	s.Require().NoError(s.svc.Revoke(s.ctx, s.root, badgeID, holder, "cause"))
	err = s.svc.Award(s.ctx, s.minter, badgeID, holder, "after revoke", "")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *BadgeServiceSuite) TestTransfer() {
	transferable := s.createBadge(Badge{BadgeType: "guild", Rarity: RarityRare, Transferable: true}, nil)
	bound := s.createBadge(Badge{BadgeType: "kyc", Rarity: RarityRare}, nil)
	holder := s.newHolder()
	recipient := s.newHolder()
	s.Require().NoError(s.svc.Award(s.ctx, s.minter, transferable, holder, "r", ""))
	s.Require().NoError(s.svc.Award(s.ctx, s.minter, bound, holder, "r", ""))

	s.Run("bound badges refuse", func() {
		err := s.svc.Transfer(s.ctx, holder, bound, recipient)
		s.True(dErrors.HasCode(err, dErrors.CodeNotTransferable))
	})

	s.Run("rejects self-transfer", func() {
		err := s.svc.Transfer(s.ctx, holder, transferable, holder)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("moves the award without touching scores", func() {
		holderBefore, recipientBefore := s.score(holder), s.score(recipient)
		s.Require().NoError(s.svc.Transfer(s.ctx, holder, transferable, recipient))

		awards, err := s.svc.ListAwards(s.ctx, recipient)
		s.Require().NoError(err)
		s.Require().Len(awards, 1)
		s.False(awards[0].Revoked)

		old, err := s.svc.ListAwards(s.ctx, holder)
		s.Require().NoError(err)
		s.Require().Len(old, 2)
		for _, award := range old {
			if award.BadgeID == transferable {
				s.True(award.Revoked)
				s.Equal("transferred", award.Reason)
			}
		}

		s.Equal(holderBefore, s.score(holder))
		s.Equal(recipientBefore, s.score(recipient))
	})

	s.Run("source cannot transfer twice", func() {
		err := s.svc.Transfer(s.ctx, holder, transferable, s.newHolder())
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyRevoked))
	})

	s.Run("a past holder cannot receive it back", func() {
		err := s.svc.Transfer(s.ctx, recipient, transferable, holder)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *BadgeServiceSuite) TestRevoke() {
	badgeID := s.createBadge(Badge{BadgeType: "t", Rarity: RarityEpic}, nil)
	holder := s.newHolder()
	s.Require().NoError(s.svc.Award(s.ctx, s.minter, badgeID, holder, "r", ""))
	before := s.score(holder)

	s.Run("requires admin", func() {
		err := s.svc.Revoke(s.ctx, s.minter, badgeID, holder, "nope")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("deducts the rarity reward", func() {
		s.Require().NoError(s.svc.Revoke(s.ctx, s.root, badgeID, holder, "cause"))
		s.Equal(before-RarityEpic.Reward(), s.score(holder))
	})

	s.Run("is one-way", func() {
		err := s.svc.Revoke(s.ctx, s.root, badgeID, holder, "again")
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyRevoked))
	})
}

func (s *BadgeServiceSuite) TestExpiryIsNeutral() {
	badgeID := s.createBadge(Badge{BadgeType: "seasonal", Rarity: RarityRare, ValidityPeriod: time.Hour}, nil)
	holder := s.newHolder()
	s.Require().NoError(s.svc.Award(s.ctx, s.minter, badgeID, holder, "r", ""))
	afterAward := s.score(holder)

	s.now = s.now.Add(2 * time.Hour)
	swept, err := s.svc.SweepExpired(s.ctx, []id.SubjectID{holder})
	s.Require().NoError(err)
	s.Equal(1, swept)

	// Unlike revocation for cause, expiry costs the holder nothing.
	s.Equal(afterAward, s.score(holder))

	awards, err := s.svc.ListAwards(s.ctx, holder)
	s.Require().NoError(err)
	s.Require().Len(awards, 1)
	s.True(awards[0].Revoked)
	s.Equal("expired", awards[0].Reason)

	s.Run("second sweep finds nothing", func() {
		swept, err := s.svc.SweepExpired(s.ctx, []id.SubjectID{holder})
		s.Require().NoError(err)
		s.Zero(swept)
	})
}

func (s *BadgeServiceSuite) TestRenew() {
	badgeID := s.createBadge(Badge{BadgeType: "seasonal", Rarity: RarityCommon, ValidityPeriod: time.Hour}, nil)
	holder := s.newHolder()
	s.Require().NoError(s.svc.Award(s.ctx, s.minter, badgeID, holder, "r", ""))

	s.Run("extends from now", func() {
		s.now = s.now.Add(30 * time.Minute)
		s.Require().NoError(s.svc.Renew(s.ctx, s.minter, badgeID, holder))

		awards, err := s.svc.ListAwards(s.ctx, holder)
		s.Require().NoError(err)
		s.Require().Len(awards, 1)
		s.Equal(s.now.Add(time.Hour), awards[0].ExpiresAt)
	})

	s.Run("permanent awards cannot be renewed", func() {
		permanent := s.createBadge(Badge{BadgeType: "forever", Rarity: RarityCommon}, nil)
		s.Require().NoError(s.svc.Award(s.ctx, s.minter, permanent, holder, "r", ""))
		err := s.svc.Renew(s.ctx, s.minter, permanent, holder)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("revoked awards cannot be renewed", func() {
		s.Require().NoError(s.svc.Revoke(s.ctx, s.root, badgeID, holder, "cause"))
		err := s.svc.Renew(s.ctx, s.minter, badgeID, holder)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyRevoked))
	})
}

func (s *BadgeServiceSuite) TestAutoAwardByCriteria() {
	low := s.createBadge(Badge{BadgeType: "starter", Rarity: RarityCommon},
		&Criterion{MinScore: 10})
	high := s.createBadge(Badge{BadgeType: "veteran", Rarity: RarityRare},
		&Criterion{MinScore: 50, MinCertificates: 3})

	holder := s.newHolder()

	s.Run("awards only the satisfied rules", func() {
		awarded, err := s.svc.AutoAwardByCriteria(s.ctx, holder)
		s.Require().NoError(err)
		s.Equal([]id.BadgeID{low}, awarded)
	})

	s.Run("is idempotent", func() {
		awarded, err := s.svc.AutoAwardByCriteria(s.ctx, holder)
		s.Require().NoError(err)
		s.Empty(awarded)
	})

	s.Run("a crossed threshold awards the next badge once", func() {
		s.Require().NoError(s.trust.Adjust(s.ctx, s.writer, holder, 50, "milestone"))
		s.certs.count = 3

		awarded, err := s.svc.AutoAwardByCriteria(s.ctx, holder)
		s.Require().NoError(err)
		s.Equal([]id.BadgeID{high}, awarded)

		awarded, err = s.svc.AutoAwardByCriteria(s.ctx, holder)
		s.Require().NoError(err)
		s.Empty(awarded)
	})
}

func (s *BadgeServiceSuite) TestUpdateImageURL() {
	badgeID := s.createBadge(Badge{BadgeType: "t", Rarity: RarityCommon, ImageURL: "ipfs://old"}, nil)

	s.Run("requires admin", func() {
		err := s.svc.UpdateImageURL(s.ctx, s.minter, badgeID, "ipfs://new")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("replaces the url", func() {
		s.Require().NoError(s.svc.UpdateImageURL(s.ctx, s.root, badgeID, "ipfs://new"))
		badge, err := s.svc.GetBadge(s.ctx, badgeID)
		s.Require().NoError(err)
		s.Equal("ipfs://new", badge.ImageURL)
	})
}
