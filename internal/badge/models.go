package badge

import (
	"time"

	id "credence/pkg/domain"
)

// Rarity tiers order badges by scarcity; the trust-score reward for an award
// rises monotonically with rarity.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

var rarityRewards = map[Rarity]int64{
	RarityCommon:    2,
	RarityUncommon:  4,
	RarityRare:      6,
	RarityEpic:      8,
	RarityLegendary: 10,
}

func (r Rarity) Valid() bool {
	_, ok := rarityRewards[r]
	return ok
}

// Reward returns the score delta applied on award and deducted on
// revocation-for-cause.
func (r Rarity) Reward() int64 {
	return rarityRewards[r]
}

// Badge is a definition created once by an admin. BadgeType, Rarity, and
// CriteriaHash are immutable after creation; Active and ImageURL are
// operational and may change.
type Badge struct {
	ID                 id.BadgeID
	BadgeType          string
	Rarity             Rarity
	CriteriaHash       string
	RequiredTrustScore int64
	MaxSupply          uint64 // 0 = unlimited
	Transferable       bool
	ValidityPeriod     time.Duration // 0 = awards are permanent
	Active             bool
	ImageURL           string
	CurrentSupply      uint64
	CreatedAt          time.Time
}

// Award records one holder's badge. At most one award of a badge per holder
// exists, ever; a revoked award blocks re-awarding.
type Award struct {
	BadgeID      id.BadgeID
	Holder       id.SubjectID
	EarnedAt     time.Time
	ExpiresAt    time.Time // zero value = permanent
	Revoked      bool
	Reason       string
	EvidenceHash string
}

// Expired reports whether a non-permanent award's validity has lapsed.
// Expiry is computed lazily; the award stays until a sweep force-revokes it.
func (a Award) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// ActiveAt reports whether the award currently stands.
func (a Award) ActiveAt(now time.Time) bool {
	return !a.Revoked && !a.Expired(now)
}

// Criterion is one auto-award rule: the badge is granted when the holder's
// score and valid-certificate count both reach the thresholds.
type Criterion struct {
	MinScore        int64
	MinCertificates int
}

func (c Criterion) Satisfied(score int64, certCount int) bool {
	return score >= c.MinScore && certCount >= c.MinCertificates
}
