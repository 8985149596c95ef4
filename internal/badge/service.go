package badge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"credence/internal/platform/metrics"
	"credence/internal/policy"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/audit"
	"credence/pkg/platform/keylock"
	"credence/pkg/platform/sentinel"
)

// TrustLedger is the gating oracle plus the rarity-scaled reward writer.
type TrustLedger interface {
	GetScore(ctx context.Context, subject id.SubjectID) (int64, error)
	AdjustLocked(ctx context.Context, actor, subject id.SubjectID, delta int64, reason string) error
}

// CertificateCounter reports valid certificate counts for auto-award rules.
type CertificateCounter interface {
	CountValid(ctx context.Context, holder id.SubjectID) (int, error)
}

// AuditPublisher emits audit events for committed badge transitions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the badge engine: admin-defined badges, capability-gated
// awards, lazy expiry, and criteria-driven automation.
type Service struct {
	store  Store
	gate   *policy.Gate
	locks  *keylock.KeyLock
	scores TrustLedger
	certs  CertificateCounter
	actor  id.SubjectID

	criteriaMu sync.RWMutex
	criteria   map[id.BadgeID]Criterion

	logger    *slog.Logger
	publisher AuditPublisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, gate *policy.Gate, locks *keylock.KeyLock, scores TrustLedger, certs CertificateCounter, actor id.SubjectID, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("badge store is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("policy gate is required")
	}
	if locks == nil {
		return nil, fmt.Errorf("key lock is required")
	}
	if scores == nil {
		return nil, fmt.Errorf("trust ledger is required")
	}
	if certs == nil {
		return nil, fmt.Errorf("certificate counter is required")
	}

	svc := &Service{
		store:    store,
		gate:     gate,
		locks:    locks,
		scores:   scores,
		certs:    certs,
		criteria: make(map[id.BadgeID]Criterion),
		actor:    actor,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateBadge stores a new definition. Admin only. The criterion, when
// given, enters the auto-award table keyed by the new badge ID.
func (s *Service) CreateBadge(ctx context.Context, actor id.SubjectID, badge Badge, criterion *Criterion) (id.BadgeID, error) {
	if err := s.gate.Require(policy.CapRegistryAdmin, actor); err != nil {
		return 0, err
	}
	if badge.BadgeType == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "badge type is required")
	}
	if !badge.Rarity.Valid() {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "unknown rarity %q", badge.Rarity)
	}

	badge.Active = true
	badge.CurrentSupply = 0
	badge.CreatedAt = s.now()

	badgeID, err := s.store.CreateBadge(ctx, badge)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store badge")
	}
	if criterion != nil {
		s.criteriaMu.Lock()
		s.criteria[badgeID] = *criterion
		s.criteriaMu.Unlock()
	}

	s.emit(ctx, audit.Event{
		Action:   string(audit.EventBadgeCreated),
		Decision: badge.BadgeType,
		Reason:   string(badge.Rarity),
		ActorID:  actor.String(),
		BadgeID:  badgeID,
	})
	return badgeID, nil
}

// Award grants badgeID to recipient. Minter capability required.
func (s *Service) Award(ctx context.Context, minter id.SubjectID, badgeID id.BadgeID, recipient id.SubjectID, reason, evidenceHash string) error {
	if err := s.gate.Require(policy.CapBadgeMinter, minter); err != nil {
		return err
	}

	unlock := s.locks.Lock(recipient)
	defer unlock()

	return s.awardLocked(ctx, minter, badgeID, recipient, reason, evidenceHash)
}

// awardLocked performs the award inside the recipient's critical section so
// the gating score read and the reward write are one atomic unit.
func (s *Service) awardLocked(ctx context.Context, actor id.SubjectID, badgeID id.BadgeID, recipient id.SubjectID, reason, evidenceHash string) error {
	badge, err := s.getBadge(ctx, badgeID)
	if err != nil {
		return err
	}
	if !badge.Active {
		return dErrors.Newf(dErrors.CodeInvalidInput, "badge %d is not active", badgeID)
	}
	if badge.MaxSupply > 0 && badge.CurrentSupply >= badge.MaxSupply {
		return dErrors.Newf(dErrors.CodeSupplyExhausted, "badge %d supply exhausted", badgeID)
	}

	// One award per holder per badge, ever: a revoked or expired award
	// blocks re-awarding unless that flow is built explicitly.
	if _, err := s.store.GetAward(ctx, badgeID, recipient); err == nil {
		return dErrors.Newf(dErrors.CodeConflict, "subject %s already earned badge %d", recipient, badgeID)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up award")
	}

	score, err := s.scores.GetScore(ctx, recipient)
	if err != nil {
		return err
	}
	if score < badge.RequiredTrustScore {
		return dErrors.Newf(dErrors.CodeInsufficientTrustScore,
			"recipient score %d below required %d", score, badge.RequiredTrustScore)
	}

	earnedAt := s.now()
	var expiresAt time.Time
	if badge.ValidityPeriod > 0 {
		expiresAt = earnedAt.Add(badge.ValidityPeriod)
	}

	if err := s.store.PutAward(ctx, Award{
		BadgeID:      badgeID,
		Holder:       recipient,
		EarnedAt:     earnedAt,
		ExpiresAt:    expiresAt,
		Reason:       reason,
		EvidenceHash: evidenceHash,
	}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store award")
	}

	badge.CurrentSupply++
	if err := s.store.UpdateBadge(ctx, badge); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update badge supply")
	}

	reward := badge.Rarity.Reward()
	if err := s.scores.AdjustLocked(ctx, s.actor, recipient, reward, "badge awarded"); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.BadgesAwarded.Inc()
	}
	s.emit(ctx, audit.Event{
		Subject:    recipient,
		Action:     string(audit.EventBadgeAwarded),
		Decision:   badge.BadgeType,
		Reason:     reason,
		ActorID:    actor.String(),
		BadgeID:    badgeID,
		ScoreDelta: reward,
	})
	return nil
}

// Revoke marks an award revoked for cause and deducts the rarity-scaled
// reward. Admin only; one-way.
func (s *Service) Revoke(ctx context.Context, actor id.SubjectID, badgeID id.BadgeID, holder id.SubjectID, reason string) error {
	if err := s.gate.Require(policy.CapRegistryAdmin, actor); err != nil {
		return err
	}

	unlock := s.locks.Lock(holder)
	defer unlock()

	award, badge, err := s.getAwardAndBadge(ctx, badgeID, holder)
	if err != nil {
		return err
	}
	if award.Revoked {
		return dErrors.Newf(dErrors.CodeAlreadyRevoked, "badge %d already revoked for %s", badgeID, holder)
	}

	award.Revoked = true
	award.Reason = reason
	if err := s.store.PutAward(ctx, award); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke award")
	}

	penalty := badge.Rarity.Reward()
	if err := s.scores.AdjustLocked(ctx, s.actor, holder, -penalty, "badge revoked"); err != nil {
		return err
	}

	s.emit(ctx, audit.Event{
		Subject:    holder,
		Action:     string(audit.EventBadgeRevoked),
		Reason:     reason,
		ActorID:    actor.String(),
		BadgeID:    badgeID,
		ScoreDelta: -penalty,
	})
	return nil
}

// Transfer moves the caller's active award to a new holder. Only badges
// defined with Transferable set support it; everything else is bound to the
// holder and fails the way certificates do. The validity window carries over
// unchanged and trust rewards stay where they were earned.
func (s *Service) Transfer(ctx context.Context, holder id.SubjectID, badgeID id.BadgeID, to id.SubjectID) error {
	if to.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "recipient is required")
	}
	if holder == to {
		return dErrors.New(dErrors.CodeInvalidInput, "cannot transfer a badge to oneself")
	}

	unlock := s.locks.LockAll(holder, to)
	defer unlock()

	award, badge, err := s.getAwardAndBadge(ctx, badgeID, holder)
	if err != nil {
		return err
	}
	if !badge.Transferable {
		return dErrors.Newf(dErrors.CodeNotTransferable, "badge %d is bound to its holder", badgeID)
	}
	if award.Revoked {
		return dErrors.Newf(dErrors.CodeAlreadyRevoked, "badge %d revoked for %s", badgeID, holder)
	}
	if award.Expired(s.now()) {
		return dErrors.Newf(dErrors.CodeInvalidInput, "badge %d award has expired", badgeID)
	}

	// The once-ever rule applies to the recipient too.
	if _, err := s.store.GetAward(ctx, badgeID, to); err == nil {
		return dErrors.Newf(dErrors.CodeConflict, "subject %s already earned badge %d", to, badgeID)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up award")
	}

	award.Revoked = true
	award.Reason = "transferred"
	if err := s.store.PutAward(ctx, award); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to close source award")
	}
	if err := s.store.PutAward(ctx, Award{
		BadgeID:      badgeID,
		Holder:       to,
		EarnedAt:     award.EarnedAt,
		ExpiresAt:    award.ExpiresAt,
		Reason:       "transfer",
		EvidenceHash: award.EvidenceHash,
	}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store transferred award")
	}

	s.emit(ctx, audit.Event{
		Subject: to,
		Action:  string(audit.EventBadgeTransferred),
		ActorID: holder.String(),
		BadgeID: badgeID,
	})
	return nil
}

// Renew extends a non-permanent, non-revoked award by the badge's validity
// period from now. Minter only.
func (s *Service) Renew(ctx context.Context, minter id.SubjectID, badgeID id.BadgeID, holder id.SubjectID) error {
	if err := s.gate.Require(policy.CapBadgeMinter, minter); err != nil {
		return err
	}

	unlock := s.locks.Lock(holder)
	defer unlock()

	award, badge, err := s.getAwardAndBadge(ctx, badgeID, holder)
	if err != nil {
		return err
	}
	if award.Revoked {
		return dErrors.Newf(dErrors.CodeAlreadyRevoked, "badge %d revoked for %s", badgeID, holder)
	}
	if badge.ValidityPeriod == 0 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "badge %d awards are permanent", badgeID)
	}

	award.ExpiresAt = s.now().Add(badge.ValidityPeriod)
	if err := s.store.PutAward(ctx, award); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to renew award")
	}

	s.emit(ctx, audit.Event{
		Subject: holder,
		Action:  string(audit.EventBadgeRenewed),
		ActorID: minter.String(),
		BadgeID: badgeID,
	})
	return nil
}

// SweepExpired force-revokes lapsed awards for the given holders. Callable
// by anyone. Expiry is neutral: no trust-score penalty, unlike Revoke.
func (s *Service) SweepExpired(ctx context.Context, holders []id.SubjectID) (int, error) {
	swept := 0
	for _, holder := range holders {
		n, err := s.sweepHolder(ctx, holder)
		if err != nil {
			return swept, err
		}
		swept += n
	}
	return swept, nil
}

func (s *Service) sweepHolder(ctx context.Context, holder id.SubjectID) (int, error) {
	unlock := s.locks.Lock(holder)
	defer unlock()

	awards, err := s.store.ListAwardsByHolder(ctx, holder)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list awards")
	}

	now := s.now()
	swept := 0
	for _, award := range awards {
		if award.Revoked || !award.Expired(now) {
			continue
		}
		award.Revoked = true
		award.Reason = "expired"
		if err := s.store.PutAward(ctx, award); err != nil {
			return swept, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sweep award")
		}
		swept++
		s.emit(ctx, audit.Event{
			Subject: holder,
			Action:  string(audit.EventBadgeExpired),
			BadgeID: award.BadgeID,
		})
	}
	return swept, nil
}

// AutoAwardByCriteria grants every badge whose criterion the holder newly
// satisfies. Idempotent: badges already earned are skipped, so re-running
// after a milestone awards each badge exactly once.
func (s *Service) AutoAwardByCriteria(ctx context.Context, holder id.SubjectID) ([]id.BadgeID, error) {
	unlock := s.locks.Lock(holder)
	defer unlock()

	score, err := s.scores.GetScore(ctx, holder)
	if err != nil {
		return nil, err
	}
	certCount, err := s.certs.CountValid(ctx, holder)
	if err != nil {
		return nil, err
	}

	s.criteriaMu.RLock()
	criteria := make(map[id.BadgeID]Criterion, len(s.criteria))
	for badgeID, criterion := range s.criteria {
		criteria[badgeID] = criterion
	}
	s.criteriaMu.RUnlock()

	var awarded []id.BadgeID
	for badgeID, criterion := range criteria {
		if !criterion.Satisfied(score, certCount) {
			continue
		}
		if _, err := s.store.GetAward(ctx, badgeID, holder); err == nil {
			continue // already earned
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return awarded, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up award")
		}
		if err := s.awardLocked(ctx, s.actor, badgeID, holder, "auto-award", ""); err != nil {
			// Gating can legitimately reject (supply, score moved by an
			// earlier award in this pass); skip, do not abort the pass.
			if dErrors.CodeOf(err) == dErrors.CodeInternal {
				return awarded, err
			}
			continue
		}
		awarded = append(awarded, badgeID)
	}
	return awarded, nil
}

// SetBadgeActive flips the operational active flag. Admin only.
func (s *Service) SetBadgeActive(ctx context.Context, actor id.SubjectID, badgeID id.BadgeID, active bool) error {
	return s.updateBadge(ctx, actor, badgeID, func(b *Badge) { b.Active = active })
}

// UpdateImageURL changes the mutable presentation URL. Admin only.
func (s *Service) UpdateImageURL(ctx context.Context, actor id.SubjectID, badgeID id.BadgeID, url string) error {
	return s.updateBadge(ctx, actor, badgeID, func(b *Badge) { b.ImageURL = url })
}

func (s *Service) updateBadge(ctx context.Context, actor id.SubjectID, badgeID id.BadgeID, mutate func(*Badge)) error {
	if err := s.gate.Require(policy.CapRegistryAdmin, actor); err != nil {
		return err
	}
	badge, err := s.getBadge(ctx, badgeID)
	if err != nil {
		return err
	}
	mutate(&badge)
	if err := s.store.UpdateBadge(ctx, badge); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update badge")
	}
	return nil
}

// GetBadge returns a definition by ID.
func (s *Service) GetBadge(ctx context.Context, badgeID id.BadgeID) (Badge, error) {
	return s.getBadge(ctx, badgeID)
}

// ListAwards returns every award the holder has, revoked included.
func (s *Service) ListAwards(ctx context.Context, holder id.SubjectID) ([]Award, error) {
	awards, err := s.store.ListAwardsByHolder(ctx, holder)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list awards")
	}
	return awards, nil
}

func (s *Service) getBadge(ctx context.Context, badgeID id.BadgeID) (Badge, error) {
	badge, err := s.store.GetBadge(ctx, badgeID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Badge{}, dErrors.Newf(dErrors.CodeNotFound, "badge %d not found", badgeID)
	}
	if err != nil {
		return Badge{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read badge")
	}
	return badge, nil
}

func (s *Service) getAwardAndBadge(ctx context.Context, badgeID id.BadgeID, holder id.SubjectID) (Award, Badge, error) {
	badge, err := s.getBadge(ctx, badgeID)
	if err != nil {
		return Award{}, Badge{}, err
	}
	award, err := s.store.GetAward(ctx, badgeID, holder)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Award{}, Badge{}, dErrors.Newf(dErrors.CodeNotFound, "subject %s has no badge %d", holder, badgeID)
	}
	if err != nil {
		return Award{}, Badge{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read award")
	}
	return award, badge, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "emit badge audit event", "action", event.Action, "error", err)
	}
}
