package dispute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"credence/internal/platform/config"
	"credence/internal/platform/metrics"
	"credence/internal/policy"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/audit"
	"credence/pkg/platform/keylock"
	"credence/pkg/platform/sentinel"
)

// Settlement constants. The two outcomes use different pairs on purpose:
// a successful challenge is rewarded more than a failed one costs, and a
// respondent who defeats a challenge recovers less than a proven violation
// costs them.
const (
	ChallengerWinReward   int64 = 10
	RespondentLossPenalty int64 = 15
	ChallengerLossPenalty int64 = 5
	RespondentWinReward   int64 = 5
)

// TrustLedger applies the settlement deltas inside the parties' locks.
type TrustLedger interface {
	AdjustLocked(ctx context.Context, actor, subject id.SubjectID, delta int64, reason string) error
}

// AuditPublisher emits audit events for committed dispute transitions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the dispute arbiter: escrow-bonded challenges, pseudo-random
// panels, majority voting, and one-time settlement.
type Service struct {
	store  Store
	escrow Escrow
	gate   *policy.Gate
	locks  *keylock.KeyLock
	scores TrustLedger
	slash  Slasher
	random RandomSource
	actor  id.SubjectID

	minimumBond  int64
	panelSize    int
	reviewPeriod time.Duration

	// Arbitrator roster: membership set plus an append/swap-remove list so
	// removal stays O(1) and panel selection can index by position.
	rosterMu   sync.RWMutex
	rosterSet  map[id.SubjectID]int // subject -> index in rosterList
	rosterList []id.SubjectID

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

// WithRandomSource substitutes the panel selection source.
func WithRandomSource(random RandomSource) Option {
	return func(s *Service) { s.random = random }
}

func New(store Store, escrow Escrow, gate *policy.Gate, locks *keylock.KeyLock, scores TrustLedger, slash Slasher, cfg config.DisputeConfig, actor id.SubjectID, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("dispute store is required")
	}
	if escrow == nil {
		return nil, fmt.Errorf("escrow is required")
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
	if slash == nil {
		return nil, fmt.Errorf("slasher is required")
	}
	if cfg.PanelSize <= 0 {
		return nil, fmt.Errorf("panel size must be positive")
	}

	svc := &Service{
		store:        store,
		escrow:       escrow,
		gate:         gate,
		locks:        locks,
		scores:       scores,
		slash:        slash,
		random:       NewHashSource(),
		actor:        actor,
		minimumBond:  cfg.MinimumBond,
		panelSize:    cfg.PanelSize,
		reviewPeriod: cfg.ReviewPeriod,
		rosterSet:    make(map[id.SubjectID]int),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// AddArbitrator adds a subject to the roster. Admin only.
func (s *Service) AddArbitrator(ctx context.Context, actor, arbitrator id.SubjectID) error {
	if err := s.gate.Require(policy.CapRegistryAdmin, actor); err != nil {
		return err
	}

	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()
	if _, exists := s.rosterSet[arbitrator]; exists {
		return dErrors.Newf(dErrors.CodeConflict, "arbitrator %s already on roster", arbitrator)
	}
	s.rosterSet[arbitrator] = len(s.rosterList)
	s.rosterList = append(s.rosterList, arbitrator)

	s.emit(ctx, audit.Event{
		Subject: arbitrator,
		Action:  string(audit.EventArbitratorAdded),
		ActorID: actor.String(),
	})
	return nil
}

// RemoveArbitrator swap-removes a subject from the roster. Admin only.
// Panels already assigned keep their members.
func (s *Service) RemoveArbitrator(ctx context.Context, actor, arbitrator id.SubjectID) error {
	if err := s.gate.Require(policy.CapRegistryAdmin, actor); err != nil {
		return err
	}

	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()
	idx, exists := s.rosterSet[arbitrator]
	if !exists {
		return dErrors.Newf(dErrors.CodeNotFound, "arbitrator %s not on roster", arbitrator)
	}
	last := len(s.rosterList) - 1
	moved := s.rosterList[last]
	s.rosterList[idx] = moved
	s.rosterSet[moved] = idx
	s.rosterList = s.rosterList[:last]
	delete(s.rosterSet, arbitrator)

	s.emit(ctx, audit.Event{
		Subject: arbitrator,
		Action:  string(audit.EventArbitratorRemoved),
		ActorID: actor.String(),
	})
	return nil
}

// Arbitrators returns the current roster.
func (s *Service) Arbitrators() []id.SubjectID {
	s.rosterMu.RLock()
	defer s.rosterMu.RUnlock()
	out := make([]id.SubjectID, len(s.rosterList))
	copy(out, s.rosterList)
	return out
}

// Create opens a dispute: escrows the bond, assigns the panel, and moves
// straight to UnderReview. The challenger cannot dispute themselves and the
// roster must cover the panel size.
func (s *Service) Create(ctx context.Context, challenger, respondent id.SubjectID, kind, title, description, evidenceRef string, bond int64) (id.DisputeID, error) {
	if bond < s.minimumBond {
		return 0, dErrors.Newf(dErrors.CodeInsufficientBond, "bond %d below minimum %d", bond, s.minimumBond)
	}
	if challenger == respondent {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "challenger cannot dispute themselves")
	}

	unlock := s.locks.LockAll(challenger, respondent)
	defer unlock()

	createdAt := s.now()
	dispute := Dispute{
		Challenger:     challenger,
		Respondent:     respondent,
		Kind:           kind,
		Title:          title,
		Description:    description,
		EvidenceRef:    evidenceRef,
		Bond:           bond,
		CreatedAt:      createdAt,
		ReviewDeadline: createdAt.Add(s.reviewPeriod),
		Status:         StatusUnderReview,
	}

	disputeID, err := s.store.Create(ctx, dispute)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store dispute")
	}

	panel, err := s.selectPanel(disputeID, createdAt, challenger, respondent)
	if err != nil {
		return 0, err
	}
	dispute.ID = disputeID
	dispute.Panel = panel
	if err := s.store.Update(ctx, dispute); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to assign panel")
	}

	if err := s.escrow.Hold(ctx, disputeID, challenger, bond); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to escrow bond")
	}

	if s.metrics != nil {
		s.metrics.DisputesCreated.Inc()
	}
	s.emit(ctx, audit.Event{
		Subject:   respondent,
		Action:    string(audit.EventDisputeCreated),
		Decision:  kind,
		Reason:    title,
		ActorID:   challenger.String(),
		DisputeID: disputeID,
	})
	return disputeID, nil
}

// selectPanel draws panelSize distinct roster members, excluding the
// parties, using the pluggable random source seeded by id and time.
func (s *Service) selectPanel(disputeID id.DisputeID, createdAt time.Time, challenger, respondent id.SubjectID) ([]id.SubjectID, error) {
	s.rosterMu.RLock()
	defer s.rosterMu.RUnlock()

	eligible := make([]id.SubjectID, 0, len(s.rosterList))
	for _, arb := range s.rosterList {
		if arb != challenger && arb != respondent {
			eligible = append(eligible, arb)
		}
	}
	if len(eligible) < s.panelSize {
		return nil, dErrors.Newf(dErrors.CodeInsufficientArbitrators,
			"need %d arbitrators, %d eligible", s.panelSize, len(eligible))
	}

	perm := s.random.Perm(creationSeed(uint64(disputeID), createdAt), len(eligible))
	panel := make([]id.SubjectID, 0, s.panelSize)
	for _, idx := range perm[:s.panelSize] {
		panel = append(panel, eligible[idx])
	}
	return panel, nil
}

// Vote records a panel member's ballot. A full tally triggers resolution
// immediately instead of waiting for the deadline.
func (s *Service) Vote(ctx context.Context, arbitrator id.SubjectID, disputeID id.DisputeID, inFavorOfChallenger bool) error {
	dispute, err := s.get(ctx, disputeID)
	if err != nil {
		return err
	}

	unlock := s.locks.LockAll(dispute.Challenger, dispute.Respondent)
	defer unlock()

	dispute, err = s.get(ctx, disputeID)
	if err != nil {
		return err
	}
	if dispute.Status != StatusUnderReview {
		return dErrors.Newf(dErrors.CodeReviewClosed, "dispute %d is %s", disputeID, dispute.Status)
	}
	if s.now().After(dispute.ReviewDeadline) {
		return dErrors.Newf(dErrors.CodeReviewClosed, "dispute %d review deadline passed", disputeID)
	}
	if !dispute.OnPanel(arbitrator) {
		return dErrors.Newf(dErrors.CodeNotPanelMember, "subject %s is not on the panel", arbitrator)
	}
	if dispute.HasVoted(arbitrator) {
		return dErrors.Newf(dErrors.CodeAlreadyVoted, "subject %s already voted", arbitrator)
	}

	dispute.Votes = append(dispute.Votes, Vote{
		Arbitrator: arbitrator,
		InFavor:    inFavorOfChallenger,
		CastAt:     s.now(),
	})
	if inFavorOfChallenger {
		dispute.VotesFor++
	} else {
		dispute.VotesAgainst++
	}

	if err := s.store.Update(ctx, dispute); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record vote")
	}

	s.emit(ctx, audit.Event{
		Subject:   dispute.Respondent,
		Action:    string(audit.EventDisputeVoted),
		Decision:  fmt.Sprintf("for=%d against=%d", dispute.VotesFor, dispute.VotesAgainst),
		ActorID:   arbitrator.String(),
		DisputeID: disputeID,
	})

	if len(dispute.Votes) == len(dispute.Panel) {
		return s.resolveLocked(ctx, dispute)
	}
	return nil
}

// Resolve settles a dispute once the deadline has passed or the panel has
// fully voted. Callable by anyone; the status check makes it one-time.
func (s *Service) Resolve(ctx context.Context, disputeID id.DisputeID) error {
	dispute, err := s.get(ctx, disputeID)
	if err != nil {
		return err
	}

	unlock := s.locks.LockAll(dispute.Challenger, dispute.Respondent)
	defer unlock()

	dispute, err = s.get(ctx, disputeID)
	if err != nil {
		return err
	}
	if dispute.Status != StatusUnderReview {
		return dErrors.Newf(dErrors.CodeConflict, "dispute %d already settled", disputeID)
	}
	fullyVoted := len(dispute.Votes) == len(dispute.Panel)
	if !fullyVoted && s.now().Before(dispute.ReviewDeadline) {
		return dErrors.Newf(dErrors.CodeConflict, "dispute %d review still open", disputeID)
	}
	return s.resolveLocked(ctx, dispute)
}

// resolveLocked settles the dispute. Caller holds both parties' locks and
// has verified status == UnderReview. A tie resolves for the respondent:
// the comparison is strictly greater-than.
func (s *Service) resolveLocked(ctx context.Context, dispute Dispute) error {
	dispute.ChallengerWon = dispute.VotesFor > dispute.VotesAgainst
	dispute.Status = StatusResolved

	if err := s.store.Update(ctx, dispute); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to settle dispute")
	}

	winner := dispute.Respondent
	if dispute.ChallengerWon {
		winner = dispute.Challenger
	}
	if _, err := s.escrow.Release(ctx, dispute.ID, winner); err != nil &&
		!errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to release bond")
	}

	var challengerDelta, respondentDelta int64
	outcome := "respondent_won"
	if dispute.ChallengerWon {
		outcome = "challenger_won"
		challengerDelta, respondentDelta = ChallengerWinReward, -RespondentLossPenalty
		if err := s.slash.Slash(ctx, dispute.Respondent, "Lost dispute"); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "slash failed", "dispute", dispute.ID, "error", err)
		}
	} else {
		challengerDelta, respondentDelta = -ChallengerLossPenalty, RespondentWinReward
	}

	if err := s.scores.AdjustLocked(ctx, s.actor, dispute.Challenger, challengerDelta, "dispute "+outcome); err != nil {
		return err
	}
	if err := s.scores.AdjustLocked(ctx, s.actor, dispute.Respondent, respondentDelta, "dispute "+outcome); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.DisputesResolved.WithLabelValues(outcome).Inc()
	}
	s.emit(ctx, audit.Event{
		Subject:   dispute.Respondent,
		Action:    string(audit.EventDisputeResolved),
		Decision:  outcome,
		ActorID:   dispute.Challenger.String(),
		DisputeID: dispute.ID,
	})
	return nil
}

// Get returns a dispute by ID.
func (s *Service) Get(ctx context.Context, disputeID id.DisputeID) (Dispute, error) {
	return s.get(ctx, disputeID)
}

// ListByParty returns dispute IDs where subject is a party.
func (s *Service) ListByParty(ctx context.Context, subject id.SubjectID) ([]id.DisputeID, error) {
	ids, err := s.store.ListByParty(ctx, subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list disputes")
	}
	return ids, nil
}

func (s *Service) get(ctx context.Context, disputeID id.DisputeID) (Dispute, error) {
	dispute, err := s.store.Get(ctx, disputeID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Dispute{}, dErrors.Newf(dErrors.CodeNotFound, "dispute %d not found", disputeID)
	}
	if err != nil {
		return Dispute{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read dispute")
	}
	return dispute, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "emit dispute audit event", "action", event.Action, "error", err)
	}
}
