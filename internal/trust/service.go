package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"credence/internal/platform/metrics"
	"credence/internal/policy"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/audit"
	"credence/pkg/platform/keylock"
	"credence/pkg/platform/sentinel"
)

// BaselineScore is the score every identity starts at.
const BaselineScore = 10

// AuditPublisher emits audit events for committed score transitions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns the signed trust score per holder. Only holders of the
// score-writer capability may mutate it; everyone may read it.
//
// There is deliberately no floor: repeated penalties can drive a score
// negative, after which positive-threshold gating simply always fails for
// that holder. The upstream system behaves this way and callers depend on
// observing it.
type Service struct {
	store    Store
	gate     *policy.Gate
	locks    *keylock.KeyLock
	baseline int64

	logger    *slog.Logger
	publisher AuditPublisher
	metrics   *metrics.Metrics
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

// WithBaseline overrides the registration baseline.
func WithBaseline(baseline int64) Option {
	return func(s *Service) { s.baseline = baseline }
}

func New(store Store, gate *policy.Gate, locks *keylock.KeyLock, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("trust store is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("policy gate is required")
	}
	if locks == nil {
		return nil, fmt.Errorf("key lock is required")
	}

	svc := &Service{
		store:    store,
		gate:     gate,
		locks:    locks,
		baseline: BaselineScore,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Initialize creates the score record at the baseline. Writer-only; fails if
// already initialized. Acquires the subject's lock.
func (s *Service) Initialize(ctx context.Context, actor, subject id.SubjectID) error {
	unlock := s.locks.Lock(subject)
	defer unlock()
	return s.InitializeLocked(ctx, actor, subject)
}

// InitializeLocked is Initialize for callers already holding the subject's
// key lock (the identity registry initializes inside its registration lock).
func (s *Service) InitializeLocked(ctx context.Context, actor, subject id.SubjectID) error {
	if err := s.gate.Require(policy.CapScoreWriter, actor); err != nil {
		return err
	}

	if err := s.store.Initialize(ctx, subject, s.baseline); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Newf(dErrors.CodeConflict, "score for %s already initialized", subject)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to initialize score")
	}

	s.emit(ctx, audit.Event{
		Subject:    subject,
		Action:     string(audit.EventTrustInitialized),
		ActorID:    actor.String(),
		ScoreDelta: s.baseline,
	})
	return nil
}

// Adjust applies a signed delta with an informational reason. Writer-only.
// Acquires the subject's lock.
func (s *Service) Adjust(ctx context.Context, actor, subject id.SubjectID, delta int64, reason string) error {
	unlock := s.locks.Lock(subject)
	defer unlock()
	return s.AdjustLocked(ctx, actor, subject, delta, reason)
}

// AdjustLocked is Adjust for callers already holding the subject's key lock.
// Certificate, badge, and dispute settlement all mutate the score inside
// their own per-holder critical sections.
func (s *Service) AdjustLocked(ctx context.Context, actor, subject id.SubjectID, delta int64, reason string) error {
	if err := s.gate.Require(policy.CapScoreWriter, actor); err != nil {
		return err
	}

	score, err := s.store.Adjust(ctx, subject, delta)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotRegistered, "subject %s has no trust score", subject)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to adjust score")
	}

	if s.metrics != nil {
		s.metrics.TrustAdjustments.Observe(float64(delta))
	}
	s.emit(ctx, audit.Event{
		Subject:    subject,
		Action:     string(audit.EventTrustAdjusted),
		Decision:   fmt.Sprintf("score=%d", score),
		Reason:     reason,
		ActorID:    actor.String(),
		ScoreDelta: delta,
	})
	return nil
}

// GetScore is the public gating oracle. Gating is evaluated at the moment of
// issuance or award only; nothing re-checks previously issued credentials.
func (s *Service) GetScore(ctx context.Context, subject id.SubjectID) (int64, error) {
	score, err := s.store.Get(ctx, subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return 0, dErrors.Newf(dErrors.CodeNotRegistered, "subject %s has no trust score", subject)
	}
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read score")
	}
	return score, nil
}

// InitializerAs binds a component actor so sibling services can satisfy
// narrow initializer interfaces without carrying the actor themselves.
func (s *Service) InitializerAs(actor id.SubjectID) *BoundInitializer {
	return &BoundInitializer{svc: s, actor: actor}
}

// BoundInitializer adapts Service to identity.ScoreInitializer.
type BoundInitializer struct {
	svc   *Service
	actor id.SubjectID
}

func (b *BoundInitializer) Initialize(ctx context.Context, subject id.SubjectID) error {
	return b.svc.InitializeLocked(ctx, b.actor, subject)
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "emit trust audit event", "action", event.Action, "error", err)
	}
}
