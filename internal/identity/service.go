package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"credence/internal/platform/metrics"
	"credence/internal/policy"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/audit"
	"credence/pkg/platform/keylock"
	"credence/pkg/platform/sentinel"
)

// ScoreInitializer is the trust-ledger hook called when a new identity is
// created so the baseline score exists before any gating read.
type ScoreInitializer interface {
	Initialize(ctx context.Context, subject id.SubjectID) error
}

// AuditPublisher emits audit events for committed registry transitions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns the one-to-one mapping between subjects and commitments and
// the verification flags derived from external checks.
type Service struct {
	store  Store
	gate   *policy.Gate
	locks  *keylock.KeyLock
	scores ScoreInitializer

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

// WithClock overrides the time source. Tests use it to pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, gate *policy.Gate, locks *keylock.KeyLock, scores ScoreInitializer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("identity store is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("policy gate is required")
	}
	if locks == nil {
		return nil, fmt.Errorf("key lock is required")
	}
	if scores == nil {
		return nil, fmt.Errorf("score initializer is required")
	}

	svc := &Service{
		store:  store,
		gate:   gate,
		locks:  locks,
		scores: scores,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register creates an identity for subject bound to commitment and
// initializes the baseline trust score. A subject that ever registered
// cannot register again, and a commitment once consumed stays consumed
// forever, even across deactivations.
func (s *Service) Register(ctx context.Context, subject id.SubjectID, commitment id.Commitment) error {
	if subject.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "subject is required")
	}
	if commitment.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "commitment is required")
	}

	unlock := s.locks.Lock(subject)
	defer unlock()

	if _, err := s.store.Get(ctx, subject); err == nil {
		return dErrors.Newf(dErrors.CodeAlreadyRegistered, "subject %s already registered", subject)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity")
	}

	consumed, err := s.store.CommitmentConsumed(ctx, commitment)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check commitment")
	}
	if consumed {
		return dErrors.New(dErrors.CodeCommitmentReused, "commitment was already consumed")
	}

	identity := Identity{
		Subject:      subject,
		Commitment:   commitment,
		RegisteredAt: s.now(),
		Active:       true,
	}
	if err := s.store.Create(ctx, identity); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Newf(dErrors.CodeAlreadyRegistered, "subject %s already registered", subject)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create identity")
	}

	if err := s.scores.Initialize(ctx, subject); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to initialize trust score")
	}

	if s.metrics != nil {
		s.metrics.IdentitiesRegistered.Inc()
	}
	s.emit(ctx, audit.Event{
		Subject:  subject,
		Action:   string(audit.EventIdentityRegistered),
		Decision: "registered",
		Reason:   commitment.String(),
	})
	return nil
}

// UpdateVerificationStatus flips one verification flag and recomputes the
// level. Restricted to the registry-writer capability. Score rewards are the
// caller's responsibility (verification managers), not this method's.
func (s *Service) UpdateVerificationStatus(ctx context.Context, actor, subject id.SubjectID, kind VerificationKind, value bool) error {
	if err := s.gate.Require(policy.CapRegistryWriter, actor); err != nil {
		return err
	}
	if !kind.Valid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown verification kind %q", kind)
	}

	unlock := s.locks.Lock(subject)
	defer unlock()

	identity, err := s.activeIdentity(ctx, subject)
	if err != nil {
		return err
	}

	switch kind {
	case KindFace:
		identity.FaceVerified = value
	case KindGovID:
		identity.GovIDVerified = value
	case KindIncome:
		identity.IncomeVerified = value
	}
	identity.Level = identity.ComputeLevel()

	if err := s.store.Update(ctx, identity); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update identity")
	}

	s.emit(ctx, audit.Event{
		Subject:  subject,
		Action:   string(audit.EventVerificationUpdated),
		Decision: fmt.Sprintf("%s=%t", kind, value),
		Reason:   fmt.Sprintf("level=%d", identity.Level),
		ActorID:  actor.String(),
	})
	return nil
}

// Deactivate flips the active flag, preserving the record and keeping the
// commitment consumed. Admin only.
func (s *Service) Deactivate(ctx context.Context, actor, subject id.SubjectID, reason string) error {
	if err := s.gate.Require(policy.CapRegistryAdmin, actor); err != nil {
		return err
	}

	unlock := s.locks.Lock(subject)
	defer unlock()

	identity, err := s.activeIdentity(ctx, subject)
	if err != nil {
		return err
	}

	identity.Active = false
	if err := s.store.Update(ctx, identity); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate identity")
	}

	s.emit(ctx, audit.Event{
		Subject:  subject,
		Action:   string(audit.EventIdentityDeactivated),
		Decision: "deactivated",
		Reason:   reason,
		ActorID:  actor.String(),
	})
	return nil
}

// IsRegistered reports whether subject has an active identity.
func (s *Service) IsRegistered(ctx context.Context, subject id.SubjectID) (bool, error) {
	identity, err := s.store.Get(ctx, subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity")
	}
	return identity.Active, nil
}

// GetLevel returns the derived verification level for an active identity.
func (s *Service) GetLevel(ctx context.Context, subject id.SubjectID) (int, error) {
	identity, err := s.activeIdentity(ctx, subject)
	if err != nil {
		return 0, err
	}
	return identity.Level, nil
}

// GetCommitment returns the commitment bound to subject, active or not.
func (s *Service) GetCommitment(ctx context.Context, subject id.SubjectID) (id.Commitment, error) {
	identity, err := s.store.Get(ctx, subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return id.Commitment{}, dErrors.Newf(dErrors.CodeNotRegistered, "subject %s is not registered", subject)
	}
	if err != nil {
		return id.Commitment{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity")
	}
	return identity.Commitment, nil
}

// Get returns the full identity record. Used by sibling components that
// gate on registration and level.
func (s *Service) Get(ctx context.Context, subject id.SubjectID) (Identity, error) {
	identity, err := s.store.Get(ctx, subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Identity{}, dErrors.Newf(dErrors.CodeNotRegistered, "subject %s is not registered", subject)
	}
	if err != nil {
		return Identity{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity")
	}
	return identity, nil
}

func (s *Service) activeIdentity(ctx context.Context, subject id.SubjectID) (Identity, error) {
	identity, err := s.store.Get(ctx, subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Identity{}, dErrors.Newf(dErrors.CodeNotRegistered, "subject %s is not registered", subject)
	}
	if err != nil {
		return Identity{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity")
	}
	if !identity.Active {
		return Identity{}, dErrors.Newf(dErrors.CodeNotRegistered, "subject %s is deactivated", subject)
	}
	return identity, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "emit identity audit event", "action", event.Action, "error", err)
	}
}
