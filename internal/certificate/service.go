package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"credence/internal/platform/metrics"
	"credence/internal/policy"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/audit"
	"credence/pkg/platform/keylock"
	"credence/pkg/platform/sentinel"
)

const (
	// GlobalMinimumScore is the floor every issuance must clear regardless
	// of the certificate's own threshold.
	GlobalMinimumScore int64 = 20

	// GlobalMinimumLevel is the verification level required for issuance.
	GlobalMinimumLevel = 1

	// IssuanceReward and RevocationPenalty are the fixed score deltas
	// applied to the holder on issue and revoke.
	IssuanceReward    int64 = 5
	RevocationPenalty int64 = 10
)

// Service is the certificate ledger: it issues, revokes, and migrates
// non-transferable credentials, gating issuance on verification level and
// trust score at the moment of issuance only.
type Service struct {
	store      Store
	gate       *policy.Gate
	locks      *keylock.KeyLock
	identities IdentityReader
	scores     TrustLedger
	proofs     ProofChecker
	// actor is the ledger's own subject identity; it holds the
	// score-writer capability granted at bootstrap.
	actor id.SubjectID

	logger    *slog.Logger
	publisher AuditPublisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
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

func New(store Store, gate *policy.Gate, locks *keylock.KeyLock, identities IdentityReader, scores TrustLedger, proofs ProofChecker, actor id.SubjectID, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("certificate store is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("policy gate is required")
	}
	if locks == nil {
		return nil, fmt.Errorf("key lock is required")
	}
	if identities == nil {
		return nil, fmt.Errorf("identity reader is required")
	}
	if scores == nil {
		return nil, fmt.Errorf("trust ledger is required")
	}
	if proofs == nil {
		return nil, fmt.Errorf("proof checker is required")
	}

	svc := &Service{
		store:      store,
		gate:       gate,
		locks:      locks,
		identities: identities,
		scores:     scores,
		proofs:     proofs,
		actor:      actor,
		tracer:     otel.Tracer("credence/certificate"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Issue creates a certificate for holder. Preconditions are evaluated inside
// the holder's critical section so the gating read cannot be stale relative
// to a concurrent score adjustment.
func (s *Service) Issue(ctx context.Context, issuer, holder id.SubjectID, certType, metadataURI string, validityPeriod time.Duration, proofHash string, requiredTrustScore int64) (id.CertificateID, error) {
	if err := s.gate.Require(policy.CapIssuer, issuer); err != nil {
		return 0, err
	}
	if certType == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "certificate type is required")
	}
	if proofHash == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "proof hash is required")
	}

	ctx, span := s.tracer.Start(ctx, "certificate.Issue",
		trace.WithAttributes(
			attribute.String("holder", holder.String()),
			attribute.String("cert_type", certType),
		))
	defer span.End()

	unlock := s.locks.Lock(holder)
	defer unlock()

	identity, err := s.identities.Get(ctx, holder)
	if err != nil {
		return 0, err
	}
	if !identity.Active {
		return 0, dErrors.Newf(dErrors.CodeNotRegistered, "holder %s is deactivated", holder)
	}

	locked, err := s.store.IsLocked(ctx, holder)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check account lock")
	}
	if locked {
		return 0, dErrors.Newf(dErrors.CodeAccountLocked, "issuance to %s is locked", holder)
	}

	if identity.Level < GlobalMinimumLevel {
		return 0, dErrors.Newf(dErrors.CodeInsufficientVerificationLevel,
			"holder level %d below required %d", identity.Level, GlobalMinimumLevel)
	}

	score, err := s.scores.GetScore(ctx, holder)
	if err != nil {
		return 0, err
	}
	required := max(GlobalMinimumScore, requiredTrustScore)
	if score < required {
		return 0, dErrors.Newf(dErrors.CodeInsufficientTrustScore,
			"holder score %d below required %d", score, required)
	}

	ok, err := s.proofs.Check(ctx, proofHash, holder, "certificate:"+certType)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "proof check failed")
	}
	if !ok {
		return 0, dErrors.New(dErrors.CodeInvalidProof, "certificate proof rejected")
	}

	issuedAt := s.now()
	var expiresAt time.Time
	if validityPeriod > 0 {
		expiresAt = issuedAt.Add(validityPeriod)
	}

	certID, err := s.store.Create(ctx, Certificate{
		Holder:             holder,
		Issuer:             issuer,
		CertType:           certType,
		MetadataURI:        metadataURI,
		IssuedAt:           issuedAt,
		ExpiresAt:          expiresAt,
		ProofHash:          proofHash,
		RequiredTrustScore: requiredTrustScore,
	})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store certificate")
	}

	if err := s.scores.AdjustLocked(ctx, s.actor, holder, IssuanceReward, "certificate issued"); err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.CertificatesIssued.Inc()
	}
	span.SetAttributes(attribute.Int64("certificate_id", int64(certID)))
	s.emit(ctx, audit.Event{
		Subject:       holder,
		Action:        string(audit.EventCertificateIssued),
		Decision:      certType,
		ActorID:       issuer.String(),
		CertificateID: certID,
		ScoreDelta:    IssuanceReward,
	})
	return certID, nil
}

// Revoke marks a certificate revoked and penalizes the holder. Only the
// original issuer or an admin may revoke; revocation is one-way.
func (s *Service) Revoke(ctx context.Context, actor id.SubjectID, certID id.CertificateID, reason string) error {
	cert, err := s.get(ctx, certID)
	if err != nil {
		return err
	}
	if actor != cert.Issuer && !s.gate.Has(policy.CapRegistryAdmin, actor) {
		return dErrors.Newf(dErrors.CodeUnauthorized, "actor %s may not revoke certificate %d", actor, certID)
	}

	unlock := s.locks.Lock(cert.Holder)
	defer unlock()

	// Re-read inside the critical section; the holder may have changed via
	// migration between the authorization check and the lock.
	cert, err = s.get(ctx, certID)
	if err != nil {
		return err
	}
	if cert.Revoked {
		return dErrors.Newf(dErrors.CodeAlreadyRevoked, "certificate %d is already revoked", certID)
	}

	cert.Revoked = true
	cert.RevokeReason = reason
	if err := s.store.Update(ctx, cert); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke certificate")
	}

	if err := s.scores.AdjustLocked(ctx, s.actor, cert.Holder, -RevocationPenalty, "certificate revoked"); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.CertificatesRevoked.Inc()
	}
	s.emit(ctx, audit.Event{
		Subject:       cert.Holder,
		Action:        string(audit.EventCertificateRevoked),
		Reason:        reason,
		ActorID:       actor.String(),
		CertificateID: certID,
		ScoreDelta:    -RevocationPenalty,
	})
	return nil
}

// Migrate reassigns the holder. This is the one documented exception to
// non-transferability: admin-gated, proof-checked, and it never touches the
// certificate's id, issuer, or proof hash.
func (s *Service) Migrate(ctx context.Context, actor id.SubjectID, certID id.CertificateID, newHolder id.SubjectID, migrationProof string) error {
	if err := s.gate.Require(policy.CapRegistryAdmin, actor); err != nil {
		return err
	}

	cert, err := s.get(ctx, certID)
	if err != nil {
		return err
	}

	unlock := s.locks.LockAll(cert.Holder, newHolder)
	defer unlock()

	cert, err = s.get(ctx, certID)
	if err != nil {
		return err
	}

	identity, err := s.identities.Get(ctx, newHolder)
	if err != nil {
		return err
	}
	if !identity.Active {
		return dErrors.Newf(dErrors.CodeNotRegistered, "new holder %s is deactivated", newHolder)
	}

	ok, err := s.proofs.Check(ctx, migrationProof, newHolder, "migration")
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "migration proof check failed")
	}
	if !ok {
		return dErrors.New(dErrors.CodeInvalidProof, "migration proof rejected")
	}

	previous := cert.Holder
	cert.Holder = newHolder
	if err := s.store.Update(ctx, cert); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to migrate certificate")
	}

	s.emit(ctx, audit.Event{
		Subject:       newHolder,
		Action:        string(audit.EventCertificateMigrated),
		Decision:      "from=" + previous.String(),
		ActorID:       actor.String(),
		CertificateID: certID,
	})
	return nil
}

// Transfer is the generic transfer path and always fails: certificates are
// non-transferable by construction. Migrate is the only escape valve.
func (s *Service) Transfer(ctx context.Context, actor id.SubjectID, certID id.CertificateID, to id.SubjectID) error {
	return dErrors.New(dErrors.CodeNotTransferable, "certificates are not transferable")
}

// Verify reports whether the certificate exists, is not revoked, and has
// not expired. A score drop after issuance does not affect the result.
func (s *Service) Verify(ctx context.Context, certID id.CertificateID) (bool, error) {
	cert, err := s.store.Get(ctx, certID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read certificate")
	}
	return cert.Valid(s.now()), nil
}

// LockAccount blocks future issuance to holder without affecting
// already-issued certificates. Admin only.
func (s *Service) LockAccount(ctx context.Context, actor, holder id.SubjectID) error {
	return s.setLock(ctx, actor, holder, true)
}

// UnlockAccount re-enables issuance to holder. Admin only.
func (s *Service) UnlockAccount(ctx context.Context, actor, holder id.SubjectID) error {
	return s.setLock(ctx, actor, holder, false)
}

func (s *Service) setLock(ctx context.Context, actor, holder id.SubjectID, locked bool) error {
	if err := s.gate.Require(policy.CapRegistryAdmin, actor); err != nil {
		return err
	}

	unlock := s.locks.Lock(holder)
	defer unlock()

	if err := s.store.SetLocked(ctx, holder, locked); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set account lock")
	}

	action := audit.EventAccountLocked
	if !locked {
		action = audit.EventAccountUnlocked
	}
	s.emit(ctx, audit.Event{
		Subject: holder,
		Action:  string(action),
		ActorID: actor.String(),
	})
	return nil
}

// Get returns a certificate by ID.
func (s *Service) Get(ctx context.Context, certID id.CertificateID) (Certificate, error) {
	return s.get(ctx, certID)
}

// ListByHolder returns the holder's certificates, revoked ones included.
func (s *Service) ListByHolder(ctx context.Context, holder id.SubjectID) ([]Certificate, error) {
	ids, err := s.store.ListByHolder(ctx, holder)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list certificates")
	}
	certs := make([]Certificate, 0, len(ids))
	for _, certID := range ids {
		cert, err := s.get(ctx, certID)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// CountValid returns how many non-revoked, non-expired certificates the
// holder has. Used by badge auto-award criteria.
func (s *Service) CountValid(ctx context.Context, holder id.SubjectID) (int, error) {
	certs, err := s.ListByHolder(ctx, holder)
	if err != nil {
		return 0, err
	}
	now := s.now()
	count := 0
	for _, cert := range certs {
		if cert.Valid(now) {
			count++
		}
	}
	return count, nil
}

func (s *Service) get(ctx context.Context, certID id.CertificateID) (Certificate, error) {
	cert, err := s.store.Get(ctx, certID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Certificate{}, dErrors.Newf(dErrors.CodeNotFound, "certificate %d not found", certID)
	}
	if err != nil {
		return Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read certificate")
	}
	return cert, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "emit certificate audit event", "action", event.Action, "error", err)
	}
}
