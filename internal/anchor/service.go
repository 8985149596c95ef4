// Package anchor periodically commits the registry's commitment set to a
// Merkle root so external systems can verify membership without reading the
// registry itself.
package anchor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"credence/internal/policy"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/audit"
	"credence/pkg/platform/sentinel"
)

// CommitmentReader resolves the registered commitment for a subject.
type CommitmentReader interface {
	GetCommitment(ctx context.Context, subject id.SubjectID) (id.Commitment, error)
}

// AuditPublisher emits audit events for anchored roots and records.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service publishes epoch roots and records which epoch covers each subject.
type Service struct {
	store      Store
	gate       *policy.Gate
	identities CommitmentReader

	logger    *slog.Logger
	publisher AuditPublisher
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, gate *policy.Gate, identities CommitmentReader, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("anchor store is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("policy gate is required")
	}
	if identities == nil {
		return nil, fmt.Errorf("commitment reader is required")
	}

	svc := &Service{
		store:      store,
		gate:       gate,
		identities: identities,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// PublishRoot builds and stores the Merkle root over the given commitment
// set for the next epoch. Admin only. Leaf order is the caller's snapshot
// order and must be reproduced to generate proofs later.
func (s *Service) PublishRoot(ctx context.Context, actor id.SubjectID, leaves []id.Commitment) (Root, error) {
	if err := s.gate.Require(policy.CapRegistryAdmin, actor); err != nil {
		return Root{}, err
	}
	if len(leaves) == 0 {
		return Root{}, dErrors.New(dErrors.CodeInvalidInput, "cannot anchor an empty commitment set")
	}

	epoch := uint64(1)
	latest, err := s.store.LatestRoot(ctx)
	if err == nil {
		epoch = latest.Epoch + 1
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return Root{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read latest root")
	}

	raw := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		raw[i] = append([]byte(nil), leaf[:]...)
	}
	root := Root{
		Epoch:       epoch,
		Root:        BuildRoot(raw),
		LeafCount:   len(leaves),
		PublishedAt: s.now(),
	}
	if err := s.store.PutRoot(ctx, root); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return Root{}, dErrors.Newf(dErrors.CodeConflict, "epoch %d already published", epoch)
		}
		return Root{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store root")
	}

	s.emit(ctx, audit.Event{
		Action:   string(audit.EventRootAnchored),
		Decision: root.Root.String(),
		Reason:   fmt.Sprintf("epoch=%d leaves=%d", epoch, len(leaves)),
		ActorID:  actor.String(),
	})
	return root, nil
}

// AnchorUnder verifies that the subject's registered commitment is included
// under the given epoch's root and records the binding. The proof must have
// been generated against the same leaf snapshot the root was built from.
func (s *Service) AnchorUnder(ctx context.Context, subject id.SubjectID, epoch uint64, index int, path []Hash) error {
	root, err := s.store.GetRoot(ctx, epoch)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "epoch %d was never published", epoch)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read root")
	}

	commitment, err := s.identities.GetCommitment(ctx, subject)
	if err != nil {
		return err
	}
	if !VerifyProof(root.Root, commitment[:], index, path) {
		return dErrors.New(dErrors.CodeInvalidProof, "inclusion proof does not verify")
	}

	record := Record{
		Subject:    subject,
		Epoch:      epoch,
		Leaf:       commitment,
		RecordedAt: s.now(),
	}
	if err := s.store.PutRecord(ctx, record); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store anchor record")
	}

	s.emit(ctx, audit.Event{
		Subject:  subject,
		Action:   string(audit.EventAnchorRecorded),
		Decision: root.Root.String(),
		Reason:   fmt.Sprintf("epoch=%d", epoch),
	})
	return nil
}

// VerifyInclusion checks a leaf against a published epoch root without
// recording anything.
func (s *Service) VerifyInclusion(ctx context.Context, epoch uint64, leaf id.Commitment, index int, path []Hash) (bool, error) {
	root, err := s.store.GetRoot(ctx, epoch)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, dErrors.Newf(dErrors.CodeNotFound, "epoch %d was never published", epoch)
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read root")
	}
	return VerifyProof(root.Root, leaf[:], index, path), nil
}

// LatestRoot returns the most recently published root.
func (s *Service) LatestRoot(ctx context.Context) (Root, error) {
	root, err := s.store.LatestRoot(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Root{}, dErrors.New(dErrors.CodeNotFound, "no root published yet")
	}
	if err != nil {
		return Root{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read latest root")
	}
	return root, nil
}

// RecordFor returns the anchor record for a subject.
func (s *Service) RecordFor(ctx context.Context, subject id.SubjectID) (Record, error) {
	record, err := s.store.GetRecord(ctx, subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Record{}, dErrors.Newf(dErrors.CodeNotFound, "subject %s was never anchored", subject)
	}
	if err != nil {
		return Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read anchor record")
	}
	return record, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "emit anchor audit event", "action", event.Action, "error", err)
	}
}
