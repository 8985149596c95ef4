// Package verification bridges external verification providers into the
// identity registry. Each manager instance fronts one class of checks and
// translates a provider verdict into a flag update plus a score reward.
package verification

import (
	"context"
	"fmt"
	"log/slog"

	"credence/internal/identity"
	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
)

// Score rewards per verification kind. Face and government ID checks carry
// equal weight; income verification is cheaper to pass and rewards less.
const (
	FaceReward   int64 = 15
	GovIDReward  int64 = 15
	IncomeReward int64 = 10
)

// Registry is the slice of the identity service the manager needs.
type Registry interface {
	Get(ctx context.Context, subject id.SubjectID) (identity.Identity, error)
	UpdateVerificationStatus(ctx context.Context, actor, subject id.SubjectID, kind identity.VerificationKind, value bool) error
}

// TrustLedger applies the verification reward.
type TrustLedger interface {
	Adjust(ctx context.Context, actor, subject id.SubjectID, delta int64, reason string) error
}

// Manager accepts verification results on behalf of external providers. Its
// actor identity must hold both the registry-writer and score-writer
// capabilities.
type Manager struct {
	registry Registry
	scores   TrustLedger
	actor    id.SubjectID
	logger   *slog.Logger
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func New(registry Registry, scores TrustLedger, actor id.SubjectID, opts ...Option) (*Manager, error) {
	if registry == nil {
		return nil, fmt.Errorf("identity registry is required")
	}
	if scores == nil {
		return nil, fmt.Errorf("trust ledger is required")
	}

	mgr := &Manager{
		registry: registry,
		scores:   scores,
		actor:    actor,
	}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr, nil
}

// SubmitResult records a provider verdict. A successful check flips the flag
// and rewards the subject once; re-submitting a success for an already
// verified kind is a no-op. A failed check clears the flag without penalty,
// so the subject can retry.
func (m *Manager) SubmitResult(ctx context.Context, subject id.SubjectID, kind identity.VerificationKind, success bool) error {
	if !kind.Valid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown verification kind %q", kind)
	}

	current, err := m.registry.Get(ctx, subject)
	if err != nil {
		return err
	}
	alreadyVerified := current.Verified(kind)

	if err := m.registry.UpdateVerificationStatus(ctx, m.actor, subject, kind, success); err != nil {
		return err
	}

	if success && !alreadyVerified {
		if err := m.scores.Adjust(ctx, m.actor, subject, rewardFor(kind), string(kind)+" verification passed"); err != nil {
			return err
		}
	}

	if m.logger != nil {
		m.logger.InfoContext(ctx, "verification result recorded",
			"subject", subject.String(), "kind", string(kind), "success", success)
	}
	return nil
}

func rewardFor(kind identity.VerificationKind) int64 {
	switch kind {
	case identity.KindFace:
		return FaceReward
	case identity.KindGovID:
		return GovIDReward
	case identity.KindIncome:
		return IncomeReward
	default:
		return 0
	}
}
