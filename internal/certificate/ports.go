// Shared interfaces consumed by the certificate ledger. Implementations live
// with the owning components; collaborator concerns (proof checking) stay
// behind narrow ports.
package certificate

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"credence/internal/identity"
	id "credence/pkg/domain"
	"credence/pkg/platform/audit"
)

// IdentityReader is the narrow accessor into the identity registry.
type IdentityReader interface {
	Get(ctx context.Context, subject id.SubjectID) (identity.Identity, error)
}

// TrustLedger is the gating oracle plus the reward/penalty writer. The
// ledger's locked variant is used because issuance already holds the
// holder's key lock.
type TrustLedger interface {
	GetScore(ctx context.Context, subject id.SubjectID) (int64, error)
	AdjustLocked(ctx context.Context, actor, subject id.SubjectID, delta int64, reason string) error
}

// ProofChecker validates the issuer-supplied opaque proof hash. The real
// verification system is an external collaborator; this layer only sees
// pass/fail.
type ProofChecker interface {
	Check(ctx context.Context, proofHash string, holder id.SubjectID, purpose string) (bool, error)
}

// AuditPublisher emits audit events for committed ledger transitions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
