package certificate

import (
	"context"

	id "credence/pkg/domain"
)

// Store persists certificates, holder/issuer indexes, and account locks.
// IDs are allocated monotonically by the store and never reused.
type Store interface {
	// Create allocates the next ID, stores the certificate, and indexes it
	// under holder and issuer.
	Create(ctx context.Context, cert Certificate) (id.CertificateID, error)

	// Get returns a certificate by ID. sentinel.ErrNotFound if absent.
	Get(ctx context.Context, certID id.CertificateID) (Certificate, error)

	// Update overwrites a stored certificate. When the holder changed, the
	// store moves the certificate between holder indexes.
	Update(ctx context.Context, cert Certificate) error

	// ListByHolder returns the IDs of certificates currently held.
	ListByHolder(ctx context.Context, holder id.SubjectID) ([]id.CertificateID, error)

	// ListByIssuer returns the IDs of certificates issued by issuer.
	ListByIssuer(ctx context.Context, issuer id.SubjectID) ([]id.CertificateID, error)

	// SetLocked flips the issuance lock for a holder.
	SetLocked(ctx context.Context, holder id.SubjectID, locked bool) error

	// IsLocked reports whether issuance to holder is blocked.
	IsLocked(ctx context.Context, holder id.SubjectID) (bool, error)
}
