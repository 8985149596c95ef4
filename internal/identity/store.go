package identity

import (
	"context"

	id "credence/pkg/domain"
)

// Store persists identities and the set of every commitment ever consumed.
// Commitments stay consumed after deactivation; the store must retain them
// for the lifetime of the registry.
type Store interface {
	// Create stores a new identity and marks its commitment consumed.
	// Returns sentinel.ErrConflict if the subject already has an identity.
	Create(ctx context.Context, identity Identity) error

	// Get returns the identity for a subject, active or not.
	// Returns sentinel.ErrNotFound if the subject never registered.
	Get(ctx context.Context, subject id.SubjectID) (Identity, error)

	// Update overwrites a previously created identity.
	Update(ctx context.Context, identity Identity) error

	// CommitmentConsumed reports whether the commitment was ever used by
	// any subject, including deactivated ones.
	CommitmentConsumed(ctx context.Context, commitment id.Commitment) (bool, error)
}
