package trust

import (
	"context"

	id "credence/pkg/domain"
)

// Store persists one signed score per subject. Adjust must be atomic per
// subject so concurrent deltas never lose updates.
type Store interface {
	// Initialize creates the record at the baseline. Returns
	// sentinel.ErrConflict if the subject already has a score.
	Initialize(ctx context.Context, subject id.SubjectID, baseline int64) error

	// Adjust applies a signed delta and returns the resulting score.
	// Returns sentinel.ErrNotFound if the subject was never initialized.
	Adjust(ctx context.Context, subject id.SubjectID, delta int64) (int64, error)

	// Get returns the current score.
	Get(ctx context.Context, subject id.SubjectID) (int64, error)
}
