package dispute

import (
	"context"

	id "credence/pkg/domain"
)

// Store persists disputes and the per-party indexes.
type Store interface {
	// Create allocates the next dispute ID, stores the record, and indexes
	// it under both parties.
	Create(ctx context.Context, dispute Dispute) (id.DisputeID, error)

	// Get returns a dispute by ID. sentinel.ErrNotFound if absent.
	Get(ctx context.Context, disputeID id.DisputeID) (Dispute, error)

	// Update overwrites a stored dispute.
	Update(ctx context.Context, dispute Dispute) error

	// ListByParty returns dispute IDs where subject is challenger or
	// respondent.
	ListByParty(ctx context.Context, subject id.SubjectID) ([]id.DisputeID, error)
}
