package dispute

import (
	"context"

	id "credence/pkg/domain"
)

// Escrow holds dispute bonds until resolution releases them to the winning
// party. One bond per dispute.
type Escrow interface {
	// Hold escrows amount from party under disputeID.
	// sentinel.ErrConflict if the dispute already holds a bond.
	Hold(ctx context.Context, disputeID id.DisputeID, party id.SubjectID, amount int64) error

	// Release pays the held bond out to the winner and returns the amount.
	// sentinel.ErrNotFound if nothing is held.
	Release(ctx context.Context, disputeID id.DisputeID, winner id.SubjectID) (int64, error)

	// Held returns the amount currently escrowed for the dispute, zero if
	// none.
	Held(ctx context.Context, disputeID id.DisputeID) (int64, error)
}
