package dispute

import (
	"context"
	"sync"

	id "credence/pkg/domain"
	"credence/pkg/platform/sentinel"
)

type heldBond struct {
	party  id.SubjectID
	amount int64
}

// InMemoryEscrow implements Escrow with a process-local map.
type InMemoryEscrow struct {
	mu    sync.Mutex
	bonds map[id.DisputeID]heldBond
}

func NewInMemoryEscrow() *InMemoryEscrow {
	return &InMemoryEscrow{bonds: make(map[id.DisputeID]heldBond)}
}

func (e *InMemoryEscrow) Hold(ctx context.Context, disputeID id.DisputeID, party id.SubjectID, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.bonds[disputeID]; exists {
		return sentinel.ErrConflict
	}
	e.bonds[disputeID] = heldBond{party: party, amount: amount}
	return nil
}

func (e *InMemoryEscrow) Release(ctx context.Context, disputeID id.DisputeID, winner id.SubjectID) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bond, exists := e.bonds[disputeID]
	if !exists {
		return 0, sentinel.ErrNotFound
	}
	delete(e.bonds, disputeID)
	return bond.amount, nil
}

func (e *InMemoryEscrow) Held(ctx context.Context, disputeID id.DisputeID) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bonds[disputeID].amount, nil
}
