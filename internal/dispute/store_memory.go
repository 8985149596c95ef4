package dispute

import (
	"context"
	"slices"
	"sync"

	id "credence/pkg/domain"
	"credence/pkg/platform/sentinel"
)

// InMemoryStore implements Store with process-local maps.
type InMemoryStore struct {
	mu       sync.RWMutex
	nextID   id.DisputeID
	disputes map[id.DisputeID]Dispute
	byParty  map[id.SubjectID][]id.DisputeID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nextID:   1,
		disputes: make(map[id.DisputeID]Dispute),
		byParty:  make(map[id.SubjectID][]id.DisputeID),
	}
}

func (s *InMemoryStore) Create(ctx context.Context, dispute Dispute) (id.DisputeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dispute.ID = s.nextID
	s.nextID++
	s.disputes[dispute.ID] = dispute
	s.byParty[dispute.Challenger] = append(s.byParty[dispute.Challenger], dispute.ID)
	s.byParty[dispute.Respondent] = append(s.byParty[dispute.Respondent], dispute.ID)
	return dispute.ID, nil
}

func (s *InMemoryStore) Get(ctx context.Context, disputeID id.DisputeID) (Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dispute, ok := s.disputes[disputeID]
	if !ok {
		return Dispute{}, sentinel.ErrNotFound
	}
	return dispute, nil
}

func (s *InMemoryStore) Update(ctx context.Context, dispute Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.disputes[dispute.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.disputes[dispute.ID] = dispute
	return nil
}

func (s *InMemoryStore) ListByParty(ctx context.Context, subject id.SubjectID) ([]id.DisputeID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.byParty[subject]), nil
}
