package identity

import (
	"context"
	"sync"

	id "credence/pkg/domain"
	"credence/pkg/platform/sentinel"
)

// InMemoryStore implements Store with process-local maps. Default for
// single-node deployments and tests; PostgresStore covers shared state.
type InMemoryStore struct {
	mu          sync.RWMutex
	identities  map[id.SubjectID]Identity
	commitments map[id.Commitment]bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		identities:  make(map[id.SubjectID]Identity),
		commitments: make(map[id.Commitment]bool),
	}
}

func (s *InMemoryStore) Create(ctx context.Context, identity Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.identities[identity.Subject]; exists {
		return sentinel.ErrConflict
	}
	s.identities[identity.Subject] = identity
	s.commitments[identity.Commitment] = true
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, subject id.SubjectID) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[subject]
	if !ok {
		return Identity{}, sentinel.ErrNotFound
	}
	return identity, nil
}

func (s *InMemoryStore) Update(ctx context.Context, identity Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identity.Subject]; !ok {
		return sentinel.ErrNotFound
	}
	s.identities[identity.Subject] = identity
	return nil
}

func (s *InMemoryStore) CommitmentConsumed(ctx context.Context, commitment id.Commitment) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commitments[commitment], nil
}
