package trust

import (
	"context"
	"sync"

	id "credence/pkg/domain"
	"credence/pkg/platform/sentinel"
)

// InMemoryStore keeps scores in a map guarded by a mutex.
type InMemoryStore struct {
	mu     sync.RWMutex
	scores map[id.SubjectID]int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{scores: make(map[id.SubjectID]int64)}
}

func (s *InMemoryStore) Initialize(ctx context.Context, subject id.SubjectID, baseline int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.scores[subject]; exists {
		return sentinel.ErrConflict
	}
	s.scores[subject] = baseline
	return nil
}

func (s *InMemoryStore) Adjust(ctx context.Context, subject id.SubjectID, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, exists := s.scores[subject]
	if !exists {
		return 0, sentinel.ErrNotFound
	}
	score += delta
	s.scores[subject] = score
	return score, nil
}

func (s *InMemoryStore) Get(ctx context.Context, subject id.SubjectID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	score, exists := s.scores[subject]
	if !exists {
		return 0, sentinel.ErrNotFound
	}
	return score, nil
}
