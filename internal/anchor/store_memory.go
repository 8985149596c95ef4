package anchor

import (
	"context"
	"sync"

	id "credence/pkg/domain"
	"credence/pkg/platform/sentinel"
)

// InMemoryStore implements Store with process-local maps.
type InMemoryStore struct {
	mu          sync.RWMutex
	roots       map[uint64]Root
	latestEpoch uint64
	hasRoot     bool
	records     map[id.SubjectID]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		roots:   make(map[uint64]Root),
		records: make(map[id.SubjectID]Record),
	}
}

func (s *InMemoryStore) PutRoot(ctx context.Context, root Root) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.roots[root.Epoch]; exists {
		return sentinel.ErrConflict
	}
	s.roots[root.Epoch] = root
	if !s.hasRoot || root.Epoch > s.latestEpoch {
		s.latestEpoch = root.Epoch
		s.hasRoot = true
	}
	return nil
}

func (s *InMemoryStore) GetRoot(ctx context.Context, epoch uint64) (Root, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root, exists := s.roots[epoch]
	if !exists {
		return Root{}, sentinel.ErrNotFound
	}
	return root, nil
}

func (s *InMemoryStore) LatestRoot(ctx context.Context) (Root, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasRoot {
		return Root{}, sentinel.ErrNotFound
	}
	return s.roots[s.latestEpoch], nil
}

func (s *InMemoryStore) PutRecord(ctx context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Subject] = record
	return nil
}

func (s *InMemoryStore) GetRecord(ctx context.Context, subject id.SubjectID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, exists := s.records[subject]
	if !exists {
		return Record{}, sentinel.ErrNotFound
	}
	return record, nil
}
