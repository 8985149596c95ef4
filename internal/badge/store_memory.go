package badge

import (
	"context"
	"sync"

	id "credence/pkg/domain"
	"credence/pkg/platform/sentinel"
)

type awardKey struct {
	badge  id.BadgeID
	holder id.SubjectID
}

// InMemoryStore implements Store with process-local maps.
type InMemoryStore struct {
	mu          sync.RWMutex
	nextID      id.BadgeID
	badges      map[id.BadgeID]Badge
	badgeOrder  []id.BadgeID
	awards      map[awardKey]Award
	holderOrder map[id.SubjectID][]id.BadgeID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nextID:      1,
		badges:      make(map[id.BadgeID]Badge),
		awards:      make(map[awardKey]Award),
		holderOrder: make(map[id.SubjectID][]id.BadgeID),
	}
}

func (s *InMemoryStore) CreateBadge(ctx context.Context, badge Badge) (id.BadgeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	badge.ID = s.nextID
	s.nextID++
	s.badges[badge.ID] = badge
	s.badgeOrder = append(s.badgeOrder, badge.ID)
	return badge.ID, nil
}

func (s *InMemoryStore) GetBadge(ctx context.Context, badgeID id.BadgeID) (Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	badge, ok := s.badges[badgeID]
	if !ok {
		return Badge{}, sentinel.ErrNotFound
	}
	return badge, nil
}

func (s *InMemoryStore) UpdateBadge(ctx context.Context, badge Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.badges[badge.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.badges[badge.ID] = badge
	return nil
}

func (s *InMemoryStore) ListBadges(ctx context.Context) ([]Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Badge, 0, len(s.badgeOrder))
	for _, badgeID := range s.badgeOrder {
		out = append(out, s.badges[badgeID])
	}
	return out, nil
}

func (s *InMemoryStore) GetAward(ctx context.Context, badgeID id.BadgeID, holder id.SubjectID) (Award, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	award, ok := s.awards[awardKey{badge: badgeID, holder: holder}]
	if !ok {
		return Award{}, sentinel.ErrNotFound
	}
	return award, nil
}

func (s *InMemoryStore) PutAward(ctx context.Context, award Award) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := awardKey{badge: award.BadgeID, holder: award.Holder}
	if _, exists := s.awards[key]; !exists {
		s.holderOrder[award.Holder] = append(s.holderOrder[award.Holder], award.BadgeID)
	}
	s.awards[key] = award
	return nil
}

func (s *InMemoryStore) ListAwardsByHolder(ctx context.Context, holder id.SubjectID) ([]Award, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.holderOrder[holder]
	out := make([]Award, 0, len(ids))
	for _, badgeID := range ids {
		out = append(out, s.awards[awardKey{badge: badgeID, holder: holder}])
	}
	return out, nil
}
