package trust

import (
	"context"
	"fmt"
	"strconv"
	"time"

	platformredis "credence/internal/platform/redis"
	id "credence/pkg/domain"
)

// CachedStore layers a Redis read-through cache over another Store. Scores
// are read on every issuance and award, so the gating oracle is the hottest
// path in the registry; writes go through to the inner store and refresh the
// cache so gating reads never serve a stale score.
type CachedStore struct {
	inner Store
	cache *platformredis.Client
	ttl   time.Duration
}

func NewCachedStore(inner Store, cache *platformredis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{inner: inner, cache: cache, ttl: ttl}
}

func scoreKey(subject id.SubjectID) string {
	return fmt.Sprintf("trust:score:%s", subject)
}

func (s *CachedStore) Initialize(ctx context.Context, subject id.SubjectID, baseline int64) error {
	if err := s.inner.Initialize(ctx, subject, baseline); err != nil {
		return err
	}
	s.set(ctx, subject, baseline)
	return nil
}

func (s *CachedStore) Adjust(ctx context.Context, subject id.SubjectID, delta int64) (int64, error) {
	score, err := s.inner.Adjust(ctx, subject, delta)
	if err != nil {
		return 0, err
	}
	s.set(ctx, subject, score)
	return score, nil
}

func (s *CachedStore) Get(ctx context.Context, subject id.SubjectID) (int64, error) {
	if raw, err := s.cache.Get(ctx, scoreKey(subject)).Result(); err == nil {
		if score, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
			return score, nil
		}
	}
	score, err := s.inner.Get(ctx, subject)
	if err != nil {
		return 0, err
	}
	s.set(ctx, subject, score)
	return score, nil
}

// set is best effort; a cache write failure falls back to inner reads.
func (s *CachedStore) set(ctx context.Context, subject id.SubjectID, score int64) {
	_ = s.cache.Set(ctx, scoreKey(subject), strconv.FormatInt(score, 10), s.ttl).Err()
}
