//go:build integration

package trust

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformredis "credence/internal/platform/redis"
	id "credence/pkg/domain"
	"credence/pkg/testutil/containers"
)

func TestCachedStore(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	t.Cleanup(func() {
		_ = rc.Client.Close()
		_ = rc.Container.Terminate(context.Background())
	})

	cache := &platformredis.Client{Client: rc.Client}
	store := NewCachedStore(NewInMemoryStore(), cache, time.Minute)
	subject := id.NewSubjectID()

	t.Run("writes refresh the cache", func(t *testing.T) {
		require.NoError(t, store.Initialize(ctx, subject, BaselineScore))

		score, err := store.Get(ctx, subject)
		require.NoError(t, err)
		assert.Equal(t, int64(BaselineScore), score)

		updated, err := store.Adjust(ctx, subject, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(BaselineScore+7), updated)

		score, err = store.Get(ctx, subject)
		require.NoError(t, err)
		assert.Equal(t, updated, score)
	})

	t.Run("cache miss falls through to the inner store", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		score, err := store.Get(ctx, subject)
		require.NoError(t, err)
		assert.Equal(t, int64(BaselineScore+7), score)
	})

	t.Run("unknown subject surfaces the inner store error", func(t *testing.T) {
		_, err := store.Get(ctx, id.NewSubjectID())
		assert.Error(t, err)
	})
}
