//go:build integration

package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "credence/pkg/domain"
	"credence/pkg/platform/sentinel"
	"credence/pkg/testutil/containers"
)

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	pg := containers.NewPostgresContainer(t, containers.Schema)
	t.Cleanup(func() {
		_ = pg.DB.Close()
		_ = pg.Container.Terminate(context.Background())
	})
	return NewPostgresStore(pg.DB)
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	commitment, err := id.ParseCommitment(strings.Repeat("ab", 32))
	require.NoError(t, err)
	record := Identity{
		Subject:      id.NewSubjectID(),
		Commitment:   commitment,
		RegisteredAt: time.Now().UTC().Truncate(time.Microsecond),
		Active:       true,
	}
	require.NoError(t, store.Create(ctx, record))

	t.Run("get returns the stored record", func(t *testing.T) {
		got, err := store.Get(ctx, record.Subject)
		require.NoError(t, err)
		assert.Equal(t, record.Subject, got.Subject)
		assert.Equal(t, record.Commitment, got.Commitment)
		assert.True(t, got.Active)
	})

	t.Run("duplicate subject conflicts", func(t *testing.T) {
		dup := record
		dup.Commitment, _ = id.ParseCommitment(strings.Repeat("cd", 32))
		assert.ErrorIs(t, store.Create(ctx, dup), sentinel.ErrConflict)
	})

	t.Run("commitment is consumed", func(t *testing.T) {
		consumed, err := store.CommitmentConsumed(ctx, record.Commitment)
		require.NoError(t, err)
		assert.True(t, consumed)

		fresh, _ := id.ParseCommitment(strings.Repeat("ef", 32))
		consumed, err = store.CommitmentConsumed(ctx, fresh)
		require.NoError(t, err)
		assert.False(t, consumed)
	})

	t.Run("update flips flags and recomputes nothing", func(t *testing.T) {
		record.FaceVerified = true
		record.Level = 1
		require.NoError(t, store.Update(ctx, record))

		got, err := store.Get(ctx, record.Subject)
		require.NoError(t, err)
		assert.True(t, got.FaceVerified)
		assert.Equal(t, 1, got.Level)
	})

	t.Run("update of a missing subject", func(t *testing.T) {
		missing := record
		missing.Subject = id.NewSubjectID()
		assert.ErrorIs(t, store.Update(ctx, missing), sentinel.ErrNotFound)
	})

	t.Run("get of a missing subject", func(t *testing.T) {
		_, err := store.Get(ctx, id.NewSubjectID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
