//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/clarify/internal/domain"
	"github.com/cloo-solutions/clarify/internal/testutil"
)

func rec(text string, seq int, values ...float32) domain.VectorRecord {
	return domain.VectorRecord{
		ID:       uuid.NewString(),
		Values:   values,
		Metadata: domain.RecordMetadata{Text: text, SequenceIndex: seq},
	}
}

func TestStore_Integration(t *testing.T) {
	ctx := context.Background()

	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { _ = pc.Terminate(ctx) })

	pool := testutil.NewTestPool(ctx, t, pc)
	t.Cleanup(pool.Close)

	store := New(pool)

	t.Run("empty store", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))

		require.NoError(t, store.Validate(ctx, 3))
		matches, err := store.Query(ctx, domain.EmbeddingVector{1, 0, 0}, 7)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("round trip ordered by similarity", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))

		require.NoError(t, store.Upsert(ctx, []domain.VectorRecord{
			rec("far", 0, 0, 1, 0),
			rec("exact", 1, 1, 0, 0),
			rec("near", 2, 1, 0.1, 0),
		}))

		matches, err := store.Query(ctx, domain.EmbeddingVector{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "exact", matches[0].Text)
		assert.Equal(t, "near", matches[1].Text)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-5)
		assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
	})

	t.Run("validate detects mismatch", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))
		require.NoError(t, store.Upsert(ctx, []domain.VectorRecord{rec("x", 0, 1, 2, 3)}))

		assert.NoError(t, store.Validate(ctx, 3))
		assert.ErrorIs(t, store.Validate(ctx, 4), domain.ErrDimensionMismatch)
	})

	t.Run("existing id is never overwritten", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))

		first := rec("original", 0, 1, 0, 0)
		require.NoError(t, store.Upsert(ctx, []domain.VectorRecord{first}))

		clash := rec("replacement", 5, 0, 1, 0)
		clash.ID = first.ID
		require.NoError(t, store.Upsert(ctx, []domain.VectorRecord{clash}))

		matches, err := store.Query(ctx, domain.EmbeddingVector{1, 0, 0}, 7)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "original", matches[0].Text)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-5)
	})

	t.Run("zero query vector scores zero", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))
		require.NoError(t, store.Upsert(ctx, []domain.VectorRecord{rec("x", 0, 1, 2, 3)}))

		matches, err := store.Query(ctx, domain.EmbeddingVector{0, 0, 0}, 7)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Zero(t, matches[0].Score)
	})

	t.Run("failed batch writes nothing", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))

		bad := rec("bad", 1, 1, 2, 3)
		bad.ID = "not-a-uuid"
		err := store.Upsert(ctx, []domain.VectorRecord{rec("good", 0, 1, 2, 3), bad})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrVectorStore)

		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}
