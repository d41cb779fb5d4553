package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/clarify/internal/domain"
)

func record(id string, text string, values ...float32) domain.VectorRecord {
	return domain.VectorRecord{
		ID:       id,
		Values:   values,
		Metadata: domain.RecordMetadata{Text: text},
	}
}

func TestStore_QueryEmpty(t *testing.T) {
	s := New()
	require.NoError(t, s.Validate(context.Background(), 2))

	matches, err := s.Query(context.Background(), domain.EmbeddingVector{1, 0}, 7)

	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStore_QueryOrdersByCosine(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Validate(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{
		record("a", "orthogonal", 0, 1),
		record("b", "exact", 2, 0),
		record("c", "close", 1, 0.2),
	}))

	matches, err := s.Query(ctx, domain.EmbeddingVector{1, 0}, 7)

	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, []string{"exact", "close", "orthogonal"},
		[]string{matches[0].Text, matches[1].Text, matches[2].Text})
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.InDelta(t, 0.0, matches[2].Score, 1e-6)
}

func TestStore_QueryCapsAtTopK(t *testing.T) {
	ctx := context.Background()
	s := New()
	var records []domain.VectorRecord
	for i := 0; i < 10; i++ {
		records = append(records, record(fmt.Sprint(i), fmt.Sprint(i), float32(i+1), 1))
	}
	require.NoError(t, s.Upsert(ctx, records))

	matches, err := s.Query(ctx, domain.EmbeddingVector{1, 1}, 3)

	require.NoError(t, err)
	assert.Len(t, matches, 3)

	none, err := s.Query(ctx, domain.EmbeddingVector{1, 1}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_UpsertRejectsWrongDimensions(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Validate(ctx, 3))

	err := s.Upsert(ctx, []domain.VectorRecord{
		record("a", "ok", 1, 2, 3),
		record("b", "bad", 1, 2),
	})

	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Equal(t, 0, s.Len())
}

func TestStore_UpsertKeepsExistingID(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{record("a", "old", 1, 0)}))
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{record("a", "new", 0, 1), record("b", "other", 0, 1)}))

	matches, err := s.Query(ctx, domain.EmbeddingVector{1, 0}, 5)

	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "old", matches[0].Text)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, 2, s.Len())
}

func TestStore_QueryZeroVectorScoresZero(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{record("a", "text", 1, 0)}))

	matches, err := s.Query(ctx, domain.EmbeddingVector{0, 0}, 5)

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Zero(t, matches[0].Score)
}

func TestStore_ValidateDetectsMismatch(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{record("a", "x", 1, 0)}))

	assert.ErrorIs(t, s.Validate(ctx, 3), domain.ErrDimensionMismatch)
	assert.NoError(t, s.Validate(ctx, 2))
}

func TestStore_QueryRejectsWrongDimensions(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Validate(ctx, 2))

	_, err := s.Query(ctx, domain.EmbeddingVector{1, 0, 0}, 5)

	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestStore_ConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Validate(ctx, 2))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			batch := make([]domain.VectorRecord, 0, 25)
			for i := 0; i < 25; i++ {
				batch = append(batch, record(fmt.Sprintf("%d-%d", w, i), "t", 1, float32(i)))
			}
			assert.NoError(t, s.Upsert(ctx, batch))
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 200, s.Len())
}
