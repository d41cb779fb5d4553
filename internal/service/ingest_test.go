package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/clarify/internal/chunker"
	"github.com/cloo-solutions/clarify/internal/domain"
	"github.com/cloo-solutions/clarify/internal/vectorstore/memory"
)

func newTestIngest(e Embedder, s VectorStore, cfg IngestConfig) *IngestService {
	return NewIngestService(e, s, chunker.Paragraph{}, cfg, nil)
}

func TestIngest_PartitionsIntoBatches(t *testing.T) {
	emb := newFakeEmbedder(4)
	store := &recordingStore{}
	svc := newTestIngest(emb, store, IngestConfig{BatchSize: 100})

	report, err := svc.Ingest(context.Background(), texts(250))

	require.NoError(t, err)
	assert.Equal(t, []int{100, 100, 50}, emb.batchSizes())
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 250, report.Written)
	assert.Equal(t, domain.IngestStatusOK, report.Status())
	assert.Len(t, store.batches, 3)
}

func TestIngest_ExactMultipleOfBatchSize(t *testing.T) {
	emb := newFakeEmbedder(4)
	svc := newTestIngest(emb, &recordingStore{}, IngestConfig{BatchSize: 5})

	report, err := svc.Ingest(context.Background(), texts(10))

	require.NoError(t, err)
	assert.Equal(t, []int{5, 5}, emb.batchSizes())
	assert.Equal(t, 2, report.Batches)
}

func TestIngest_RecordsCarryTextAndOrder(t *testing.T) {
	emb := newFakeEmbedder(4)
	store := &recordingStore{}
	svc := newTestIngest(emb, store, IngestConfig{BatchSize: 2}).
		WithUUIDGenerator(&sequentialIDs{})

	_, err := svc.Ingest(context.Background(), []string{"first", "   ", "second", "third"})

	require.NoError(t, err)
	records := store.records()
	require.Len(t, records, 3)
	assert.Equal(t, "first", records[0].Metadata.Text)
	assert.Equal(t, 0, records[0].Metadata.SequenceIndex)
	assert.Equal(t, "second", records[1].Metadata.Text)
	assert.Equal(t, 2, records[1].Metadata.SequenceIndex)
	assert.Equal(t, "third", records[2].Metadata.Text)
	assert.Equal(t, 3, records[2].Metadata.SequenceIndex)

	ids := map[string]bool{}
	for _, r := range records {
		assert.Len(t, r.Values, 4)
		ids[r.ID] = true
	}
	assert.Len(t, ids, 3)
}

func TestIngest_NoChunks(t *testing.T) {
	for name, input := range map[string][]string{
		"nil":       nil,
		"empty":     {},
		"all blank": {"", "  ", "\n\t"},
	} {
		t.Run(name, func(t *testing.T) {
			emb := newFakeEmbedder(4)
			svc := newTestIngest(emb, &recordingStore{}, IngestConfig{})

			report, err := svc.Ingest(context.Background(), input)

			assert.ErrorIs(t, err, domain.ErrNoChunks)
			assert.Nil(t, report)
			assert.Empty(t, emb.batchSizes())
		})
	}
}

func TestIngest_FailedBatchIsIsolated(t *testing.T) {
	emb := newFakeEmbedder(4)
	emb.fail = func(texts []string) error {
		if texts[0] == "chunk number 2" {
			return domain.ErrEmbeddingProvider
		}
		return nil
	}
	store := &recordingStore{}
	svc := newTestIngest(emb, store, IngestConfig{BatchSize: 2})

	report, err := svc.Ingest(context.Background(), texts(6))

	require.NoError(t, err)
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 4, report.Written)
	assert.Equal(t, 2, report.Dropped)
	assert.Equal(t, domain.IngestStatusOK, report.Status())
	require.Len(t, report.Outcomes, 3)
	assert.True(t, report.Outcomes[0].OK())
	assert.ErrorIs(t, report.Outcomes[1].Err, domain.ErrEmbeddingProvider)
	assert.Equal(t, 2, report.Outcomes[1].Start)
	assert.True(t, report.Outcomes[2].OK())
	assert.Len(t, store.records(), 4)
}

func TestIngest_StoreFailureIsIsolated(t *testing.T) {
	emb := newFakeEmbedder(4)
	store := &recordingStore{fail: func(records []domain.VectorRecord) error {
		if records[0].Metadata.SequenceIndex == 0 {
			return domain.ErrVectorStore
		}
		return nil
	}}
	svc := newTestIngest(emb, store, IngestConfig{BatchSize: 3})

	report, err := svc.Ingest(context.Background(), texts(6))

	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Succeeded)
	assert.ErrorIs(t, report.Outcomes[0].Err, domain.ErrVectorStore)
}

func TestIngest_AllBatchesFail(t *testing.T) {
	emb := newFakeEmbedder(4)
	emb.fail = func([]string) error { return errors.New("provider down") }
	svc := newTestIngest(emb, &recordingStore{}, IngestConfig{BatchSize: 2})

	report, err := svc.Ingest(context.Background(), texts(5))

	require.ErrorIs(t, err, domain.ErrIngestFailed)
	require.NotNil(t, report)
	assert.Equal(t, domain.IngestStatusFailed, report.Status())
	assert.Equal(t, 3, report.Failed)
	assert.Equal(t, 0, report.Written)
}

func TestIngest_WrongDimensionsFailBatch(t *testing.T) {
	emb := newFakeEmbedder(4)
	emb.badDims = 3
	store := &recordingStore{}
	svc := newTestIngest(emb, store, IngestConfig{})

	report, err := svc.Ingest(context.Background(), texts(3))

	require.ErrorIs(t, err, domain.ErrIngestFailed)
	assert.ErrorIs(t, report.Outcomes[0].Err, domain.ErrDimensionMismatch)
	assert.Empty(t, store.records())
}

func TestIngest_CancelledBeforeStart(t *testing.T) {
	emb := newFakeEmbedder(4)
	svc := newTestIngest(emb, &recordingStore{}, IngestConfig{BatchSize: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := svc.Ingest(ctx, texts(4))

	require.NoError(t, err)
	assert.Equal(t, domain.IngestStatusCancelled, report.Status())
	assert.Equal(t, 2, report.Abandoned)
	assert.Empty(t, emb.batchSizes())
}

func TestIngest_CancelledMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emb := newFakeEmbedder(4)
	emb.onBatch = func([]string) { cancel() }
	store := &recordingStore{}
	svc := newTestIngest(emb, store, IngestConfig{BatchSize: 2})

	report, err := svc.Ingest(ctx, texts(6))

	require.NoError(t, err)
	assert.Equal(t, []int{2}, emb.batchSizes())
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Abandoned)
	assert.Equal(t, domain.IngestStatusOK, report.Status())
	assert.True(t, report.Outcomes[1].Abandoned)
	assert.True(t, report.Outcomes[2].Abandoned)
}

func TestIngest_CancelledDuringFirstBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emb := newFakeEmbedder(4)
	emb.checkCtx = true
	emb.onBatch = func([]string) { cancel() }
	store := &recordingStore{}
	svc := newTestIngest(emb, store, IngestConfig{BatchSize: 2})

	report, err := svc.Ingest(ctx, texts(6))

	require.NoError(t, err)
	assert.Equal(t, domain.IngestStatusCancelled, report.Status())
	assert.Zero(t, report.Failed)
	assert.Equal(t, 3, report.Abandoned)
	assert.Equal(t, 6, report.Dropped)
	assert.True(t, report.Outcomes[0].Abandoned)
	assert.ErrorIs(t, report.Outcomes[0].Err, context.Canceled)
	assert.Empty(t, store.records())
}

func TestIngest_StoreTimeoutIsFailure(t *testing.T) {
	store := &recordingStore{fail: func([]domain.VectorRecord) error { return context.DeadlineExceeded }}
	svc := newTestIngest(newFakeEmbedder(4), store, IngestConfig{BatchSize: 2})

	report, err := svc.Ingest(context.Background(), texts(2))

	require.ErrorIs(t, err, domain.ErrIngestFailed)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, report.Outcomes[0].Abandoned)
}

func TestIngest_ConcurrentWorkersAreBounded(t *testing.T) {
	emb := newFakeEmbedder(4)
	emb.delay = 10 * time.Millisecond
	emb.fail = func(texts []string) error {
		if texts[0] == "chunk number 0" {
			return errors.New("first batch fails")
		}
		return nil
	}
	store := &recordingStore{}
	svc := newTestIngest(emb, store, IngestConfig{BatchSize: 1, Workers: 3})

	report, err := svc.Ingest(context.Background(), texts(12))

	require.NoError(t, err)
	assert.Equal(t, 12, report.Batches)
	assert.Equal(t, 11, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.LessOrEqual(t, emb.maxInFlight, 3)
	assert.Len(t, store.records(), 11)
	for i, o := range report.Outcomes {
		assert.Equal(t, i, o.Index)
	}
}

func TestIngest_ArchivesRequest(t *testing.T) {
	archive := new(MockArchiver)
	archive.On("Archive", mock.Anything, "id-1", []string{"a", "b"}).Return(nil).Once()

	svc := newTestIngest(newFakeEmbedder(4), &recordingStore{}, IngestConfig{}).
		WithArchive(archive).
		WithUUIDGenerator(&sequentialIDs{})

	_, err := svc.Ingest(context.Background(), []string{"a", "", "b"})

	require.NoError(t, err)
	archive.AssertExpectations(t)
}

func TestIngest_ArchiveFailureIsNotFatal(t *testing.T) {
	archive := new(MockArchiver)
	archive.On("Archive", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bucket missing"))

	store := &recordingStore{}
	svc := newTestIngest(newFakeEmbedder(4), store, IngestConfig{}).WithArchive(archive)

	report, err := svc.Ingest(context.Background(), []string{"a"})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Written)
}

func TestIngestText_UsesChunker(t *testing.T) {
	emb := newFakeEmbedder(4)
	store := &recordingStore{}
	svc := newTestIngest(emb, store, IngestConfig{})

	report, err := svc.IngestText(context.Background(), "First paragraph.\n\n  \n\nSecond paragraph.\n")

	require.NoError(t, err)
	assert.Equal(t, 2, report.Written)
	records := store.records()
	assert.Equal(t, "First paragraph.", records[0].Metadata.Text)
	assert.Equal(t, "Second paragraph.", records[1].Metadata.Text)
}

func TestIngestText_Empty(t *testing.T) {
	svc := newTestIngest(newFakeEmbedder(4), &recordingStore{}, IngestConfig{})

	_, err := svc.IngestText(context.Background(), " \n\n ")

	assert.ErrorIs(t, err, domain.ErrNoChunks)
}

func TestIngest_MemoryStoreRoundTrip(t *testing.T) {
	emb := newFakeEmbedder(8)
	store := memory.New()
	require.NoError(t, store.Validate(context.Background(), 8))
	svc := newTestIngest(emb, store, IngestConfig{BatchSize: 3, Workers: 2})

	_, err := svc.Ingest(context.Background(), texts(10))

	require.NoError(t, err)
	assert.Equal(t, 10, store.Len())
}

func TestPartition(t *testing.T) {
	chunks := make([]domain.Chunk, 7)
	batches := partition(chunks, 3)

	require.Len(t, batches, 3)
	assert.Equal(t, 0, batches[0].start)
	assert.Equal(t, 3, batches[1].start)
	assert.Equal(t, 6, batches[2].start)
	assert.Len(t, batches[2].chunks, 1)
}

func TestPreview(t *testing.T) {
	short := "short text"
	assert.Equal(t, short, preview(short))

	long := strings.Repeat("é", 200)
	p := preview(long)
	assert.True(t, strings.HasSuffix(p, "..."))
	assert.Equal(t, strings.Repeat("é", previewChars)+"...", p)
}
