package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/clarify/internal/chunker"
	"github.com/cloo-solutions/clarify/internal/domain"
	"github.com/cloo-solutions/clarify/internal/logger"
	"github.com/cloo-solutions/clarify/internal/metrics"
	"github.com/cloo-solutions/clarify/internal/telemetry"
)

const (
	// DefaultBatchSize is the maximum number of chunks per embedding call.
	DefaultBatchSize = 100
	previewChars     = 150
)

// IngestConfig tunes batching and concurrency.
type IngestConfig struct {
	BatchSize int
	// Workers bounds concurrently processed batches. One means sequential.
	Workers      int
	StoreTimeout time.Duration
}

// IngestService embeds chunks in batches and writes them to the vector store.
type IngestService struct {
	embedder Embedder
	store    VectorStore
	chunker  chunker.Chunker
	archive  Archiver
	ids      UUIDGenerator
	cfg      IngestConfig
	log      *zap.Logger
}

// NewIngestService creates a new IngestService instance
func NewIngestService(embedder Embedder, store VectorStore, ch chunker.Chunker, cfg IngestConfig, log *zap.Logger) *IngestService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if ch == nil {
		ch = chunker.Paragraph{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &IngestService{
		embedder: embedder,
		store:    store,
		chunker:  ch,
		ids:      &DefaultUUIDGenerator{},
		cfg:      cfg,
		log:      log,
	}
}

// WithArchive enables archiving of accepted requests.
func (s *IngestService) WithArchive(a Archiver) *IngestService {
	s.archive = a
	return s
}

// WithUUIDGenerator replaces the record id source.
func (s *IngestService) WithUUIDGenerator(g UUIDGenerator) *IngestService {
	s.ids = g
	return s
}

// Ingest embeds and stores pre-chunked text. Blank entries are dropped; the
// remaining chunks keep their position in the request as sequence index.
// It returns ErrNoChunks when nothing is left to ingest.
func (s *IngestService) Ingest(ctx context.Context, texts []string) (*domain.IngestReport, error) {
	chunks := make([]domain.Chunk, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{Index: i, Text: t})
	}
	return s.ingestChunks(ctx, chunks)
}

// IngestText splits raw document text with the configured chunker, then ingests it.
func (s *IngestService) IngestText(ctx context.Context, text string) (*domain.IngestReport, error) {
	return s.ingestChunks(ctx, chunker.Collect(s.chunker.Chunks(text)))
}

func (s *IngestService) ingestChunks(ctx context.Context, chunks []domain.Chunk) (*domain.IngestReport, error) {
	if len(chunks) == 0 {
		return nil, domain.ErrNoChunks
	}

	log := logger.FromContext(ctx, s.log)
	ctx, span := telemetry.StartSpan(ctx, "ingest", telemetry.SpanAttributes{
		Operation: "ingest",
		Chunks:    len(chunks),
	})
	defer span.End()

	if log.Core().Enabled(zap.DebugLevel) {
		for _, c := range chunks {
			log.Debug("chunk received", zap.Int("index", c.Index), zap.String("preview", preview(c.Text)))
		}
	}

	s.archiveChunks(ctx, log, chunks)

	batches := partition(chunks, s.cfg.BatchSize)
	log.Info("ingest started",
		zap.Int("chunks", len(chunks)),
		zap.Int("batches", len(batches)),
		zap.Int("workers", s.cfg.Workers),
	)

	outcomes := s.runBatches(ctx, log, batches)
	report := domain.NewIngestReport(len(chunks), outcomes)

	span.SetData("status", string(report.Status()))
	span.SetData("written", report.Written)
	log.Info("ingest finished",
		zap.String("status", string(report.Status())),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("abandoned", report.Abandoned),
		zap.Int("written", report.Written),
	)

	if err := report.Err(); err != nil {
		span.SetError(err)
		return report, err
	}
	return report, nil
}

// runBatches processes batches sequentially or under a bounded worker group.
// A failing batch never cancels its siblings. Batches not started once ctx is
// done, or cut short by it, are recorded as abandoned.
func (s *IngestService) runBatches(ctx context.Context, log *zap.Logger, batches []batch) []domain.BatchOutcome {
	outcomes := make([]domain.BatchOutcome, len(batches))

	if s.cfg.Workers == 1 {
		for i, b := range batches {
			outcomes[i] = s.processBatch(ctx, log, b)
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, b := range batches {
		g.Go(func() error {
			outcomes[i] = s.processBatch(ctx, log, b)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *IngestService) processBatch(ctx context.Context, log *zap.Logger, b batch) domain.BatchOutcome {
	if ctx.Err() != nil {
		metrics.IngestBatchesTotal.WithLabelValues("abandoned").Inc()
		metrics.IngestChunksTotal.WithLabelValues("dropped").Add(float64(len(b.chunks)))
		return b.abandoned()
	}

	outcome := b.outcome()
	ctx, span := telemetry.StartSpan(ctx, "ingest.batch", telemetry.SpanAttributes{
		Operation: "ingest.batch",
		Batch:     &b.index,
		Chunks:    len(b.chunks),
	})
	defer span.End()

	written, err := s.writeBatch(ctx, b)
	if err != nil && ctx.Err() != nil {
		// The caller went away mid-batch; this is not a provider failure.
		outcome.Err = err
		outcome.Abandoned = true
		metrics.IngestBatchesTotal.WithLabelValues("abandoned").Inc()
		metrics.IngestChunksTotal.WithLabelValues("dropped").Add(float64(len(b.chunks)))
		log.Info("ingest batch abandoned", zap.Int("batch", b.index), zap.Error(err))
		return outcome
	}
	if err != nil {
		outcome.Err = err
		span.SetError(err)
		metrics.IngestBatchesTotal.WithLabelValues("failed").Inc()
		metrics.IngestChunksTotal.WithLabelValues("dropped").Add(float64(len(b.chunks)))
		log.Warn("ingest batch failed",
			zap.Int("batch", b.index),
			zap.Int("start", b.start),
			zap.Int("size", len(b.chunks)),
			zap.Error(err),
		)
		return outcome
	}

	outcome.Written = written
	metrics.IngestBatchesTotal.WithLabelValues("ok").Inc()
	metrics.IngestChunksTotal.WithLabelValues("written").Add(float64(written))
	log.Debug("ingest batch written", zap.Int("batch", b.index), zap.Int("written", written))
	return outcome
}

func (s *IngestService) writeBatch(ctx context.Context, b batch) (int, error) {
	texts := make([]string, len(b.chunks))
	for i, c := range b.chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed batch %d: %w", b.index, err)
	}
	if len(vectors) != len(b.chunks) {
		return 0, domain.ErrEmbeddingProvider.WithCause(
			fmt.Errorf("batch %d: expected %d embeddings, got %d", b.index, len(b.chunks), len(vectors)))
	}

	dims := s.embedder.Dimensions()
	records := make([]domain.VectorRecord, len(b.chunks))
	for i, c := range b.chunks {
		if err := domain.ValidateVector(vectors[i], dims); err != nil {
			return 0, fmt.Errorf("batch %d chunk %d: %w", b.index, c.Index, err)
		}
		records[i] = domain.VectorRecord{
			ID:     s.ids.NewString(),
			Values: vectors[i],
			Metadata: domain.RecordMetadata{
				Text:          c.Text,
				SequenceIndex: c.Index,
			},
		}
	}

	storeCtx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.store.Upsert(storeCtx, records); err != nil {
		return 0, fmt.Errorf("upsert batch %d: %w", b.index, err)
	}
	return len(records), nil
}

func (s *IngestService) archiveChunks(ctx context.Context, log *zap.Logger, chunks []domain.Chunk) {
	if s.archive == nil {
		return
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	id := s.ids.NewString()
	storeCtx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.archive.Archive(storeCtx, id, texts); err != nil {
		log.Warn("ingest archive failed", zap.String("archive_id", id), zap.Error(err))
		return
	}
	log.Debug("ingest archived", zap.String("archive_id", id))
}

type batch struct {
	index  int
	start  int
	chunks []domain.Chunk
}

func (b batch) outcome() domain.BatchOutcome {
	return domain.BatchOutcome{Index: b.index, Start: b.start, Size: len(b.chunks)}
}

func (b batch) abandoned() domain.BatchOutcome {
	o := b.outcome()
	o.Abandoned = true
	return o
}

// partition splits chunks into ceil(n/size) contiguous batches in order.
func partition(chunks []domain.Chunk, size int) []batch {
	batches := make([]batch, 0, (len(chunks)+size-1)/size)
	for start := 0; start < len(chunks); start += size {
		end := min(start+size, len(chunks))
		batches = append(batches, batch{
			index:  len(batches),
			start:  start,
			chunks: chunks[start:end],
		})
	}
	return batches
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewChars {
		return text
	}
	return string([]rune(text)[:previewChars]) + "..."
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
