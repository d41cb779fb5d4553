package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/clarify/internal/domain"
	"github.com/cloo-solutions/clarify/internal/logger"
	"github.com/cloo-solutions/clarify/internal/metrics"
	"github.com/cloo-solutions/clarify/internal/prompt"
	"github.com/cloo-solutions/clarify/internal/telemetry"
)

// DefaultTopK is the number of matches retrieved per question.
const DefaultTopK = 7

// QueryConfig tunes retrieval and synthesis.
type QueryConfig struct {
	TopK            int
	StoreTimeout    time.Duration
	NoAnswerMessage string
}

// Answer is the synthesized reply and the matches it was grounded on.
type Answer struct {
	Text    string
	Sources []domain.RetrievalMatch
}

// QueryService answers questions from the ingested document.
type QueryService struct {
	embedder  Embedder
	store     VectorStore
	completer Completer
	cfg       QueryConfig
	log       *zap.Logger
}

// NewQueryService creates a new QueryService instance
func NewQueryService(embedder Embedder, store VectorStore, completer Completer, cfg QueryConfig, log *zap.Logger) *QueryService {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.NoAnswerMessage == "" {
		cfg.NoAnswerMessage = prompt.DefaultNoAnswerMessage
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &QueryService{
		embedder:  embedder,
		store:     store,
		completer: completer,
		cfg:       cfg,
		log:       log,
	}
}

// Answer embeds the question, retrieves the nearest chunks and asks the model.
// The question is used verbatim, even when empty. Embedding and retrieval
// always run. When they yield no usable context the model call is skipped and
// the configured disclaimer is returned verbatim; with an empty context the
// grounding instruction leaves the model nothing else to say.
func (s *QueryService) Answer(ctx context.Context, question string) (*Answer, error) {
	log := logger.FromContext(ctx, s.log)
	ctx, span := telemetry.StartSpan(ctx, "query", telemetry.SpanAttributes{Operation: "query"})
	defer span.End()

	answer, err := s.answer(ctx, log, question)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("error").Inc()
		span.SetError(err)
		log.Error("query failed", zap.Error(err))
		return nil, err
	}
	return answer, nil
}

func (s *QueryService) answer(ctx context.Context, log *zap.Logger, question string) (*Answer, error) {
	telemetry.AddBreadcrumb(ctx, "query", "embedding question")
	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if err := domain.ValidateVector(vector, s.embedder.Dimensions()); err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	telemetry.AddBreadcrumb(ctx, "query", "retrieving matches")
	storeCtx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	matches, err := s.store.Query(storeCtx, vector, s.cfg.TopK)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("retrieve matches: %w", err)
	}
	if len(matches) > s.cfg.TopK {
		matches = matches[:s.cfg.TopK]
	}
	log.Debug("matches retrieved", zap.Int("count", len(matches)))

	contextText := prompt.AssembleContext(matches)
	if contextText == "" {
		metrics.QueriesTotal.WithLabelValues("no_context").Inc()
		log.Info("no context retrieved, returning disclaimer")
		return &Answer{Text: s.cfg.NoAnswerMessage, Sources: matches}, nil
	}

	telemetry.AddBreadcrumb(ctx, "query", "synthesizing answer")
	p := prompt.Build(contextText, question, s.cfg.NoAnswerMessage)
	completion, err := s.completer.Complete(ctx, p.System, p.User)
	if err != nil {
		return nil, fmt.Errorf("synthesize answer: %w", err)
	}

	metrics.QueriesTotal.WithLabelValues("ok").Inc()
	return &Answer{Text: completion, Sources: matches}, nil
}
