package admin

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cloo-solutions/clarify/internal/api/handlers"
	"github.com/cloo-solutions/clarify/internal/chunker"
	"github.com/cloo-solutions/clarify/internal/config"
	"github.com/cloo-solutions/clarify/internal/database"
	"github.com/cloo-solutions/clarify/internal/embedcache"
	"github.com/cloo-solutions/clarify/internal/openai"
	"github.com/cloo-solutions/clarify/internal/service"
	"github.com/cloo-solutions/clarify/internal/storage"
	"github.com/cloo-solutions/clarify/internal/vectorstore/memory"
	"github.com/cloo-solutions/clarify/internal/vectorstore/postgres"
)

// validatingStore is a VectorStore that can check its dimensionality at startup.
type validatingStore interface {
	service.VectorStore
	Validate(ctx context.Context, dims int) error
}

// app holds the wired pipeline shared by serve and ingest.
type app struct {
	ingest  *service.IngestService
	query   *service.QueryService
	checks  map[string]handlers.HealthCheck
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type appOptions struct {
	migrate bool
}

func buildApp(ctx context.Context, cfg *config.Config, log *zap.Logger, opts appOptions) (*app, error) {
	if !cfg.HasOpenAI() {
		return nil, openai.ErrNoAPIKey
	}

	a := &app{checks: map[string]handlers.HealthCheck{}}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := a.openStore(ctx, cfg, log, opts)
	if err != nil {
		return nil, err
	}

	oaiCfg := openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		ChatModel:           cfg.ChatModel,
		EmbedTimeout:        cfg.EmbedTimeout,
		CompletionTimeout:   cfg.CompletionTimeout,
		MaxRetries:          cfg.EmbedMaxRetries,
		RateLimit:           cfg.EmbedRateLimit,
		Logger:              log,
	}
	embeddingClient := openai.NewClient(oaiCfg)

	if err := store.Validate(ctx, embeddingClient.Dimensions()); err != nil {
		return nil, fmt.Errorf("vector store rejected %s (%d dimensions): %w",
			embeddingClient.Model(), embeddingClient.Dimensions(), err)
	}

	var embedder service.Embedder = embeddingClient
	if cfg.HasRedis() {
		redisStore, err := embedcache.NewRedisStore(embedcache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TTL:      cfg.EmbedCacheTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding cache: %w", err)
		}
		a.closers = append(a.closers, redisStore.Close)
		a.checks["redis"] = redisStore.Ping
		embedder = embedcache.New(embeddingClient, redisStore, embeddingClient.Model(), log)
		log.Info("query embedding cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.EmbedCacheTTL))
	}

	ch, err := chunker.New(chunker.Config{
		Strategy: cfg.ChunkStrategy,
		MaxChars: cfg.ChunkMaxChars,
		Overlap:  cfg.ChunkOverlap,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	a.ingest = service.NewIngestService(embedder, store, ch, service.IngestConfig{
		BatchSize:    cfg.BatchSize,
		Workers:      cfg.IngestWorkers,
		StoreTimeout: cfg.StoreTimeout,
	}, log)

	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Info("ingest archive ready", zap.String("bucket", s3Client.Bucket()))
		a.ingest.WithArchive(storage.NewIngestArchive(s3Client))
	}

	a.query = service.NewQueryService(embedder, store, openai.NewCompleter(oaiCfg), service.QueryConfig{
		TopK:            cfg.TopK,
		StoreTimeout:    cfg.StoreTimeout,
		NoAnswerMessage: cfg.NoAnswerMessage,
	}, log)

	ok = true
	return a, nil
}

// openStore selects Postgres when a database is configured and the in-memory store otherwise.
func (a *app) openStore(ctx context.Context, cfg *config.Config, log *zap.Logger, opts appOptions) (validatingStore, error) {
	if !cfg.HasDatabase() {
		log.Warn("DATABASE_URL not set, using the in-memory vector store; ingested data is lost on restart")
		return memory.New(), nil
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	a.checks["database"] = pool.Ping
	log.Info("connected to database")

	if opts.migrate {
		if err := database.RunMigrations(cfg.DatabaseURL, log); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return postgres.New(pool), nil
}
