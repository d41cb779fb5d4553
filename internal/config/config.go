package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"prod"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Empty DatabaseURL selects the in-memory vector store.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	ChatModel           string `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`

	BatchSize     int `envconfig:"BATCH_SIZE" default:"100"`
	TopK          int `envconfig:"TOP_K" default:"7"`
	IngestWorkers int `envconfig:"INGEST_WORKERS" default:"1"`

	ChunkStrategy string `envconfig:"CHUNK_STRATEGY" default:"paragraph"`
	ChunkMaxChars int    `envconfig:"CHUNK_MAX_CHARS" default:"500"`
	ChunkOverlap  int    `envconfig:"CHUNK_OVERLAP" default:"0"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5500,http://127.0.0.1:5500"`

	EmbedTimeout      time.Duration `envconfig:"EMBED_TIMEOUT" default:"30s"`
	StoreTimeout      time.Duration `envconfig:"STORE_TIMEOUT" default:"10s"`
	CompletionTimeout time.Duration `envconfig:"COMPLETION_TIMEOUT" default:"60s"`
	EmbedMaxRetries   int           `envconfig:"EMBED_MAX_RETRIES" default:"2"`
	// Requests per second sent to the embedding endpoint; zero disables pacing.
	EmbedRateLimit float64 `envconfig:"EMBED_RATE_LIMIT" default:"0"`

	NoAnswerMessage string `envconfig:"NO_ANSWER_MESSAGE" default:"The provided document does not contain the answer to this question."`
	MaxBodyBytes    int64  `envconfig:"MAX_BODY_BYTES" default:"5242880"`

	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	EmbedCacheTTL time.Duration `envconfig:"EMBED_CACHE_TTL" default:"24h"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"clarify-ingest"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	SentryDSN string `envconfig:"SENTRY_DSN"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("CLARIFY", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("TOP_K must be positive, got %d", c.TopK))
	}
	if c.IngestWorkers <= 0 {
		errs = append(errs, fmt.Errorf("INGEST_WORKERS must be positive, got %d", c.IngestWorkers))
	}
	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions))
	}
	if c.EmbeddingModel == "" {
		errs = append(errs, errors.New("EMBEDDING_MODEL is required"))
	}
	if c.ChatModel == "" {
		errs = append(errs, errors.New("CHAT_MODEL is required"))
	}
	switch c.ChunkStrategy {
	case "paragraph", "fixed":
	default:
		errs = append(errs, fmt.Errorf("CHUNK_STRATEGY must be paragraph or fixed, got %q", c.ChunkStrategy))
	}
	if c.EmbedMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("EMBED_MAX_RETRIES cannot be negative, got %d", c.EmbedMaxRetries))
	}
	if c.NoAnswerMessage == "" {
		errs = append(errs, errors.New("NO_ANSWER_MESSAGE cannot be empty"))
	}
	return errors.Join(errs...)
}

func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}
