package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cloo-solutions/clarify/internal/domain"
	"github.com/cloo-solutions/clarify/internal/metrics"
)

const (
	// DefaultEmbeddingModel is used when no model is configured
	DefaultEmbeddingModel = string(openai.SmallEmbedding3)
	// DefaultEmbeddingDimensions is the output size of text-embedding-3-small
	DefaultEmbeddingDimensions = 1536
	// DefaultChatModel is used when no chat model is configured
	DefaultChatModel = openai.GPT4oMini
)

// ErrNoAPIKey is returned when no API key is configured
var ErrNoAPIKey = errors.New("OpenAI API key not set")

// EmbeddingAPI is the raw embeddings endpoint.
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, int, error)
}

// ChatAPI is the raw chat completions endpoint.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error)
}

// Config configures both the embedder and the completer.
type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      string
	EmbeddingDimensions int
	ChatModel           string

	EmbedTimeout      time.Duration
	CompletionTimeout time.Duration
	// MaxRetries bounds embedding retries; completions are never retried.
	MaxRetries int
	// RateLimit caps embedding requests per second; zero disables pacing.
	RateLimit float64

	Logger *zap.Logger
}

func (c *Config) applyDefaults() {
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = DefaultEmbeddingModel
	}
	if c.EmbeddingDimensions <= 0 {
		c.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	if c.ChatModel == "" {
		c.ChatModel = DefaultChatModel
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// OpenAIAdapter talks to an OpenAI-compatible API.
type OpenAIAdapter struct {
	client         *openai.Client
	embeddingModel string
	chatModel      string
	dimensions     int
}

// NewOpenAIAdapter creates an adapter for the given configuration.
func NewOpenAIAdapter(cfg Config) *OpenAIAdapter {
	cfg.applyDefaults()
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIAdapter{
		client:         openai.NewClientWithConfig(clientCfg),
		embeddingModel: cfg.EmbeddingModel,
		chatModel:      cfg.ChatModel,
		dimensions:     cfg.EmbeddingDimensions,
	}
}

// CreateEmbeddings embeds texts in one request and returns vectors in input order.
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, int, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(a.embeddingModel),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	// Only the text-embedding-3 family accepts a reduced output size.
	if strings.HasPrefix(a.embeddingModel, "text-embedding-3") {
		req.Dimensions = a.dimensions
	}

	resp, err := a.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, 0, err
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}
	return vectors, resp.Usage.TotalTokens, nil
}

// CreateChatCompletion returns the first choice's content.
func (a *OpenAIAdapter) CreateChatCompletion(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    a.chatModel,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Client is the embedding collaborator used by ingestion and querying.
type Client struct {
	api        EmbeddingAPI
	model      string
	dimensions int
	timeout    time.Duration
	maxRetries int
	limiter    *rate.Limiter
	log        *zap.Logger
}

// NewClient creates an embedding client backed by the OpenAI API.
func NewClient(cfg Config) *Client {
	cfg.applyDefaults()
	return newClient(NewOpenAIAdapter(cfg), cfg)
}

func newClient(api EmbeddingAPI, cfg Config) *Client {
	cfg.applyDefaults()
	c := &Client{
		api:        api,
		model:      cfg.EmbeddingModel,
		dimensions: cfg.EmbeddingDimensions,
		timeout:    cfg.EmbedTimeout,
		maxRetries: cfg.MaxRetries,
		log:        cfg.Logger,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c
}

// Dimensions returns the configured output dimensionality.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Model returns the embedding model name.
func (c *Client) Model() string {
	return c.model
}

// Embed embeds a single text. An empty text is sent as-is.
func (c *Client) Embed(ctx context.Context, text string) (domain.EmbeddingVector, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts with one API call (plus bounded retries) and
// checks that every vector has the configured dimensionality.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var raw [][]float32
	attempt := 0
	operation := func() error {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		callCtx, cancel := c.withTimeout(ctx)
		defer cancel()

		start := time.Now()
		vectors, tokens, err := c.api.CreateEmbeddings(callCtx, texts)
		if err != nil {
			metrics.EmbeddingRequestsTotal.WithLabelValues(c.model, "error").Inc()
			if !retryable(ctx, err) {
				return backoff.Permanent(err)
			}
			c.log.Warn("embedding request failed, retrying",
				zap.String("model", c.model),
				zap.Int("attempt", attempt),
				zap.Int("batch_size", len(texts)),
				zap.Error(err),
			)
			return err
		}

		metrics.EmbeddingRequestsTotal.WithLabelValues(c.model, "success").Inc()
		metrics.EmbeddingRequestDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())
		if tokens > 0 {
			metrics.EmbeddingTokensTotal.WithLabelValues(c.model).Add(float64(tokens))
		}
		raw = vectors
		return nil
	}

	var policy backoff.BackOff = backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(250*time.Millisecond),
		backoff.WithMaxInterval(5*time.Second),
	)
	policy = backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(c.maxRetries, 0))), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, domain.ErrEmbeddingProvider.WithCause(parseAPIError(err))
	}

	if len(raw) != len(texts) {
		return nil, domain.ErrEmbeddingProvider.WithCause(
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(raw)))
	}

	out := make([]domain.EmbeddingVector, len(raw))
	for i, v := range raw {
		if err := domain.ValidateVector(v, c.dimensions); err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// retryable reports whether a failed call is worth repeating: rate limits,
// server errors, and transport failures are; client errors and a cancelled
// caller are not.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}

// parseAPIError extracts a readable message from an API failure.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("API error %d: %s", reqErr.HTTPStatusCode, detail)
		}
		return fmt.Errorf("API error %d: %w", reqErr.HTTPStatusCode, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}

	return err
}

// extractDetail reads the "detail" field some OpenAI-compatible providers return.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		return parsed.Detail
	}
	return ""
}
