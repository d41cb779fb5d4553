package openai

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/clarify/internal/domain"
	"github.com/cloo-solutions/clarify/internal/metrics"
)

// Completer is the language-model collaborator. It performs exactly one call per request.
type Completer struct {
	api     ChatAPI
	model   string
	timeout time.Duration
}

// NewCompleter creates a chat completer backed by the OpenAI API.
func NewCompleter(cfg Config) *Completer {
	cfg.applyDefaults()
	return &Completer{
		api:     NewOpenAIAdapter(cfg),
		model:   cfg.ChatModel,
		timeout: cfg.CompletionTimeout,
	}
}

// Complete sends a system and a user message and returns the completion unmodified.
func (c *Completer) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	answer, err := c.api.CreateChatCompletion(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: userPrompt},
	})
	if err != nil {
		metrics.CompletionRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", domain.ErrCompletionProvider.WithCause(parseAPIError(err))
	}

	metrics.CompletionRequestsTotal.WithLabelValues(c.model, "success").Inc()
	metrics.CompletionRequestDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())
	return answer, nil
}
