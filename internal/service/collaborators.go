package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/cloo-solutions/clarify/internal/domain"
)

// Embedder maps text into the configured embedding space.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error)
	Embed(ctx context.Context, text string) (domain.EmbeddingVector, error)
	Dimensions() int
}

// VectorStore persists vector records and answers similarity queries.
type VectorStore interface {
	Upsert(ctx context.Context, records []domain.VectorRecord) error
	Query(ctx context.Context, vector domain.EmbeddingVector, topK int) ([]domain.RetrievalMatch, error)
}

// Completer sends a system and a user message to a language model.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Archiver keeps a copy of accepted ingest requests.
type Archiver interface {
	Archive(ctx context.Context, id string, chunks []string) error
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}
