package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/clarify/internal/domain"
)

// Store persists vector records in Postgres with pgvector and ranks them by cosine distance.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store on an existing pool. The schema is managed by migrations.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Validate checks that stored vectors match the configured dimensionality.
// An empty table always passes.
func (s *Store) Validate(ctx context.Context, dims int) error {
	var stored int
	err := s.pool.QueryRow(ctx, `SELECT vector_dims(embedding) FROM vector_records LIMIT 1`).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return domain.ErrVectorStore.WithCause(fmt.Errorf("read stored dimensions: %w", err))
	}
	if stored != dims {
		return domain.ErrDimensionMismatch.WithCause(
			fmt.Errorf("store holds %d-dimensional vectors, configured %d", stored, dims))
	}
	return nil
}

// Upsert writes one batch in a single transaction. Either every record lands or none does.
// Records are immutable: an id that is already stored keeps its original row.
func (s *Store) Upsert(ctx context.Context, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.ErrVectorStore.WithCause(err)
	}

	if err := upsertRecords(ctx, tx, records); err != nil {
		_ = tx.Rollback(ctx)
		return domain.ErrVectorStore.WithCause(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ErrVectorStore.WithCause(err)
	}
	return nil
}

func upsertRecords(ctx context.Context, tx pgx.Tx, records []domain.VectorRecord) error {
	for _, r := range records {
		_, err := tx.Exec(ctx,
			`INSERT INTO vector_records (id, embedding, text, sequence_index)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO NOTHING`,
			r.ID,
			pgvector.NewVector(r.Values),
			r.Metadata.Text,
			r.Metadata.SequenceIndex,
		)
		if err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}
	return nil
}

// Query returns up to topK records ordered by descending cosine similarity.
func (s *Store) Query(ctx context.Context, vector domain.EmbeddingVector, topK int) ([]domain.RetrievalMatch, error) {
	if topK <= 0 {
		return []domain.RetrievalMatch{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, text, 1 - (embedding <=> $1) AS score
		 FROM vector_records
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(vector),
		topK,
	)
	if err != nil {
		return nil, domain.ErrVectorStore.WithCause(err)
	}
	defer rows.Close()

	matches := make([]domain.RetrievalMatch, 0, topK)
	for rows.Next() {
		var m domain.RetrievalMatch
		var score float64
		if err := rows.Scan(&m.RecordID, &m.Text, &score); err != nil {
			return nil, domain.ErrVectorStore.WithCause(err)
		}
		m.Score = similarity(score)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrVectorStore.WithCause(err)
	}
	return matches, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM vector_records`).Scan(&n); err != nil {
		return 0, domain.ErrVectorStore.WithCause(err)
	}
	return n, nil
}

// similarity maps a scanned cosine score to a finite value. pgvector yields
// NaN when either vector has zero norm.
func similarity(score float64) float32 {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	return float32(score)
}
