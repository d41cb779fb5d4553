package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/cloo-solutions/clarify/internal/domain"
)

// Store is an in-memory vector store using brute-force cosine similarity.
type Store struct {
	mu      sync.RWMutex
	dims    int
	records []domain.VectorRecord
	ids     map[string]int
}

// New creates an empty store.
func New() *Store {
	return &Store{ids: make(map[string]int)}
}

// Validate pins the store's dimensionality. It fails if records of another
// dimensionality were already written.
func (s *Store) Validate(_ context.Context, dims int) error {
	if dims <= 0 {
		return domain.ErrDimensionMismatch.WithCause(fmt.Errorf("invalid dimensions %d", dims))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) > 0 && len(s.records[0].Values) != dims {
		return domain.ErrDimensionMismatch.WithCause(
			fmt.Errorf("store holds %d-dimensional vectors, configured %d", len(s.records[0].Values), dims))
	}
	s.dims = dims
	return nil
}

// Upsert appends a batch under one lock. A record whose id is already stored is
// skipped; stored records never change.
// Nothing is written if any vector has the wrong dimensionality.
func (s *Store) Upsert(_ context.Context, records []domain.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		dims := s.dims
		if dims == 0 && len(s.records) > 0 {
			dims = len(s.records[0].Values)
		}
		if dims == 0 {
			dims = len(records[0].Values)
		}
		if err := domain.ValidateVector(r.Values, dims); err != nil {
			return err
		}
	}

	for _, r := range records {
		if _, ok := s.ids[r.ID]; ok {
			continue
		}
		s.ids[r.ID] = len(s.records)
		s.records = append(s.records, r)
	}
	return nil
}

// Query returns up to topK records ordered by descending cosine similarity.
// Equal scores keep insertion order.
func (s *Store) Query(_ context.Context, vector domain.EmbeddingVector, topK int) ([]domain.RetrievalMatch, error) {
	if topK <= 0 {
		return []domain.RetrievalMatch{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dims > 0 {
		if err := domain.ValidateVector(vector, s.dims); err != nil {
			return nil, err
		}
	}

	matches := make([]domain.RetrievalMatch, 0, len(s.records))
	for _, r := range s.records {
		matches = append(matches, domain.RetrievalMatch{
			RecordID: r.ID,
			Score:    cosine(r.Values, vector),
			Text:     r.Metadata.Text,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func cosine(a, b []float32) float32 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
