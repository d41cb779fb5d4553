package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/clarify/internal/domain"
)

// fakeEmbedder derives vectors from text so equal texts get equal vectors.
type fakeEmbedder struct {
	mu          sync.Mutex
	dims        int
	batches     [][]string
	single      []string
	inFlight    int
	maxInFlight int
	delay       time.Duration
	// fail returns an error for a batch, or nil.
	fail func(texts []string) error
	// badDims, when set, is the length of every returned vector.
	badDims int
	onBatch func(texts []string)
	// checkCtx makes EmbedBatch fail with ctx.Err() once ctx is done.
	checkCtx bool
}

func newFakeEmbedder(dims int) *fakeEmbedder {
	return &fakeEmbedder{dims: dims}
}

func (e *fakeEmbedder) vector(text string) domain.EmbeddingVector {
	n := e.dims
	if e.badDims > 0 {
		n = e.badDims
	}
	v := make(domain.EmbeddingVector, n)
	v[0] = 0.01
	for i, r := range text {
		v[(i+int(r))%n] += 1
	}
	return v
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error) {
	e.mu.Lock()
	e.batches = append(e.batches, append([]string(nil), texts...))
	e.inFlight++
	e.maxInFlight = max(e.maxInFlight, e.inFlight)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inFlight--
		e.mu.Unlock()
	}()

	if e.onBatch != nil {
		e.onBatch(texts)
	}
	if e.checkCtx && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.fail != nil {
		if err := e.fail(texts); err != nil {
			return nil, err
		}
	}

	out := make([]domain.EmbeddingVector, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingVector, error) {
	e.mu.Lock()
	e.single = append(e.single, text)
	e.mu.Unlock()
	if e.fail != nil {
		if err := e.fail([]string{text}); err != nil {
			return nil, err
		}
	}
	return e.vector(text), nil
}

func (e *fakeEmbedder) Dimensions() int {
	return e.dims
}

func (e *fakeEmbedder) batchSizes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	sizes := make([]int, len(e.batches))
	for i, b := range e.batches {
		sizes[i] = len(b)
	}
	return sizes
}

// recordingStore keeps every upserted batch and can fail selected ones.
type recordingStore struct {
	mu      sync.Mutex
	batches [][]domain.VectorRecord
	fail    func(records []domain.VectorRecord) error
	matches []domain.RetrievalMatch
	err     error
}

func (s *recordingStore) Upsert(_ context.Context, records []domain.VectorRecord) error {
	if s.fail != nil {
		if err := s.fail(records); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, records)
	return nil
}

func (s *recordingStore) Query(_ context.Context, _ domain.EmbeddingVector, _ int) ([]domain.RetrievalMatch, error) {
	return s.matches, s.err
}

func (s *recordingStore) records() []domain.VectorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []domain.VectorRecord
	for _, b := range s.batches {
		all = append(all, b...)
	}
	return all
}

// MockCompleter is a mock implementation of Completer
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	args := m.Called(ctx, systemPrompt, userPrompt)
	return args.String(0), args.Error(1)
}

// MockArchiver is a mock implementation of Archiver
type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) Archive(ctx context.Context, id string, chunks []string) error {
	args := m.Called(ctx, id, chunks)
	return args.Error(0)
}

type sequentialIDs struct {
	mu sync.Mutex
	n  int
}

func (g *sequentialIDs) NewString() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("chunk number %d", i)
	}
	return out
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
