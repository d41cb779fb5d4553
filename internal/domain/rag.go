package domain

// Chunk is a contiguous, non-blank span of document text.
// Index is the chunk's position within the source document.
type Chunk struct {
	Index int
	Text  string
}

// EmbeddingVector is a fixed-length point in the embedding model's semantic space.
type EmbeddingVector []float32

// RecordMetadata is the payload stored next to every vector.
type RecordMetadata struct {
	Text          string `json:"text"`
	SequenceIndex int    `json:"sequence_index"`
}

// VectorRecord is what the vector store persists. It is never mutated after the write.
type VectorRecord struct {
	ID       string
	Values   EmbeddingVector
	Metadata RecordMetadata
}

// RetrievalMatch is a read-only projection of a stored record returned by similarity search.
// Matches are ordered by descending Score; the order of equal scores is store-defined
// and must not be relied upon.
type RetrievalMatch struct {
	RecordID string
	Score    float32
	Text     string
}

// ValidateVector checks a vector against the configured dimensionality.
func ValidateVector(v EmbeddingVector, dimensions int) error {
	if len(v) == 0 {
		return ErrDimensionMismatch.WithCause(errEmptyVector)
	}
	if len(v) != dimensions {
		return ErrDimensionMismatch.WithCause(&dimensionError{got: len(v), want: dimensions})
	}
	return nil
}
