package storage

import (
	"context"
	"time"
)

// objectWriter is the subset of S3Client the archive needs.
type objectWriter interface {
	PutJSON(ctx context.Context, key string, v any) error
}

// IngestDocument is the archived form of one ingest request.
type IngestDocument struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	Chunks     []string  `json:"chunks"`
}

// IngestArchive keeps a copy of every accepted ingest request in object storage.
type IngestArchive struct {
	store objectWriter
	now   func() time.Time
}

// NewIngestArchive creates an archive writing through store.
func NewIngestArchive(store objectWriter) *IngestArchive {
	return &IngestArchive{store: store, now: time.Now}
}

// ArchiveKey returns the object key for an ingest id.
func ArchiveKey(id string) string {
	return "ingest/" + id + ".json"
}

// Archive writes the chunk list as ingest/<id>.json.
func (a *IngestArchive) Archive(ctx context.Context, id string, chunks []string) error {
	return a.store.PutJSON(ctx, ArchiveKey(id), IngestDocument{
		ID:         id,
		ReceivedAt: a.now().UTC(),
		Chunks:     chunks,
	})
}
