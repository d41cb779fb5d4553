package domain

import (
	"errors"
	"fmt"
)

var errEmptyVector = errors.New("empty vector")

type dimensionError struct {
	got, want int
}

func (e *dimensionError) Error() string {
	return fmt.Sprintf("got %d dimensions, expected %d", e.got, e.want)
}

// IngestStatus summarises an ingest run.
type IngestStatus string

const (
	IngestStatusOK        IngestStatus = "ok"
	IngestStatusFailed    IngestStatus = "failed"
	IngestStatusCancelled IngestStatus = "cancelled"
)

// BatchOutcome is the result of embedding and writing one batch.
type BatchOutcome struct {
	Index   int
	Start   int
	Size    int
	Written int
	Err     error
	// Abandoned is set when the caller went away before the batch was written.
	// Err then holds the context error, if the batch had started.
	Abandoned bool
}

// OK reports whether the batch was written.
func (o BatchOutcome) OK() bool {
	return o.Err == nil && !o.Abandoned
}

// IngestReport collects per-batch outcomes into a structured summary.
type IngestReport struct {
	Chunks    int
	Batches   int
	Succeeded int
	Failed    int
	Abandoned int
	Written   int
	Dropped   int
	Outcomes  []BatchOutcome
}

// NewIngestReport builds a report from outcomes ordered by batch index.
func NewIngestReport(chunks int, outcomes []BatchOutcome) *IngestReport {
	r := &IngestReport{
		Chunks:   chunks,
		Batches:  len(outcomes),
		Outcomes: outcomes,
	}
	for _, o := range outcomes {
		switch {
		case o.Abandoned:
			r.Abandoned++
			r.Dropped += o.Size
		case o.Err != nil:
			r.Failed++
			r.Dropped += o.Size
		default:
			r.Succeeded++
			r.Written += o.Written
		}
	}
	return r
}

// Status derives the overall status. Partial success is still ok.
func (r *IngestReport) Status() IngestStatus {
	switch {
	case r.Succeeded > 0:
		return IngestStatusOK
	case r.Failed > 0:
		return IngestStatusFailed
	case r.Abandoned > 0:
		return IngestStatusCancelled
	default:
		return IngestStatusOK
	}
}

// Err returns ErrIngestFailed when every attempted batch failed.
func (r *IngestReport) Err() error {
	if r.Status() == IngestStatusFailed {
		return ErrIngestFailed
	}
	return nil
}
