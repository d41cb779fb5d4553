package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cloo-solutions/clarify/internal/api"
	"github.com/cloo-solutions/clarify/internal/api/middleware"
	"github.com/cloo-solutions/clarify/internal/domain"
	"github.com/cloo-solutions/clarify/internal/logger"
	"github.com/cloo-solutions/clarify/internal/telemetry"
)

type IngestService interface {
	Ingest(ctx context.Context, chunks []string) (*domain.IngestReport, error)
}

type IngestHandler struct {
	svc IngestService
}

func NewIngestHandler(svc IngestService) *IngestHandler {
	return &IngestHandler{svc: svc}
}

type IngestRequest struct {
	Chunks []string `json:"chunks"`
}

type BatchErrorResponse struct {
	Batch     int    `json:"batch"`
	Start     int    `json:"start"`
	Size      int    `json:"size"`
	Error     string `json:"error,omitempty"`
	Abandoned bool   `json:"abandoned,omitempty"`
}

type IngestReportResponse struct {
	Chunks    int                  `json:"chunks"`
	Batches   int                  `json:"batches"`
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
	Abandoned int                  `json:"abandoned"`
	Written   int                  `json:"written"`
	Dropped   int                  `json:"dropped"`
	Errors    []BatchErrorResponse `json:"errors,omitempty"`
}

type IngestResponse struct {
	Status string               `json:"status"`
	Report IngestReportResponse `json:"report"`
}

// Ingest handles POST /api/ingest with a body of pre-chunked text.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), nil)

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, domain.ErrInvalidBody.Message)
		return
	}
	if len(req.Chunks) == 0 {
		api.Error(w, http.StatusBadRequest, "chunks are required")
		return
	}

	ctx, span := telemetry.StartSpan(r.Context(), "api.ingest", telemetry.SpanAttributes{
		RequestID: middleware.GetRequestID(r.Context()),
		Operation: "ingest",
		Chunks:    len(req.Chunks),
	})
	defer span.End()

	report, err := h.svc.Ingest(ctx, req.Chunks)
	if err != nil && report == nil {
		if !domain.IsCode(err, domain.ErrCodeValidation) {
			span.SetError(err)
			log.Error("ingest failed", zap.Error(err))
		}
		api.HandleError(w, err)
		return
	}

	resp := IngestResponse{
		Status: string(report.Status()),
		Report: toReportResponse(report),
	}
	if errors.Is(err, domain.ErrIngestFailed) {
		telemetry.CaptureError(ctx, err)
		api.JSON(w, http.StatusBadGateway, resp)
		return
	}
	api.JSON(w, http.StatusOK, resp)
}

func toReportResponse(r *domain.IngestReport) IngestReportResponse {
	resp := IngestReportResponse{
		Chunks:    r.Chunks,
		Batches:   r.Batches,
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Abandoned: r.Abandoned,
		Written:   r.Written,
		Dropped:   r.Dropped,
	}
	for _, o := range r.Outcomes {
		if o.OK() {
			continue
		}
		entry := BatchErrorResponse{
			Batch:     o.Index,
			Start:     o.Start,
			Size:      o.Size,
			Abandoned: o.Abandoned,
		}
		if o.Err != nil {
			entry.Error = batchReason(o.Err)
		}
		resp.Errors = append(resp.Errors, entry)
	}
	return resp
}

// batchReason exposes only the domain message of a batch failure.
func batchReason(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
