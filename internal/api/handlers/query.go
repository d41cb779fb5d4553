package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/cloo-solutions/clarify/internal/api"
	"github.com/cloo-solutions/clarify/internal/api/middleware"
	"github.com/cloo-solutions/clarify/internal/domain"
	"github.com/cloo-solutions/clarify/internal/logger"
	"github.com/cloo-solutions/clarify/internal/service"
	"github.com/cloo-solutions/clarify/internal/telemetry"
)

type QueryService interface {
	Answer(ctx context.Context, question string) (*service.Answer, error)
}

type QueryHandler struct {
	svc QueryService
}

func NewQueryHandler(svc QueryService) *QueryHandler {
	return &QueryHandler{svc: svc}
}

type QueryRequest struct {
	Question *string `json:"question"`
}

type SourceResponse struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Text  string  `json:"text"`
}

type QueryResponse struct {
	Answer  string           `json:"answer"`
	Sources []SourceResponse `json:"sources"`
}

// Query handles POST /api/query. Pipeline failures surface as a generic
// apology; the cause goes to the log and Sentry.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), nil)

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, domain.ErrInvalidBody.Message)
		return
	}
	if req.Question == nil || strings.TrimSpace(*req.Question) == "" {
		api.Error(w, http.StatusBadRequest, domain.ErrMissingQuestion.Message)
		return
	}

	ctx, span := telemetry.StartSpan(r.Context(), "api.query", telemetry.SpanAttributes{
		RequestID: middleware.GetRequestID(r.Context()),
		Operation: "query",
	})
	defer span.End()

	answer, err := h.svc.Answer(ctx, *req.Question)
	if err != nil {
		span.SetError(err)
		log.Error("query pipeline failed", zap.Error(err))
		api.Error(w, http.StatusInternalServerError, api.GenericQueryError)
		return
	}

	sources := make([]SourceResponse, 0, len(answer.Sources))
	for _, m := range answer.Sources {
		sources = append(sources, SourceResponse{ID: m.RecordID, Score: m.Score, Text: m.Text})
	}
	api.JSON(w, http.StatusOK, QueryResponse{Answer: answer.Text, Sources: sources})
}
