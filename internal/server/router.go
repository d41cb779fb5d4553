package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cloo-solutions/clarify/internal/api"
	"github.com/cloo-solutions/clarify/internal/api/handlers"
	"github.com/cloo-solutions/clarify/internal/api/middleware"
	"github.com/cloo-solutions/clarify/internal/metrics"
)

const defaultMaxBodyBytes int64 = 5 * 1024 * 1024

type RouterConfig struct {
	Logger         *zap.Logger
	AllowedOrigins []string
	MaxBodyBytes   int64
	IngestHandler  *handlers.IngestHandler
	QueryHandler   *handlers.QueryHandler
	HealthHandler  *handlers.HealthHandler
	// MetricsHandler serves /metrics; promhttp.Handler() when nil.
	MetricsHandler http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	health := cfg.HealthHandler
	if health == nil {
		health = handlers.NewHealthHandler(nil)
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.Sentry)
	r.Use(metrics.Middleware)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.MaxBodyBytes(maxBody))

	notFound := func(w http.ResponseWriter, r *http.Request) {
		api.Error(w, http.StatusNotFound, "not found")
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	r.Get("/health", health.Health)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/ingest", cfg.IngestHandler.Ingest)
		r.Post("/query", cfg.QueryHandler.Query)
	})

	return r
}
