package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloo-solutions/clarify/internal/api/handlers"
	"github.com/cloo-solutions/clarify/internal/config"
	"github.com/cloo-solutions/clarify/internal/logger"
	"github.com/cloo-solutions/clarify/internal/metrics"
	"github.com/cloo-solutions/clarify/internal/server"
	"github.com/cloo-solutions/clarify/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the clarify API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides CLARIFY_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

// setup loads config and builds the process logger and telemetry. The
// returned func flushes both.
func setup() (*config.Config, *zap.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	env := cfg.Environment
	if cfg.Debug {
		env = "development"
	}
	log, err := logger.New(env, cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}

	flushTelemetry := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: telemetry.SampleRateFor(cfg.Environment),
		Debug:            cfg.Debug,
	}, log)

	return cfg, log, func() {
		flushTelemetry()
		_ = log.Sync()
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, log, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")

	metrics.Register()

	a, err := buildApp(ctx, cfg, log, appOptions{migrate: !noMigrate})
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return err
	}
	defer a.Close()

	router := server.NewRouter(server.RouterConfig{
		Logger:         log,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		IngestHandler:  handlers.NewIngestHandler(a.ingest),
		QueryHandler:   handlers.NewQueryHandler(a.query),
		HealthHandler:  handlers.NewHealthHandler(a.checks),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server",
			zap.String("port", cfg.Port),
			zap.Strings("allowed_origins", cfg.AllowedOrigins),
			zap.String("embedding_model", cfg.EmbeddingModel),
			zap.String("chat_model", cfg.ChatModel),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		log.Error("server failed", zap.Error(err))
		return fmt.Errorf("server failed: %w", err)
	}
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}
