package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"leadscanner/internal/config"
	"leadscanner/internal/extraction"
	"leadscanner/internal/infrastructure/llm"
	"leadscanner/internal/infrastructure/parser"
	"leadscanner/internal/infrastructure/storage"
	"leadscanner/internal/infrastructure/web"
	"leadscanner/internal/logging"
	"leadscanner/internal/scanner"
	"leadscanner/internal/usecase"
)

// Application wires configs to the scan pipeline, storage, and the
// operator API.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	store  *storage.PostgresStore
	server *http.Server
}

// New builds a runnable application instance: migrations, store, source
// adapters, extraction, pipeline, and the HTTP surface.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	if err := storage.Migrate(cfg.Database.DSN); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	store, err := storage.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}

	fetchClient := &http.Client{Timeout: cfg.Fetch.Timeout()}
	registry := scanner.NewRegistry()
	registry.Register(parser.NewRSSAdapter(fetchClient))
	registry.Register(parser.NewPageAdapter(fetchClient))

	completion := llm.NewOpenAIClient(cfg.OpenAI)
	extractor := extraction.NewService(completion, baseLogger.With("component", "extraction"))

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Registry:  registry,
		Extractor: extractor,
		Sources:   store,
		Leads:     store,
		Runs:      store,
		Logger:    baseLogger.With("component", "pipeline"),
	})

	api := web.New(pipeline, store, store, store, baseLogger.With("component", "web"))
	server := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{cfg: cfg, logger: baseLogger, store: store, server: server}, nil
}

// Run serves the operator API until the context is cancelled, then shuts
// down gracefully. Scans in flight get to finalize their run records.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.server.ListenAndServe() }()
	a.logger.Info("listening", "addr", a.cfg.HTTP.ListenAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close releases the store pool.
func (a *Application) Close() {
	if a.store != nil {
		a.store.Close()
	}
}
