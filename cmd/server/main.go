// Package main implements the entry point for the loreforge server:
// the job-submission HTTP API, the SSE event stream and the background
// job execution engine.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/loreforge/loreforge/internal/api"
	"github.com/loreforge/loreforge/internal/config"
	"github.com/loreforge/loreforge/internal/events"
	"github.com/loreforge/loreforge/internal/fetcher"
	"github.com/loreforge/loreforge/internal/platform/gemini"
	"github.com/loreforge/loreforge/internal/platform/logger"
	"github.com/loreforge/loreforge/internal/platform/postgres"
	"github.com/loreforge/loreforge/internal/ratelimit"
	"github.com/loreforge/loreforge/internal/task"
	"github.com/loreforge/loreforge/migrations"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Server.LogLevel)
	appLogger.Info("configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return err
	}

	jobs := postgres.NewJobStore(db, appLogger)
	projects := postgres.NewProjectStore(db, appLogger)
	sources := postgres.NewSourceStore(db, appLogger)
	links := postgres.NewLinkStore(db, appLogger)
	entries := postgres.NewEntryStore(db, appLogger)
	cards := postgres.NewCardStore(db, appLogger)
	requestLogs := postgres.NewRequestLogStore(db, appLogger)

	provider, err := gemini.NewGenerator(ctx, cfg.LLM, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create model provider: %w", err)
	}

	hub := events.NewHub()
	defer hub.Shutdown()

	deps := &task.Deps{
		DB:              db,
		Jobs:            jobs,
		Projects:        projects,
		Sources:         sources,
		Links:           links,
		Entries:         entries,
		Cards:           cards,
		RequestLogs:     requestLogs,
		Fetcher:         fetcher.NewHTTPFetcher(appLogger),
		Provider:        provider,
		Limiter:         ratelimit.NewProjectLimiter(),
		Events:          hub,
		Logger:          appLogger,
		LinkConcurrency: cfg.Worker.LinkConcurrency,
		WriteBatchSize:  cfg.Worker.WriteBatchSize,
	}

	registry := task.NewRegistry()
	registry.Register(task.NewDiscoverAndCrawlHandler(deps))
	registry.Register(task.NewRescanLinksHandler(deps))
	registry.Register(task.NewConfirmLinksHandler(deps))
	registry.Register(task.NewProcessEntriesHandler(deps))
	registry.Register(task.NewGenerateSearchParamsHandler(deps))
	registry.Register(task.NewFetchContentHandler(deps))
	registry.Register(task.NewGenerateCharacterCardHandler(deps))
	registry.Register(task.NewRegenerateFieldHandler(deps))
	registry.Register(task.NewGenerateLorebookEntriesHandler(deps))

	monitor := task.NewCancelMonitor(jobs,
		time.Duration(cfg.Worker.CancelPollIntervalMs)*time.Millisecond, appLogger)
	worker := task.NewWorker(deps, registry, monitor,
		time.Duration(cfg.Worker.PollIntervalMs)*time.Millisecond, cfg.Worker.ClaimCapacity)

	if err := worker.RecoverStale(ctx); err != nil {
		return fmt.Errorf("failed to recover stale jobs: %w", err)
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	router := api.NewRouter(
		api.NewJobHandler(jobs, projects, sources, appLogger),
		api.NewEventsHandler(hub, appLogger),
	)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("http server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		appLogger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http server shutdown failed", slog.String("error", err.Error()))
	}

	// The signal context already stopped the worker; wait for the active
	// job to finish or the shutdown window to run out.
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		appLogger.Warn("worker did not stop within shutdown timeout")
	}

	appLogger.Info("server stopped")
	return nil
}

// runMigrations applies any pending schema migrations from the embedded
// migration files.
func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
