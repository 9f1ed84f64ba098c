package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loreforge/loreforge/internal/domain"
	"github.com/loreforge/loreforge/internal/platform/logger"
	"github.com/loreforge/loreforge/internal/store"
)

// Worker polls the job store and dispatches claimed jobs to their
// handlers. The claim itself is atomic, so multiple claim loops are
// safe; claimCapacity defaults to 1, which keeps at most one job of any
// kind active at a time.
type Worker struct {
	deps          *Deps
	registry      *Registry
	monitor       *CancelMonitor
	pollInterval  time.Duration
	claimCapacity int
	logger        *slog.Logger
}

// NewWorker creates the dispatch loop.
func NewWorker(deps *Deps, registry *Registry, monitor *CancelMonitor, pollInterval time.Duration, claimCapacity int) *Worker {
	if claimCapacity < 1 {
		claimCapacity = 1
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		deps:          deps,
		registry:      registry,
		monitor:       monitor,
		pollInterval:  pollInterval,
		claimCapacity: claimCapacity,
		logger:        log.With(slog.String("component", "worker")),
	}
}

// RecoverStale resets jobs and links left mid-flight by a previous
// process. No executor state survives a restart, so anything still
// in_progress or cancelling goes back to pending, as do links stuck in
// processing. Called once before Run.
func (w *Worker) RecoverStale(ctx context.Context) error {
	jobs, err := w.deps.Jobs.ResetStale(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset stale jobs: %w", err)
	}
	links, err := w.deps.Links.ResetAllProcessing(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset stale links: %w", err)
	}
	if jobs > 0 || links > 0 {
		w.logger.Info("startup recovery complete",
			slog.Int("jobs_reset", jobs),
			slog.Int("links_reset", links))
	}
	return nil
}

// Run starts the claim loops and blocks until the context is done and
// all in-flight jobs have settled.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.claimCapacity; i++ {
		wg.Add(1)
		go func(loop int) {
			defer wg.Done()
			w.claimLoop(ctx, loop)
		}(i)
	}
	wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) claimLoop(ctx context.Context, loop int) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Drain all currently pending jobs before sleeping again.
		for {
			job, err := w.deps.Jobs.ClaimNextPending(ctx)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.Error("failed to claim pending job",
						slog.Int("loop", loop),
						slog.String("error", err.Error()))
				}
				break
			}
			if job == nil {
				break
			}
			w.processJob(ctx, job)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// processJob dispatches one claimed job. Whatever the handler does, the
// job never remains in_progress afterwards: handler errors and panics
// both mark it failed.
func (w *Worker) processJob(ctx context.Context, job *domain.Job) {
	log := w.logger.With(
		slog.String("job_id", job.ID.String()),
		slog.String("task_kind", string(job.TaskKind)),
		slog.String("project_id", job.ProjectID))
	ctx = logger.WithContext(ctx, log)

	log.Info("job claimed")
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			log.Error("handler panicked", slog.Any("panic", p))
			w.failJob(ctx, job, fmt.Sprintf("handler panic: %v", p))
		}
	}()

	project, err := w.deps.Projects.GetByID(ctx, job.ProjectID)
	if err != nil {
		w.failJob(ctx, job, fmt.Sprintf("project lookup failed: %v", err))
		return
	}

	handler, ok := w.registry.Lookup(job.TaskKind)
	if !ok {
		w.failJob(ctx, job, fmt.Sprintf("no handler for task kind %s", job.TaskKind))
		return
	}

	cancel, stop := w.monitor.Watch(ctx, job.ID)
	defer stop()

	if err := handler.Execute(ctx, job, project, cancel); err != nil {
		log.Error("handler failed",
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		w.failJob(ctx, job, err.Error())
		return
	}

	log.Info("job finished", slog.Duration("elapsed", time.Since(start)))
}

// failJob marks a job failed with the given message. If the handler
// already finalized the job the transition is rejected and the terminal
// state stands. A job that died while cancelling finalizes as canceled,
// the only exit that state has.
func (w *Worker) failJob(ctx context.Context, job *domain.Job, message string) {
	status := domain.JobStatusFailed
	_, err := w.deps.updateJob(ctx, nil, job.ID, job.ProjectID, domain.JobUpdate{
		Status:       &status,
		ErrorMessage: &message,
	})
	if err == nil || store.IsNotFound(err) {
		return
	}

	if errors.Is(err, store.ErrInvalidTransition) {
		if current, getErr := w.deps.Jobs.GetByID(ctx, job.ID); getErr == nil && current.Status == domain.JobStatusCancelling {
			canceled := domain.JobStatusCanceled
			if _, cancelErr := w.deps.updateJob(ctx, nil, job.ID, job.ProjectID, domain.JobUpdate{
				Status:       &canceled,
				ErrorMessage: &message,
			}); cancelErr == nil {
				return
			}
		}
	}

	w.logger.Warn("could not mark job failed",
		slog.String("job_id", job.ID.String()),
		slog.String("error", err.Error()))
}
