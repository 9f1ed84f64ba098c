package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loreforge/loreforge/internal/domain"
	"github.com/loreforge/loreforge/internal/store"
)

// CancelMonitor watches active jobs for a stored cancelling status and
// translates it into an in-process signal. Handlers observe the signal
// cooperatively: already-started network calls always run to
// completion, so the signal is a closed channel rather than a context
// cancellation.
type CancelMonitor struct {
	jobs     store.JobStore
	interval time.Duration
	logger   *slog.Logger
}

// NewCancelMonitor creates a monitor polling at the given interval.
func NewCancelMonitor(jobs store.JobStore, interval time.Duration, logger *slog.Logger) *CancelMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &CancelMonitor{
		jobs:     jobs,
		interval: interval,
		logger:   logger.With(slog.String("component", "cancel_monitor")),
	}
}

// Watch starts polling the job's stored status. The returned channel is
// closed when the status becomes cancelling; stop ends the polling and
// must be called when the handler returns.
func (m *CancelMonitor) Watch(ctx context.Context, jobID uuid.UUID) (<-chan struct{}, func()) {
	signal := make(chan struct{})
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				job, err := m.jobs.GetByID(ctx, jobID)
				if err != nil {
					m.logger.Warn("cancellation poll failed",
						slog.String("job_id", jobID.String()),
						slog.String("error", err.Error()))
					continue
				}
				if job.Status == domain.JobStatusCancelling {
					m.logger.Info("cancellation requested",
						slog.String("job_id", jobID.String()))
					close(signal)
					return
				}
			}
		}
	}()

	var stopped bool
	stop := func() {
		if !stopped {
			stopped = true
			close(done)
		}
	}
	return signal, stop
}
