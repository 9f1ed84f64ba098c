package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loreforge/loreforge/internal/domain"
)

// stubHandler lets worker tests script the handler body.
type stubHandler struct {
	kind domain.TaskKind
	fn   func(ctx context.Context, job *domain.Job, project *domain.Project, cancel <-chan struct{}) error
}

func (h *stubHandler) Kind() domain.TaskKind { return h.kind }

func (h *stubHandler) Execute(ctx context.Context, job *domain.Job, project *domain.Project, cancel <-chan struct{}) error {
	return h.fn(ctx, job, project, cancel)
}

func newTestWorker(env *testEnv, registry *Registry) *Worker {
	monitor := NewCancelMonitor(env.jobs, 5*time.Millisecond, nil)
	return NewWorker(env.deps, registry, monitor, 5*time.Millisecond, 1)
}

func pendingJob(t *testing.T, env *testEnv, kind domain.TaskKind, projectID string) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(kind, projectID, nil)
	require.NoError(t, err)
	require.NoError(t, env.jobs.Create(context.Background(), job))
	return job
}

func TestWorkerRunsClaimedJob(t *testing.T) {
	env := newTestEnv(t)
	project := env.addProject(t, &domain.Project{})

	executed := make(chan uuid.UUID, 1)
	registry := NewRegistry()
	registry.Register(&stubHandler{
		kind: domain.TaskGenerateSearchParams,
		fn: func(ctx context.Context, job *domain.Job, p *domain.Project, _ <-chan struct{}) error {
			executed <- job.ID
			status := domain.JobStatusCompleted
			_, err := env.deps.updateJob(ctx, nil, job.ID, p.ID, domain.JobUpdate{Status: &status})
			return err
		},
	})

	job := pendingJob(t, env, domain.TaskGenerateSearchParams, project.ID)

	ctx, cancel := context.WithCancel(context.Background())
	worker := newTestWorker(env, registry)
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	select {
	case got := <-executed:
		assert.Equal(t, job.ID, got)
	case <-time.After(2 * time.Second):
		t.Fatal("job was never dispatched")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	assert.Equal(t, domain.JobStatusCompleted, env.jobs.status(t, job.ID))
}

func TestWorkerMarksFailedOnHandlerError(t *testing.T) {
	env := newTestEnv(t)
	project := env.addProject(t, &domain.Project{})

	registry := NewRegistry()
	registry.Register(&stubHandler{
		kind: domain.TaskGenerateSearchParams,
		fn: func(context.Context, *domain.Job, *domain.Project, <-chan struct{}) error {
			return errors.New("model unavailable")
		},
	})

	job := pendingJob(t, env, domain.TaskGenerateSearchParams, project.ID)
	claimed, err := env.jobs.ClaimNextPending(context.Background())
	require.NoError(t, err)

	worker := newTestWorker(env, registry)
	worker.processJob(context.Background(), claimed)

	stored, err := env.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Equal(t, "model unavailable", stored.ErrorMessage)
}

func TestWorkerMarksFailedOnPanic(t *testing.T) {
	env := newTestEnv(t)
	project := env.addProject(t, &domain.Project{})

	registry := NewRegistry()
	registry.Register(&stubHandler{
		kind: domain.TaskGenerateSearchParams,
		fn: func(context.Context, *domain.Job, *domain.Project, <-chan struct{}) error {
			panic("slice index out of range")
		},
	})

	job := pendingJob(t, env, domain.TaskGenerateSearchParams, project.ID)
	claimed, err := env.jobs.ClaimNextPending(context.Background())
	require.NoError(t, err)

	worker := newTestWorker(env, registry)
	worker.processJob(context.Background(), claimed)

	stored, err := env.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "handler panic")
}

func TestWorkerMarksFailedOnUnknownKind(t *testing.T) {
	env := newTestEnv(t)
	project := env.addProject(t, &domain.Project{})

	job := pendingJob(t, env, domain.TaskRescanLinks, project.ID)
	claimed, err := env.jobs.ClaimNextPending(context.Background())
	require.NoError(t, err)

	worker := newTestWorker(env, NewRegistry())
	worker.processJob(context.Background(), claimed)

	stored, err := env.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "no handler for task kind")
}

func TestWorkerFinalizesCancellingJobAsCanceled(t *testing.T) {
	env := newTestEnv(t)
	project := env.addProject(t, &domain.Project{})

	registry := NewRegistry()
	registry.Register(&stubHandler{
		kind: domain.TaskGenerateSearchParams,
		fn: func(ctx context.Context, job *domain.Job, _ *domain.Project, _ <-chan struct{}) error {
			// Cancellation arrives while the handler is mid-flight; the
			// handler dies without finalizing.
			_, err := env.jobs.RequestCancel(ctx, job.ID)
			require.NoError(t, err)
			return errors.New("interrupted")
		},
	})

	job := pendingJob(t, env, domain.TaskGenerateSearchParams, project.ID)
	claimed, err := env.jobs.ClaimNextPending(context.Background())
	require.NoError(t, err)

	worker := newTestWorker(env, registry)
	worker.processJob(context.Background(), claimed)

	assert.Equal(t, domain.JobStatusCanceled, env.jobs.status(t, job.ID))
}

func TestRecoverStaleResetsJobsAndLinks(t *testing.T) {
	env := newTestEnv(t)
	project := env.addProject(t, &domain.Project{})

	stale := env.addJob(t, domain.TaskProcessProjectEntries, project.ID, nil)

	link, err := domain.NewLink(project.ID, "https://example.org/a")
	require.NoError(t, err)
	link.Status = domain.LinkStatusProcessing
	_, err = env.links.CreateBatch(context.Background(), []*domain.Link{link})
	require.NoError(t, err)

	worker := newTestWorker(env, NewRegistry())
	require.NoError(t, worker.RecoverStale(context.Background()))

	assert.Equal(t, domain.JobStatusPending, env.jobs.status(t, stale.ID))
	assert.Equal(t, 1, env.links.countByStatus(domain.LinkStatusPending))
}
