package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/loreforge/loreforge/internal/domain"
)

// Page describes a limit/offset window for paginated listings.
type Page struct {
	Limit  int
	Offset int
}

// JobPage is one page of jobs plus the total row count.
type JobPage struct {
	Jobs  []*domain.Job
	Total int
}

// JobStore persists background job rows and enforces the job status
// transition graph.
type JobStore interface {
	// Create persists a new pending job.
	Create(ctx context.Context, job *domain.Job) error

	// GetByID retrieves a job. Returns ErrJobNotFound if missing.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// ClaimNextPending atomically selects the oldest pending job, flips
	// it to in_progress and returns it. Under concurrent callers a given
	// pending row is handed to exactly one caller. Returns (nil, nil)
	// when no pending job exists.
	ClaimNextPending(ctx context.Context) (*domain.Job, error)

	// Update applies a partial update to a job row.
	Update(ctx context.Context, id uuid.UUID, update domain.JobUpdate) (*domain.Job, error)

	// RequestCancel transitions pending→canceled immediately or
	// in_progress→cancelling for the running handler to observe.
	// Returns ErrInvalidTransition for terminal jobs.
	RequestCancel(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// ListPaginated returns jobs newest first.
	ListPaginated(ctx context.Context, page Page) (*JobPage, error)

	// LatestByKind returns the most recent job for a project and kind.
	// Returns ErrJobNotFound when the project has none.
	LatestByKind(ctx context.Context, projectID string, kind domain.TaskKind) (*domain.Job, error)

	// ResetStale flips every in_progress or cancelling job back to
	// pending. Called once at startup; no executor state survives a
	// restart. Returns the number of rows reset.
	ResetStale(ctx context.Context) (int, error)

	// WithTx returns a JobStore running against the given transaction.
	WithTx(tx DBTX) JobStore
}
