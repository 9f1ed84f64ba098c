package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/loreforge/loreforge/internal/domain"
)

// LinkStore persists discovered content links.
type LinkStore interface {
	// CreateBatch persists links, all pending. URLs already present in
	// the project are skipped; the created links are returned.
	CreateBatch(ctx context.Context, links []*domain.Link) ([]*domain.Link, error)

	// GetByID retrieves a link. Returns ErrLinkNotFound if missing.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Link, error)

	// GetByIDs retrieves the given links, omitting any that are missing.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Link, error)

	// ListProcessable returns a project's links eligible for the
	// pipeline: pending and failed rows.
	ListProcessable(ctx context.Context, projectID string) ([]*domain.Link, error)

	// ListURLsByProject returns every link URL known for a project.
	ListURLsByProject(ctx context.Context, projectID string) ([]string, error)

	// Update applies a partial update to a link row.
	Update(ctx context.Context, id uuid.UUID, update domain.LinkUpdate) (*domain.Link, error)

	// ResetProcessing flips a project's processing links back to
	// pending. Used by cancellation finalization and startup recovery.
	// Returns the number of rows reset.
	ResetProcessing(ctx context.Context, projectID string) (int, error)

	// ResetAllProcessing is the startup variant of ResetProcessing,
	// covering every project.
	ResetAllProcessing(ctx context.Context) (int, error)

	// WithTx returns a LinkStore running against the given transaction.
	WithTx(tx DBTX) LinkStore
}
