package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/loreforge/loreforge/internal/domain"
)

// SourceStore persists crawl sources and the parent/child hierarchy
// edges recorded during discovery.
type SourceStore interface {
	// Create persists a new source.
	Create(ctx context.Context, source *domain.Source) error

	// GetByID retrieves a source. Returns ErrSourceNotFound if missing.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Source, error)

	// GetByURL retrieves a project's source by URL. Returns
	// ErrSourceNotFound if missing.
	GetByURL(ctx context.Context, projectID, url string) (*domain.Source, error)

	// ListByProject returns all of a project's sources.
	ListByProject(ctx context.Context, projectID string) ([]*domain.Source, error)

	// Update applies a partial update to a source row.
	Update(ctx context.Context, id uuid.UUID, update domain.SourceUpdate) error

	// AddChildEdge records a parent→child hierarchy relation. Recording
	// an existing edge is a no-op.
	AddChildEdge(ctx context.Context, edge domain.SourceEdge) error

	// ListHierarchy returns all hierarchy edges for a project.
	ListHierarchy(ctx context.Context, projectID string) ([]domain.SourceEdge, error)

	// WithTx returns a SourceStore running against the given transaction.
	WithTx(tx DBTX) SourceStore
}
