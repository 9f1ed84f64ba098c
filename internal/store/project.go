package store

import (
	"context"

	"github.com/loreforge/loreforge/internal/domain"
)

// ProjectStore persists projects. The engine only reads projects and
// advances their status; creation and deletion belong to the API layer.
type ProjectStore interface {
	// GetByID retrieves a project. Returns ErrProjectNotFound if missing.
	GetByID(ctx context.Context, id string) (*domain.Project, error)

	// Update applies a partial update to a project row.
	Update(ctx context.Context, id string, update domain.ProjectUpdate) error

	// WithTx returns a ProjectStore running against the given transaction.
	WithTx(tx DBTX) ProjectStore
}
