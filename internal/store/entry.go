package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/loreforge/loreforge/internal/domain"
)

// EntryStore persists generated lorebook entries.
type EntryStore interface {
	// Create persists a new entry.
	Create(ctx context.Context, entry *domain.LorebookEntry) error

	// GetByID retrieves an entry. Returns ErrEntryNotFound if missing.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LorebookEntry, error)

	// WithTx returns an EntryStore running against the given transaction.
	WithTx(tx DBTX) EntryStore
}

// CardStore persists character cards; one card per project.
type CardStore interface {
	// GetByProject retrieves a project's card. Returns ErrCardNotFound
	// if the project has none yet.
	GetByProject(ctx context.Context, projectID string) (*domain.CharacterCard, error)

	// Upsert creates the project's card or replaces its generated fields.
	Upsert(ctx context.Context, card *domain.CharacterCard) (*domain.CharacterCard, error)

	// UpdateField rewrites a single card field by JSON name.
	UpdateField(ctx context.Context, cardID uuid.UUID, field, value string) (*domain.CharacterCard, error)

	// WithTx returns a CardStore running against the given transaction.
	WithTx(tx DBTX) CardStore
}

// RequestLogStore records outbound model calls.
type RequestLogStore interface {
	// Create persists a request log row.
	Create(ctx context.Context, log *domain.RequestLog) error

	// WithTx returns a RequestLogStore running against the given transaction.
	WithTx(tx DBTX) RequestLogStore
}
