package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/loreforge/loreforge/internal/domain"
	"github.com/loreforge/loreforge/internal/store"
)

// EntryStore implements store.EntryStore using PostgreSQL.
type EntryStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewEntryStore creates a new PostgreSQL-backed entry store.
func NewEntryStore(db store.DBTX, logger *slog.Logger) *EntryStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EntryStore{
		db:     db,
		logger: logger.With(slog.String("component", "entry_store")),
	}
}

var _ store.EntryStore = (*EntryStore)(nil)

// WithTx returns an EntryStore running against the given transaction.
func (s *EntryStore) WithTx(tx store.DBTX) store.EntryStore {
	return &EntryStore{db: tx, logger: s.logger}
}

// Create implements store.EntryStore.Create.
func (s *EntryStore) Create(ctx context.Context, entry *domain.LorebookEntry) error {
	query := `
		INSERT INTO lorebook_entries (id, project_id, title, content, keywords,
			source_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.ProjectID,
		entry.Title,
		entry.Content,
		marshalStrings(entry.Keywords),
		entry.SourceURL,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		if isPgError(err, pgForeignKeyViolationCode) {
			return fmt.Errorf("%w: project %s not found", store.ErrInvalidEntity, entry.ProjectID)
		}
		return fmt.Errorf("failed to create entry: %w", err)
	}
	return nil
}

// GetByID implements store.EntryStore.GetByID.
func (s *EntryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.LorebookEntry, error) {
	query := `
		SELECT id, project_id, title, content, keywords, source_url, created_at, updated_at
		FROM lorebook_entries WHERE id = $1`

	var (
		entry     domain.LorebookEntry
		keywords  sql.NullString
		sourceURL sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&entry.ID,
		&entry.ProjectID,
		&entry.Title,
		&entry.Content,
		&keywords,
		&sourceURL,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	if entry.Keywords, err = unmarshalStrings(keywords); err != nil {
		return nil, fmt.Errorf("failed to decode keywords: %w", err)
	}
	entry.SourceURL = sourceURL.String
	return &entry, nil
}
