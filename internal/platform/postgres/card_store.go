package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loreforge/loreforge/internal/domain"
	"github.com/loreforge/loreforge/internal/store"
)

const cardColumns = `id, project_id, name, description, persona, scenario,
	first_message, example_messages, avatar_url, created_at, updated_at`

// CardStore implements store.CardStore using PostgreSQL. Each project
// has at most one card, enforced by a unique index on project_id.
type CardStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewCardStore creates a new PostgreSQL-backed card store.
func NewCardStore(db store.DBTX, logger *slog.Logger) *CardStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CardStore{
		db:     db,
		logger: logger.With(slog.String("component", "card_store")),
	}
}

var _ store.CardStore = (*CardStore)(nil)

// WithTx returns a CardStore running against the given transaction.
func (s *CardStore) WithTx(tx store.DBTX) store.CardStore {
	return &CardStore{db: tx, logger: s.logger}
}

// GetByProject implements store.CardStore.GetByProject.
func (s *CardStore) GetByProject(ctx context.Context, projectID string) (*domain.CharacterCard, error) {
	query := `SELECT ` + cardColumns + ` FROM character_cards WHERE project_id = $1`
	card, err := scanCard(s.db.QueryRowContext(ctx, query, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return card, nil
}

// Upsert implements store.CardStore.Upsert. The avatar URL is only
// overwritten when the incoming card carries one, so regeneration does
// not discard a previously adopted avatar.
func (s *CardStore) Upsert(ctx context.Context, card *domain.CharacterCard) (*domain.CharacterCard, error) {
	query := `
		INSERT INTO character_cards (id, project_id, name, description, persona,
			scenario, first_message, example_messages, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (project_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			persona = EXCLUDED.persona,
			scenario = EXCLUDED.scenario,
			first_message = EXCLUDED.first_message,
			example_messages = EXCLUDED.example_messages,
			avatar_url = CASE WHEN EXCLUDED.avatar_url <> '' THEN EXCLUDED.avatar_url
				ELSE character_cards.avatar_url END,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + cardColumns

	result, err := scanCard(s.db.QueryRowContext(ctx, query,
		card.ID,
		card.ProjectID,
		card.Name,
		card.Description,
		card.Persona,
		card.Scenario,
		card.FirstMessage,
		card.ExampleMessages,
		card.AvatarURL,
		card.CreatedAt,
		card.UpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert card: %w", err)
	}
	return result, nil
}

// UpdateField implements store.CardStore.UpdateField.
func (s *CardStore) UpdateField(ctx context.Context, cardID uuid.UUID, field, value string) (*domain.CharacterCard, error) {
	if !domain.CardFieldNames[field] && field != "avatar_url" {
		return nil, fmt.Errorf("%w: unknown card field %q", store.ErrInvalidEntity, field)
	}

	// field is validated against the fixed name set above, so
	// interpolating it into the column position is safe.
	query := fmt.Sprintf(
		`UPDATE character_cards SET %s = $1, updated_at = $2 WHERE id = $3 RETURNING %s`,
		field, cardColumns)

	card, err := scanCard(s.db.QueryRowContext(ctx, query, value, time.Now().UTC(), cardID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update card field: %w", err)
	}
	return card, nil
}

func scanCard(row rowScanner) (*domain.CharacterCard, error) {
	var (
		card      domain.CharacterCard
		avatarURL sql.NullString
	)
	err := row.Scan(
		&card.ID,
		&card.ProjectID,
		&card.Name,
		&card.Description,
		&card.Persona,
		&card.Scenario,
		&card.FirstMessage,
		&card.ExampleMessages,
		&avatarURL,
		&card.CreatedAt,
		&card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	card.AvatarURL = avatarURL.String
	return &card, nil
}
