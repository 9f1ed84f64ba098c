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

const linkColumns = `id, project_id, url, status, lorebook_entry_id,
	raw_content, skip_reason, error_message, created_at, updated_at`

// LinkStore implements store.LinkStore using PostgreSQL.
type LinkStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewLinkStore creates a new PostgreSQL-backed link store.
func NewLinkStore(db store.DBTX, logger *slog.Logger) *LinkStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkStore{
		db:     db,
		logger: logger.With(slog.String("component", "link_store")),
	}
}

var _ store.LinkStore = (*LinkStore)(nil)

// WithTx returns a LinkStore running against the given transaction.
func (s *LinkStore) WithTx(tx store.DBTX) store.LinkStore {
	return &LinkStore{db: tx, logger: s.logger}
}

// CreateBatch implements store.LinkStore.CreateBatch. Duplicate URLs
// within the project are skipped via ON CONFLICT DO NOTHING; only the
// rows actually inserted are returned.
func (s *LinkStore) CreateBatch(ctx context.Context, links []*domain.Link) ([]*domain.Link, error) {
	if len(links) == 0 {
		return nil, nil
	}

	query := `
		INSERT INTO links (id, project_id, url, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_id, url) DO NOTHING`

	var created []*domain.Link
	for _, link := range links {
		result, err := s.db.ExecContext(ctx, query,
			link.ID, link.ProjectID, link.URL, link.Status, link.CreatedAt, link.UpdatedAt)
		if err != nil {
			return created, fmt.Errorf("failed to create link: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return created, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected > 0 {
			created = append(created, link)
		}
	}
	return created, nil
}

// GetByID implements store.LinkStore.GetByID.
func (s *LinkStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE id = $1`
	link, err := scanLink(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return link, nil
}

// GetByIDs implements store.LinkStore.GetByIDs. Missing IDs are
// silently omitted from the result.
func (s *LinkStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Link, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	// The explicit cast keeps the comparison uuid = uuid regardless of
	// the driver's query exec mode.
	query := `SELECT ` + linkColumns + ` FROM links WHERE id = ANY($1::uuid[]) ORDER BY created_at ASC`
	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx, query, idStrings)
	if err != nil {
		return nil, fmt.Errorf("failed to get links: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectLinks(rows)
}

// ListProcessable implements store.LinkStore.ListProcessable.
func (s *LinkStore) ListProcessable(ctx context.Context, projectID string) ([]*domain.Link, error) {
	query := `
		SELECT ` + linkColumns + ` FROM links
		WHERE project_id = $1 AND status IN ($2, $3)
		ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, projectID,
		domain.LinkStatusPending, domain.LinkStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to list processable links: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectLinks(rows)
}

// ListURLsByProject implements store.LinkStore.ListURLsByProject.
func (s *LinkStore) ListURLsByProject(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url FROM links WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list link URLs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("failed to scan URL row: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating URL rows: %w", err)
	}
	return urls, nil
}

// Update implements store.LinkStore.Update.
func (s *LinkStore) Update(ctx context.Context, id uuid.UUID, update domain.LinkUpdate) (*domain.Link, error) {
	setClauses := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}
	next := func() int { return len(args) + 1 }

	if update.Status != nil {
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", next()))
		args = append(args, *update.Status)
	}
	if update.LorebookEntryID != nil {
		setClauses = append(setClauses, fmt.Sprintf("lorebook_entry_id = $%d", next()))
		args = append(args, *update.LorebookEntryID)
	}
	if update.RawContent != nil {
		setClauses = append(setClauses, fmt.Sprintf("raw_content = $%d", next()))
		args = append(args, *update.RawContent)
	}
	if update.SkipReason != nil {
		setClauses = append(setClauses, fmt.Sprintf("skip_reason = $%d", next()))
		args = append(args, *update.SkipReason)
	}
	if update.ErrorMessage != nil {
		setClauses = append(setClauses, fmt.Sprintf("error_message = $%d", next()))
		args = append(args, *update.ErrorMessage)
	}

	query := "UPDATE links SET "
	for i, clause := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += fmt.Sprintf(" WHERE id = $%d RETURNING %s", next(), linkColumns)
	args = append(args, id)

	link, err := scanLink(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update link: %w", err)
	}
	return link, nil
}

// ResetProcessing implements store.LinkStore.ResetProcessing.
func (s *LinkStore) ResetProcessing(ctx context.Context, projectID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE links SET status = $1, updated_at = $2
		WHERE project_id = $3 AND status = $4`,
		domain.LinkStatusPending, time.Now().UTC(), projectID, domain.LinkStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to reset processing links: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// ResetAllProcessing implements store.LinkStore.ResetAllProcessing.
func (s *LinkStore) ResetAllProcessing(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE links SET status = $1, updated_at = $2
		WHERE status = $3`,
		domain.LinkStatusPending, time.Now().UTC(), domain.LinkStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to reset processing links: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

func scanLink(row rowScanner) (*domain.Link, error) {
	var (
		link         domain.Link
		entryID      uuid.NullUUID
		rawContent   sql.NullString
		skipReason   sql.NullString
		errorMessage sql.NullString
	)
	err := row.Scan(
		&link.ID,
		&link.ProjectID,
		&link.URL,
		&link.Status,
		&entryID,
		&rawContent,
		&skipReason,
		&errorMessage,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if entryID.Valid {
		id := entryID.UUID
		link.LorebookEntryID = &id
	}
	link.RawContent = rawContent.String
	link.SkipReason = skipReason.String
	link.ErrorMessage = errorMessage.String
	return &link, nil
}

func collectLinks(rows *sql.Rows) ([]*domain.Link, error) {
	var links []*domain.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link row: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating link rows: %w", err)
	}
	return links, nil
}
