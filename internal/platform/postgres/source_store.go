package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loreforge/loreforge/internal/domain"
	"github.com/loreforge/loreforge/internal/store"
)

const sourceColumns = `id, project_id, url, content_selectors, category_selectors,
	pagination_selector, url_exclusion_patterns, max_pages_to_crawl, max_crawl_depth,
	raw_content, content_type, image_urls, last_crawled_at, created_at, updated_at`

// SourceStore implements store.SourceStore using PostgreSQL. String
// slices (selectors, exclusion patterns, image URLs) are stored as
// JSONB columns.
type SourceStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewSourceStore creates a new PostgreSQL-backed source store.
func NewSourceStore(db store.DBTX, logger *slog.Logger) *SourceStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceStore{
		db:     db,
		logger: logger.With(slog.String("component", "source_store")),
	}
}

var _ store.SourceStore = (*SourceStore)(nil)

// WithTx returns a SourceStore running against the given transaction.
func (s *SourceStore) WithTx(tx store.DBTX) store.SourceStore {
	return &SourceStore{db: tx, logger: s.logger}
}

// Create implements store.SourceStore.Create.
func (s *SourceStore) Create(ctx context.Context, source *domain.Source) error {
	query := `
		INSERT INTO sources (id, project_id, url, content_selectors, category_selectors,
			pagination_selector, url_exclusion_patterns, max_pages_to_crawl, max_crawl_depth,
			raw_content, content_type, image_urls, last_crawled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := s.db.ExecContext(ctx, query,
		source.ID,
		source.ProjectID,
		source.URL,
		marshalStrings(source.ContentSelectors),
		marshalStrings(source.CategorySelector),
		source.PaginationSelector,
		marshalStrings(source.ExclusionPatterns),
		source.MaxPagesToCrawl,
		source.MaxCrawlDepth,
		source.RawContent,
		string(source.ContentType),
		marshalStrings(source.ImageURLs),
		source.LastCrawledAt,
		source.CreatedAt,
		source.UpdatedAt,
	)
	if err != nil {
		if isPgError(err, pgUniqueViolationCode) {
			return fmt.Errorf("%w: source URL already exists", store.ErrDuplicate)
		}
		return fmt.Errorf("failed to create source: %w", err)
	}
	return nil
}

// GetByID implements store.SourceStore.GetByID.
func (s *SourceStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE id = $1`
	source, err := scanSource(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return source, nil
}

// GetByURL implements store.SourceStore.GetByURL.
func (s *SourceStore) GetByURL(ctx context.Context, projectID, url string) (*domain.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE project_id = $1 AND url = $2`
	source, err := scanSource(s.db.QueryRowContext(ctx, query, projectID, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source by URL: %w", err)
	}
	return source, nil
}

// ListByProject implements store.SourceStore.ListByProject.
func (s *SourceStore) ListByProject(ctx context.Context, projectID string) ([]*domain.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE project_id = $1 ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sources []*domain.Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}
	return sources, nil
}

// Update implements store.SourceStore.Update.
func (s *SourceStore) Update(ctx context.Context, id uuid.UUID, update domain.SourceUpdate) error {
	setClauses := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}
	next := func() int { return len(args) + 1 }

	if update.ContentSelectors != nil {
		setClauses = append(setClauses, fmt.Sprintf("content_selectors = $%d", next()))
		args = append(args, marshalStrings(update.ContentSelectors))
	}
	if update.CategorySelector != nil {
		setClauses = append(setClauses, fmt.Sprintf("category_selectors = $%d", next()))
		args = append(args, marshalStrings(update.CategorySelector))
	}
	if update.PaginationSelector != nil {
		setClauses = append(setClauses, fmt.Sprintf("pagination_selector = $%d", next()))
		args = append(args, *update.PaginationSelector)
	}
	if update.RawContent != nil {
		setClauses = append(setClauses, fmt.Sprintf("raw_content = $%d", next()))
		args = append(args, *update.RawContent)
	}
	if update.ContentType != nil {
		setClauses = append(setClauses, fmt.Sprintf("content_type = $%d", next()))
		args = append(args, string(*update.ContentType))
	}
	if update.ImageURLs != nil {
		setClauses = append(setClauses, fmt.Sprintf("image_urls = $%d", next()))
		args = append(args, marshalStrings(update.ImageURLs))
	}
	if update.LastCrawledAt != nil {
		setClauses = append(setClauses, fmt.Sprintf("last_crawled_at = $%d", next()))
		args = append(args, *update.LastCrawledAt)
	}

	query := "UPDATE sources SET "
	for i, clause := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += fmt.Sprintf(" WHERE id = $%d", next())
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrSourceNotFound
	}
	return nil
}

// AddChildEdge implements store.SourceStore.AddChildEdge.
func (s *SourceStore) AddChildEdge(ctx context.Context, edge domain.SourceEdge) error {
	query := `
		INSERT INTO source_hierarchy (project_id, parent_source_id, child_source_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (parent_source_id, child_source_id) DO NOTHING`
	_, err := s.db.ExecContext(ctx, query, edge.ProjectID, edge.ParentSourceID, edge.ChildSourceID)
	if err != nil {
		return fmt.Errorf("failed to add hierarchy edge: %w", err)
	}
	return nil
}

// ListHierarchy implements store.SourceStore.ListHierarchy.
func (s *SourceStore) ListHierarchy(ctx context.Context, projectID string) ([]domain.SourceEdge, error) {
	query := `
		SELECT project_id, parent_source_id, child_source_id
		FROM source_hierarchy WHERE project_id = $1`
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hierarchy: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []domain.SourceEdge
	for rows.Next() {
		var edge domain.SourceEdge
		if err := rows.Scan(&edge.ProjectID, &edge.ParentSourceID, &edge.ChildSourceID); err != nil {
			return nil, fmt.Errorf("failed to scan hierarchy row: %w", err)
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hierarchy rows: %w", err)
	}
	return edges, nil
}

func scanSource(row rowScanner) (*domain.Source, error) {
	var (
		source          domain.Source
		contentSel      sql.NullString
		categorySel     sql.NullString
		paginationSel   sql.NullString
		exclusions      sql.NullString
		rawContent      sql.NullString
		contentType     sql.NullString
		imageURLs       sql.NullString
		lastCrawledAt   sql.NullTime
	)
	err := row.Scan(
		&source.ID,
		&source.ProjectID,
		&source.URL,
		&contentSel,
		&categorySel,
		&paginationSel,
		&exclusions,
		&source.MaxPagesToCrawl,
		&source.MaxCrawlDepth,
		&rawContent,
		&contentType,
		&imageURLs,
		&lastCrawledAt,
		&source.CreatedAt,
		&source.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if source.ContentSelectors, err = unmarshalStrings(contentSel); err != nil {
		return nil, fmt.Errorf("failed to decode content selectors: %w", err)
	}
	if source.CategorySelector, err = unmarshalStrings(categorySel); err != nil {
		return nil, fmt.Errorf("failed to decode category selectors: %w", err)
	}
	if source.ExclusionPatterns, err = unmarshalStrings(exclusions); err != nil {
		return nil, fmt.Errorf("failed to decode exclusion patterns: %w", err)
	}
	if source.ImageURLs, err = unmarshalStrings(imageURLs); err != nil {
		return nil, fmt.Errorf("failed to decode image URLs: %w", err)
	}
	source.PaginationSelector = paginationSel.String
	source.RawContent = rawContent.String
	source.ContentType = domain.SourceContentType(contentType.String)
	if lastCrawledAt.Valid {
		t := lastCrawledAt.Time
		source.LastCrawledAt = &t
	}
	return &source, nil
}

// marshalStrings encodes a string slice for a JSONB column, storing
// NULL for nil.
func marshalStrings(values []string) any {
	if values == nil {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return data
}

func unmarshalStrings(col sql.NullString) ([]string, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(col.String), &values); err != nil {
		return nil, err
	}
	return values, nil
}
