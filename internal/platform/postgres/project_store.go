package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loreforge/loreforge/internal/domain"
	"github.com/loreforge/loreforge/internal/store"
)

// ProjectStore implements store.ProjectStore using PostgreSQL.
type ProjectStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewProjectStore creates a new PostgreSQL-backed project store.
func NewProjectStore(db store.DBTX, logger *slog.Logger) *ProjectStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectStore{
		db:     db,
		logger: logger.With(slog.String("component", "project_store")),
	}
}

var _ store.ProjectStore = (*ProjectStore)(nil)

// WithTx returns a ProjectStore running against the given transaction.
func (s *ProjectStore) WithTx(tx store.DBTX) store.ProjectStore {
	return &ProjectStore{db: tx, logger: s.logger}
}

// GetByID implements store.ProjectStore.GetByID.
func (s *ProjectStore) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	query := `
		SELECT id, name, project_type, status, prompt, search_params, templates,
		       model_name, requests_per_minute, json_enforcement_mode,
		       created_at, updated_at
		FROM projects WHERE id = $1`

	var (
		project      domain.Project
		prompt       sql.NullString
		searchParams sql.NullString
		templates    sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&project.ID,
		&project.Name,
		&project.Type,
		&project.Status,
		&prompt,
		&searchParams,
		&templates,
		&project.ModelName,
		&project.RequestsPerMinute,
		&project.JSONMode,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	project.Prompt = prompt.String
	if searchParams.Valid && searchParams.String != "" {
		var sp domain.SearchParams
		if err := json.Unmarshal([]byte(searchParams.String), &sp); err != nil {
			return nil, fmt.Errorf("failed to decode search params: %w", err)
		}
		project.SearchParams = &sp
	}
	if templates.Valid && templates.String != "" {
		if err := json.Unmarshal([]byte(templates.String), &project.Templates); err != nil {
			return nil, fmt.Errorf("failed to decode templates: %w", err)
		}
	}
	return &project, nil
}

// Update implements store.ProjectStore.Update.
func (s *ProjectStore) Update(ctx context.Context, id string, update domain.ProjectUpdate) error {
	setClauses := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}
	next := func() int { return len(args) + 1 }

	if update.Status != nil {
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", next()))
		args = append(args, *update.Status)
	}
	if update.SearchParams != nil {
		data, err := json.Marshal(update.SearchParams)
		if err != nil {
			return fmt.Errorf("failed to marshal search params: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("search_params = $%d", next()))
		args = append(args, data)
	}

	query := "UPDATE projects SET "
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
		return fmt.Errorf("failed to update project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrProjectNotFound
	}
	return nil
}
