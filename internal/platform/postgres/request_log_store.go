package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loreforge/loreforge/internal/domain"
	"github.com/loreforge/loreforge/internal/store"
)

// RequestLogStore implements store.RequestLogStore using PostgreSQL.
type RequestLogStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewRequestLogStore creates a new PostgreSQL-backed request log store.
func NewRequestLogStore(db store.DBTX, logger *slog.Logger) *RequestLogStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestLogStore{
		db:     db,
		logger: logger.With(slog.String("component", "request_log_store")),
	}
}

var _ store.RequestLogStore = (*RequestLogStore)(nil)

// WithTx returns a RequestLogStore running against the given transaction.
func (s *RequestLogStore) WithTx(tx store.DBTX) store.RequestLogStore {
	return &RequestLogStore{db: tx, logger: s.logger}
}

// Create implements store.RequestLogStore.Create.
func (s *RequestLogStore) Create(ctx context.Context, log *domain.RequestLog) error {
	query := `
		INSERT INTO request_logs (id, project_id, job_id, provider, model,
			input_tokens, output_tokens, latency_ms, failed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.db.ExecContext(ctx, query,
		log.ID,
		log.ProjectID,
		log.JobID,
		log.Provider,
		log.Model,
		log.InputTokens,
		log.OutputTokens,
		log.LatencyMs,
		log.Failed,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create request log: %w", err)
	}
	return nil
}
