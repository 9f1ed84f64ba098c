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
	"github.com/loreforge/loreforge/internal/platform/logger"
	"github.com/loreforge/loreforge/internal/store"
)

// jobColumns is the select list shared by every job query.
const jobColumns = `id, task_kind, project_id, payload, status, result,
	total_items, processed_items, percent, error_message, created_at, updated_at`

// JobStore implements store.JobStore using PostgreSQL.
type JobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewJobStore creates a new PostgreSQL-backed job store.
func NewJobStore(db store.DBTX, logger *slog.Logger) *JobStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

var _ store.JobStore = (*JobStore)(nil)

// WithTx returns a JobStore running against the given transaction.
func (s *JobStore) WithTx(tx store.DBTX) store.JobStore {
	return &JobStore{db: tx, logger: s.logger}
}

// Create implements store.JobStore.Create.
func (s *JobStore) Create(ctx context.Context, job *domain.Job) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO jobs (id, task_kind, project_id, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.TaskKind,
		job.ProjectID,
		nullableJSON(job.Payload),
		job.Status,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		if isPgError(err, pgForeignKeyViolationCode) {
			return fmt.Errorf("%w: project %s not found", store.ErrInvalidEntity, job.ProjectID)
		}
		log.Error("failed to create job",
			slog.String("job_id", job.ID.String()),
			slog.String("task_kind", string(job.TaskKind)),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create job: %w", err)
	}

	log.Debug("job created",
		slog.String("job_id", job.ID.String()),
		slog.String("task_kind", string(job.TaskKind)))
	return nil
}

// GetByID implements store.JobStore.GetByID.
func (s *JobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ClaimNextPending implements store.JobStore.ClaimNextPending. The
// claim must be atomic under concurrent callers: the candidate row is
// selected with FOR UPDATE SKIP LOCKED so two workers never receive the
// same job, and the status flip happens in the same statement.
func (s *JobStore) ClaimNextPending(ctx context.Context) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1, updated_at = $2
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = $3
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query,
		domain.JobStatusInProgress,
		time.Now().UTC(),
		domain.JobStatusPending,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending job: %w", err)
	}
	return job, nil
}

// Update implements store.JobStore.Update. Status changes are checked
// against the transition graph; anything else is rejected with
// store.ErrInvalidTransition.
func (s *JobStore) Update(ctx context.Context, id uuid.UUID, update domain.JobUpdate) (*domain.Job, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	setClauses := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}
	next := func() int { return len(args) + 1 }

	// For a status change the current status is re-checked inside the
	// UPDATE's WHERE clause, so the validation and the write act on the
	// same row version even under concurrent writers.
	var expectedStatus *domain.JobStatus
	if update.Status != nil {
		current, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status != *update.Status && !domain.CanTransition(current.Status, *update.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current.Status, *update.Status)
		}
		expectedStatus = &current.Status
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", next()))
		args = append(args, *update.Status)
	}
	if update.Result != nil {
		data, err := json.Marshal(update.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal job result: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("result = $%d", next()))
		args = append(args, data)
	}
	if update.ErrorMessage != nil {
		setClauses = append(setClauses, fmt.Sprintf("error_message = $%d", next()))
		args = append(args, *update.ErrorMessage)
	}
	if update.TotalItems != nil {
		setClauses = append(setClauses, fmt.Sprintf("total_items = $%d", next()))
		args = append(args, *update.TotalItems)
	}
	if update.ProcessedItems != nil {
		setClauses = append(setClauses, fmt.Sprintf("processed_items = $%d", next()))
		args = append(args, *update.ProcessedItems)
	}
	if update.Percent != nil {
		setClauses = append(setClauses, fmt.Sprintf("percent = $%d", next()))
		args = append(args, *update.Percent)
	}

	query := "UPDATE jobs SET "
	for i, clause := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += fmt.Sprintf(" WHERE id = $%d", next())
	args = append(args, id)
	if expectedStatus != nil {
		query += fmt.Sprintf(" AND status = $%d", next())
		args = append(args, *expectedStatus)
	}
	query += " RETURNING " + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		if expectedStatus != nil {
			// The row moved between the read and the write; report the
			// status it holds now.
			current, getErr := s.GetByID(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			return nil, fmt.Errorf("%w: job is %s", store.ErrInvalidTransition, current.Status)
		}
		return nil, store.ErrJobNotFound
	}
	if err != nil {
		log.Error("failed to update job",
			slog.String("job_id", id.String()),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	return job, nil
}

// RequestCancel implements store.JobStore.RequestCancel with two
// conditional updates so the decision and the write are one statement.
func (s *JobStore) RequestCancel(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	now := time.Now().UTC()

	// pending jobs are canceled outright.
	query := `
		UPDATE jobs SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
		RETURNING ` + jobColumns
	job, err := scanJob(s.db.QueryRowContext(ctx, query,
		domain.JobStatusCanceled, now, id, domain.JobStatusPending))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}

	// in_progress jobs move to cancelling for the handler to observe.
	job, err = scanJob(s.db.QueryRowContext(ctx, query,
		domain.JobStatusCancelling, now, id, domain.JobStatusInProgress))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}

	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: job is %s", store.ErrInvalidTransition, current.Status)
}

// ListPaginated implements store.JobStore.ListPaginated, newest first.
func (s *JobStore) ListPaginated(ctx context.Context, page store.Page) (*store.JobPage, error) {
	if page.Limit <= 0 {
		page.Limit = 50
	}

	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := s.db.QueryContext(ctx, query, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	return &store.JobPage{Jobs: jobs, Total: total}, nil
}

// LatestByKind implements store.JobStore.LatestByKind.
func (s *JobStore) LatestByKind(ctx context.Context, projectID string, kind domain.TaskKind) (*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + ` FROM jobs
		WHERE project_id = $1 AND task_kind = $2
		ORDER BY created_at DESC
		LIMIT 1`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, projectID, kind))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest job: %w", err)
	}
	return job, nil
}

// ResetStale implements store.JobStore.ResetStale.
func (s *JobStore) ResetStale(ctx context.Context) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE jobs SET status = $1, updated_at = $2
		WHERE status IN ($3, $4)`
	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusPending,
		time.Now().UTC(),
		domain.JobStatusInProgress,
		domain.JobStatusCancelling,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale jobs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		log.Info("reset stale jobs to pending", slog.Int64("count", affected))
	}
	return int(affected), nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job          domain.Job
		payload      sql.NullString
		result       sql.NullString
		totalItems   sql.NullInt64
		processed    sql.NullInt64
		percent      sql.NullFloat64
		errorMessage sql.NullString
	)

	err := row.Scan(
		&job.ID,
		&job.TaskKind,
		&job.ProjectID,
		&payload,
		&job.Status,
		&result,
		&totalItems,
		&processed,
		&percent,
		&errorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if payload.Valid {
		job.Payload = json.RawMessage(payload.String)
	}
	if result.Valid {
		job.Result = json.RawMessage(result.String)
	}
	job.Progress = domain.JobProgress{
		TotalItems:     int(totalItems.Int64),
		ProcessedItems: int(processed.Int64),
		Percent:        percent.Float64,
	}
	job.ErrorMessage = errorMessage.String
	return &job, nil
}

// nullableJSON converts raw JSON into a driver value that stores NULL
// for empty payloads.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
