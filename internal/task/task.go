// Package task implements the background job execution engine: the
// worker loop, the task handler registry, the crawl engine and the link
// processing pipeline.
package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loreforge/loreforge/internal/domain"
	"github.com/loreforge/loreforge/internal/events"
	"github.com/loreforge/loreforge/internal/fetcher"
	"github.com/loreforge/loreforge/internal/generation"
	"github.com/loreforge/loreforge/internal/ratelimit"
	"github.com/loreforge/loreforge/internal/store"
	"github.com/loreforge/loreforge/internal/templates"
)

// Handler executes one kind of background job. The cancel channel is
// closed when cancellation has been requested; handlers consult it only
// at iteration boundaries and finalize the job themselves, including
// the canceled case. A returned error means the handler could not
// finalize and the worker marks the job failed.
type Handler interface {
	Kind() domain.TaskKind
	Execute(ctx context.Context, job *domain.Job, project *domain.Project, cancel <-chan struct{}) error
}

// Registry maps task kinds to their handlers. Built once at startup;
// lookups at dispatch time never use reflection.
type Registry struct {
	handlers map[domain.TaskKind]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.TaskKind]Handler)}
}

// Register adds a handler. Registering two handlers for one kind is a
// wiring bug, so it panics.
func (r *Registry) Register(h Handler) {
	if _, exists := r.handlers[h.Kind()]; exists {
		panic(fmt.Sprintf("handler already registered for task kind %s", h.Kind()))
	}
	r.handlers[h.Kind()] = h
}

// Lookup returns the handler for a kind, or false when none is registered.
func (r *Registry) Lookup(kind domain.TaskKind) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// Deps bundles the collaborators every handler draws on.
type Deps struct {
	DB          *sql.DB
	Jobs        store.JobStore
	Projects    store.ProjectStore
	Sources     store.SourceStore
	Links       store.LinkStore
	Entries     store.EntryStore
	Cards       store.CardStore
	RequestLogs store.RequestLogStore
	Fetcher     fetcher.Fetcher
	Provider    generation.ModelProvider
	Limiter     *ratelimit.ProjectLimiter
	Events      events.Publisher
	Logger      *slog.Logger

	// LinkConcurrency bounds Phase 1 of the link pipeline.
	LinkConcurrency int
	// WriteBatchSize is the Phase 2 transaction batch size.
	WriteBatchSize int
}

// updateJob applies a job update and publishes the result. When tx is
// non-nil the write joins that transaction.
func (d *Deps) updateJob(ctx context.Context, tx store.DBTX, jobID uuid.UUID, projectID string, update domain.JobUpdate) (*domain.Job, error) {
	jobs := d.Jobs
	if tx != nil {
		jobs = jobs.WithTx(tx)
	}
	job, err := jobs.Update(ctx, jobID, update)
	if err != nil {
		return nil, err
	}
	d.Events.Publish(events.Event{
		Type:      events.TypeJobUpdated,
		ProjectID: projectID,
		Payload:   job,
	})
	return job, nil
}

// progressUpdate builds a processed/total progress update.
func progressUpdate(processed, total int) domain.JobUpdate {
	percent := 0.0
	if total > 0 {
		percent = float64(processed) / float64(total) * 100
	}
	return domain.JobUpdate{
		ProcessedItems: &processed,
		TotalItems:     &total,
		Percent:        &percent,
	}
}

// generate performs one rate-limited model call for a project and
// records it in the request log. The returned response may be nil when
// the call failed; the failure is still logged.
func (d *Deps) generate(ctx context.Context, job *domain.Job, project *domain.Project, req generation.Request) (*generation.Response, error) {
	if err := d.Limiter.Wait(ctx, project.ID, project.RequestsPerMinute); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	resp, err := d.Provider.Generate(ctx, req)

	logRow := &domain.RequestLog{
		ID:        uuid.New(),
		ProjectID: project.ID,
		JobID:     job.ID,
		Provider:  d.Provider.Name(),
		Model:     req.Model,
		Failed:    err != nil,
		CreatedAt: time.Now().UTC(),
	}
	if resp != nil {
		logRow.InputTokens = resp.Usage.InputTokens
		logRow.OutputTokens = resp.Usage.OutputTokens
		logRow.LatencyMs = resp.LatencyMs
	}
	if logErr := d.RequestLogs.Create(ctx, logRow); logErr != nil {
		d.Logger.Warn("failed to record model request",
			slog.String("job_id", job.ID.String()),
			slog.String("error", logErr.Error()))
	}

	if err != nil {
		return nil, err
	}
	return resp, nil
}

// buildRequest assembles a generation request honoring the project's
// JSON enforcement mode: api_native passes the schema through for the
// provider to enforce, prompt_engineering embeds format instructions
// instead.
func buildRequest(project *domain.Project, system []string, user string, schema *generation.ResponseSchema) (generation.Request, error) {
	req := generation.Request{Model: project.ModelName}

	if schema != nil && project.JSONMode == domain.JSONModePromptEngineering {
		schemaJSON, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return req, fmt.Errorf("failed to marshal response schema: %w", err)
		}
		formatter, err := templates.Render("json_formatter", templates.JSONFormatter,
			templates.JSONFormatterData{Schema: string(schemaJSON)})
		if err != nil {
			return req, err
		}
		system = append(system, formatter)
		schema = nil
	}
	req.ResponseSchema = schema

	for _, content := range system {
		req.Messages = append(req.Messages, generation.Message{
			Role:    generation.RoleSystem,
			Content: content,
		})
	}
	req.Messages = append(req.Messages, generation.Message{
		Role:    generation.RoleUser,
		Content: user,
	})
	return req, nil
}

// cancelRequested reports whether the cancel channel has been closed,
// without blocking.
func cancelRequested(cancel <-chan struct{}) bool {
	select {
	case <-cancel:
		return true
	default:
		return false
	}
}
