package task

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/loreforge/loreforge/internal/domain"
	"github.com/loreforge/loreforge/internal/generation"
	"github.com/loreforge/loreforge/internal/platform/logger"
	"github.com/loreforge/loreforge/internal/store"
	"github.com/loreforge/loreforge/internal/templates"
)

// GenerateSearchParamsHandler derives structured extraction criteria
// from the project's free-form prompt. The result is written onto the
// project itself; every later model call reads it from there.
type GenerateSearchParamsHandler struct {
	deps *Deps
}

// NewGenerateSearchParamsHandler wires the search params job.
func NewGenerateSearchParamsHandler(deps *Deps) *GenerateSearchParamsHandler {
	return &GenerateSearchParamsHandler{deps: deps}
}

var _ Handler = (*GenerateSearchParamsHandler)(nil)

// Kind implements Handler.
func (h *GenerateSearchParamsHandler) Kind() domain.TaskKind { return domain.TaskGenerateSearchParams }

// Execute implements Handler.
func (h *GenerateSearchParamsHandler) Execute(ctx context.Context, job *domain.Job, project *domain.Project, cancel <-chan struct{}) error {
	log := logger.FromContext(ctx)

	if project.Prompt == "" {
		return fmt.Errorf("project %s has no prompt to derive search params from", project.ID)
	}

	system, err := templates.Render("search_params_generation",
		templates.Pick(project.Templates.SearchParamsGeneration, templates.SearchParamsGeneration),
		templates.SearchParamsData{})
	if err != nil {
		return fmt.Errorf("failed to render search params template: %w", err)
	}

	req, err := buildRequest(project,
		[]string{templates.LorebookDefinition, system},
		project.Prompt,
		generation.SearchParamsSchema())
	if err != nil {
		return err
	}

	resp, err := h.deps.generate(ctx, job, project, req)
	if err != nil {
		return err
	}

	var parsed generation.SearchParamsResponse
	if err := generation.DecodeInto(resp.Text, &parsed); err != nil {
		log.Warn("model returned unparseable search params",
			slog.String("raw_response", resp.Text))
		return err
	}

	params := &domain.SearchParams{
		Purpose:         parsed.Purpose,
		ExtractionNotes: parsed.ExtractionNotes,
		Criteria:        parsed.Criteria,
	}

	return store.RunInTransaction(ctx, h.deps.DB, func(ctx context.Context, tx *sql.Tx) error {
		update := domain.ProjectUpdate{SearchParams: params}
		if project.Status == domain.ProjectStatusDraft {
			status := domain.ProjectStatusSearchParamsGenerated
			update.Status = &status
		}
		if err := h.deps.Projects.WithTx(tx).Update(ctx, project.ID, update); err != nil {
			return err
		}

		status := domain.JobStatusCompleted
		_, err := h.deps.updateJob(ctx, tx, job.ID, project.ID, domain.JobUpdate{
			Status: &status,
			Result: domain.GenerateSearchParamsResult{},
		})
		return err
	})
}
