package task

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/loreforge/loreforge/internal/domain"
	"github.com/loreforge/loreforge/internal/events"
	"github.com/loreforge/loreforge/internal/store"
)

// ConfirmLinksHandler persists a user-confirmed set of URLs as pending
// links. URLs the project already knows are silently skipped.
type ConfirmLinksHandler struct {
	deps *Deps
}

// NewConfirmLinksHandler wires the link confirmation job.
func NewConfirmLinksHandler(deps *Deps) *ConfirmLinksHandler {
	return &ConfirmLinksHandler{deps: deps}
}

var _ Handler = (*ConfirmLinksHandler)(nil)

// Kind implements Handler.
func (h *ConfirmLinksHandler) Kind() domain.TaskKind { return domain.TaskConfirmLinks }

// Execute implements Handler.
func (h *ConfirmLinksHandler) Execute(ctx context.Context, job *domain.Job, project *domain.Project, cancel <-chan struct{}) error {
	payload, ok := job.DecodePayload().(*domain.ConfirmLinksPayload)
	if !ok {
		return fmt.Errorf("invalid payload for %s job", job.TaskKind)
	}

	status := domain.JobStatusCompleted

	if len(payload.URLs) == 0 {
		_, err := h.deps.updateJob(ctx, nil, job.ID, project.ID, domain.JobUpdate{
			Status: &status,
			Result: domain.ConfirmLinksResult{LinksSaved: 0},
		})
		return err
	}

	links := make([]*domain.Link, 0, len(payload.URLs))
	seen := make(map[string]bool, len(payload.URLs))
	for _, url := range payload.URLs {
		if seen[url] {
			continue
		}
		seen[url] = true
		link, err := domain.NewLink(project.ID, url)
		if err != nil {
			return err
		}
		links = append(links, link)
	}

	return store.RunInTransaction(ctx, h.deps.DB, func(ctx context.Context, tx *sql.Tx) error {
		created, err := h.deps.Links.WithTx(tx).CreateBatch(ctx, links)
		if err != nil {
			return err
		}

		if len(created) > 0 {
			h.deps.Events.Publish(events.Event{
				Type:      events.TypeLinksCreated,
				ProjectID: project.ID,
				Payload:   created,
			})
		}

		if project.Status == domain.ProjectStatusSelectorGenerated {
			next := domain.ProjectStatusLinksExtracted
			if err := h.deps.Projects.WithTx(tx).Update(ctx, project.ID, domain.ProjectUpdate{Status: &next}); err != nil {
				return err
			}
		}

		_, err = h.deps.updateJob(ctx, tx, job.ID, project.ID, domain.JobUpdate{
			Status: &status,
			Result: domain.ConfirmLinksResult{LinksSaved: len(created)},
		})
		return err
	})
}
