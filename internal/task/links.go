package task

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/google/uuid"

	"github.com/loreforge/loreforge/internal/domain"
	"github.com/loreforge/loreforge/internal/events"
	"github.com/loreforge/loreforge/internal/fetcher"
	"github.com/loreforge/loreforge/internal/generation"
	"github.com/loreforge/loreforge/internal/platform/logger"
	"github.com/loreforge/loreforge/internal/store"
	"github.com/loreforge/loreforge/internal/templates"
)

// linkOutcome is one Phase 1 result: exactly one of entry, skipReason
// or errMessage is meaningful, discriminated by kind.
type linkOutcome struct {
	linkID     uuid.UUID
	linkURL    string
	kind       outcomeKind
	entry      *generation.EntryData
	rawContent string
	skipReason string
	errMessage string
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeSkipped
	outcomeFailed
)

// ProcessEntriesHandler runs the link processing pipeline: a bounded
// concurrent fetch+generate phase followed by batched transactional
// writes.
type ProcessEntriesHandler struct {
	deps *Deps
}

// NewProcessEntriesHandler wires the pipeline.
func NewProcessEntriesHandler(deps *Deps) *ProcessEntriesHandler {
	return &ProcessEntriesHandler{deps: deps}
}

var _ Handler = (*ProcessEntriesHandler)(nil)

// Kind implements Handler.
func (h *ProcessEntriesHandler) Kind() domain.TaskKind { return domain.TaskProcessProjectEntries }

// Execute implements Handler.
func (h *ProcessEntriesHandler) Execute(ctx context.Context, job *domain.Job, project *domain.Project, cancel <-chan struct{}) error {
	log := logger.FromContext(ctx)

	payload, ok := job.DecodePayload().(*domain.ProcessEntriesPayload)
	if !ok {
		return fmt.Errorf("invalid payload for %s job", job.TaskKind)
	}

	var links []*domain.Link
	var err error
	if len(payload.LinkIDs) > 0 {
		links, err = h.deps.Links.GetByIDs(ctx, payload.LinkIDs)
	} else {
		links, err = h.deps.Links.ListProcessable(ctx, project.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to load links: %w", err)
	}

	total := len(links)
	if total == 0 {
		return h.finalizeEmpty(ctx, job, project)
	}

	// Mark everything processing up front so the UI sees the whole
	// selection claimed by this job.
	err = store.RunInTransaction(ctx, h.deps.DB, func(ctx context.Context, tx *sql.Tx) error {
		status := domain.ProjectStatusProcessing
		if err := h.deps.Projects.WithTx(tx).Update(ctx, project.ID, domain.ProjectUpdate{Status: &status}); err != nil {
			return err
		}
		if _, err := h.deps.updateJob(ctx, tx, job.ID, project.ID, progressUpdate(0, total)); err != nil {
			return err
		}
		linkStatus := domain.LinkStatusProcessing
		txLinks := h.deps.Links.WithTx(tx)
		for _, link := range links {
			updated, err := txLinks.Update(ctx, link.ID, domain.LinkUpdate{Status: &linkStatus})
			if err != nil {
				return err
			}
			h.deps.Events.Publish(events.Event{
				Type:      events.TypeLinkUpdated,
				ProjectID: project.ID,
				Payload:   updated,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Phase 1: bounded concurrent I/O. Every link reports exactly one
	// message; a nil outcome means cancellation skipped it.
	sem := semaphore.NewWeighted(int64(h.deps.LinkConcurrency))
	results := make(chan *linkOutcome, total)
	var wg sync.WaitGroup

	for _, link := range links {
		wg.Add(1)
		go func(link *domain.Link) {
			defer wg.Done()
			if cancelRequested(cancel) {
				results <- nil
				return
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				results <- nil
				return
			}
			defer sem.Release(1)

			if cancelRequested(cancel) {
				results <- nil
				return
			}
			results <- h.processLinkIO(ctx, job, project, link)
		}(link)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Phase 2: outcomes are grouped into fixed-size batches, each
	// applied in one transaction, with a progress update per batch.
	var batch []*linkOutcome
	var processed, created, skipped, failed int
	received := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		counts, err := h.writeBatch(ctx, job, project, batch)
		if err != nil {
			return err
		}
		created += counts[outcomeSuccess]
		skipped += counts[outcomeSkipped]
		failed += counts[outcomeFailed]
		processed += len(batch)
		batch = batch[:0]

		_, err = h.deps.updateJob(ctx, nil, job.ID, project.ID, progressUpdate(processed, total))
		return err
	}

	for outcome := range results {
		received++
		if outcome != nil {
			batch = append(batch, outcome)
		}
		if len(batch) >= h.deps.WriteBatchSize || received == total {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	canceled := cancelRequested(cancel)
	log.Info("link pipeline finished",
		slog.Int("created", created),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed),
		slog.Bool("canceled", canceled))

	return h.finalize(ctx, job, project, created, skipped, failed, canceled)
}

// processLinkIO is Phase 1 for one link: fetch content unless already
// cached, ask the model for a validity judgment plus entry, and fold
// any error into a Failed outcome.
func (h *ProcessEntriesHandler) processLinkIO(ctx context.Context, job *domain.Job, project *domain.Project, link *domain.Link) *linkOutcome {
	outcome := &linkOutcome{linkID: link.ID, linkURL: link.URL}

	content := link.RawContent
	if content == "" {
		fetched, err := h.deps.Fetcher.Fetch(ctx, link.URL, fetcher.Options{
			Format: fetcher.FormatMarkdown,
			Clean:  true,
		})
		if err != nil {
			outcome.kind = outcomeFailed
			outcome.errMessage = err.Error()
			return outcome
		}
		content = fetched
	}

	if project.SearchParams == nil {
		outcome.kind = outcomeFailed
		outcome.errMessage = "project has no search params"
		return outcome
	}
	system, err := templates.Render("entry_creation",
		templates.Pick(project.Templates.EntryCreation, templates.EntryCreation),
		templates.EntryData{
			SourceURL:       link.URL,
			Purpose:         project.SearchParams.Purpose,
			ExtractionNotes: project.SearchParams.ExtractionNotes,
			Criteria:        project.SearchParams.Criteria,
		})
	if err != nil {
		outcome.kind = outcomeFailed
		outcome.errMessage = err.Error()
		return outcome
	}

	req, err := buildRequest(project,
		[]string{templates.LorebookDefinition, system},
		content,
		generation.EntrySchema())
	if err != nil {
		outcome.kind = outcomeFailed
		outcome.errMessage = err.Error()
		return outcome
	}

	resp, err := h.deps.generate(ctx, job, project, req)
	if err != nil {
		outcome.kind = outcomeFailed
		outcome.errMessage = err.Error()
		return outcome
	}

	var entryResp generation.EntryResponse
	if err := generation.DecodeInto(resp.Text, &entryResp); err != nil {
		logger.FromContext(ctx).Warn("entry response failed validation",
			slog.String("link_id", link.ID.String()),
			slog.String("raw_response", resp.Text))
		outcome.kind = outcomeFailed
		outcome.errMessage = err.Error()
		return outcome
	}

	if entryResp.Valid && entryResp.Entry != nil {
		outcome.kind = outcomeSuccess
		outcome.entry = entryResp.Entry
		outcome.rawContent = content
		return outcome
	}

	outcome.kind = outcomeSkipped
	outcome.skipReason = entryResp.Reason
	if outcome.skipReason == "" {
		outcome.skipReason = "Content did not meet project criteria."
	}
	return outcome
}

// writeBatch applies one batch of outcomes in a single transaction and
// returns per-kind counts.
func (h *ProcessEntriesHandler) writeBatch(ctx context.Context, job *domain.Job, project *domain.Project, batch []*linkOutcome) (map[outcomeKind]int, error) {
	counts := make(map[outcomeKind]int)

	err := store.RunInTransaction(ctx, h.deps.DB, func(ctx context.Context, tx *sql.Tx) error {
		txLinks := h.deps.Links.WithTx(tx)
		txEntries := h.deps.Entries.WithTx(tx)

		for _, outcome := range batch {
			var update domain.LinkUpdate

			switch outcome.kind {
			case outcomeSuccess:
				entry, err := domain.NewLorebookEntry(project.ID,
					outcome.entry.Title, outcome.entry.Content,
					outcome.entry.Keywords, outcome.linkURL)
				if err != nil {
					return err
				}
				if err := txEntries.Create(ctx, entry); err != nil {
					return err
				}
				h.deps.Events.Publish(events.Event{
					Type:      events.TypeEntryCreated,
					ProjectID: project.ID,
					Payload:   entry,
				})

				status := domain.LinkStatusCompleted
				update = domain.LinkUpdate{
					Status:          &status,
					LorebookEntryID: &entry.ID,
					RawContent:      &outcome.rawContent,
				}
			case outcomeSkipped:
				status := domain.LinkStatusSkipped
				update = domain.LinkUpdate{Status: &status, SkipReason: &outcome.skipReason}
			case outcomeFailed:
				status := domain.LinkStatusFailed
				update = domain.LinkUpdate{Status: &status, ErrorMessage: &outcome.errMessage}
			}

			updated, err := txLinks.Update(ctx, outcome.linkID, update)
			if err != nil {
				return err
			}
			h.deps.Events.Publish(events.Event{
				Type:      events.TypeLinkUpdated,
				ProjectID: project.ID,
				Payload:   updated,
			})
			counts[outcome.kind]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write outcome batch: %w", err)
	}
	return counts, nil
}

// finalizeEmpty completes a job that had nothing to process.
func (h *ProcessEntriesHandler) finalizeEmpty(ctx context.Context, job *domain.Job, project *domain.Project) error {
	return store.RunInTransaction(ctx, h.deps.DB, func(ctx context.Context, tx *sql.Tx) error {
		status := domain.ProjectStatusCompleted
		if err := h.deps.Projects.WithTx(tx).Update(ctx, project.ID, domain.ProjectUpdate{Status: &status}); err != nil {
			return err
		}
		jobStatus := domain.JobStatusCompleted
		percent := 100.0
		_, err := h.deps.updateJob(ctx, tx, job.ID, project.ID, domain.JobUpdate{
			Status:  &jobStatus,
			Percent: &percent,
			Result:  domain.ProcessEntriesResult{},
		})
		return err
	})
}

// finalize closes out the job. Cancellation reverts any link still
// processing to pending; otherwise the project lands on completed or
// failed depending on whether any link failed.
func (h *ProcessEntriesHandler) finalize(ctx context.Context, job *domain.Job, project *domain.Project, created, skipped, failed int, canceled bool) error {
	return store.RunInTransaction(ctx, h.deps.DB, func(ctx context.Context, tx *sql.Tx) error {
		if canceled {
			if _, err := h.deps.Links.WithTx(tx).ResetProcessing(ctx, project.ID); err != nil {
				return err
			}
			status := domain.JobStatusCanceled
			_, err := h.deps.updateJob(ctx, tx, job.ID, project.ID, domain.JobUpdate{Status: &status})
			return err
		}

		projectStatus := domain.ProjectStatusCompleted
		if failed > 0 {
			projectStatus = domain.ProjectStatusFailed
		}
		if err := h.deps.Projects.WithTx(tx).Update(ctx, project.ID, domain.ProjectUpdate{Status: &projectStatus}); err != nil {
			return err
		}

		status := domain.JobStatusCompleted
		_, err := h.deps.updateJob(ctx, tx, job.ID, project.ID, domain.JobUpdate{
			Status: &status,
			Result: domain.ProcessEntriesResult{
				EntriesCreated: created,
				EntriesFailed:  failed,
				EntriesSkipped: skipped,
			},
		})
		return err
	})
}
