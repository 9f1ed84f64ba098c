package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loreforge/loreforge/internal/domain"
	"github.com/loreforge/loreforge/internal/events"
	"github.com/loreforge/loreforge/internal/fetcher"
	"github.com/loreforge/loreforge/internal/platform/logger"
	"github.com/loreforge/loreforge/internal/store"
)

// FetchContentHandler sequentially fetches and caches raw content per
// source. A per-source failure is recorded and processing continues.
type FetchContentHandler struct {
	deps *Deps
}

// NewFetchContentHandler wires the content fetch job.
func NewFetchContentHandler(deps *Deps) *FetchContentHandler {
	return &FetchContentHandler{deps: deps}
}

var _ Handler = (*FetchContentHandler)(nil)

// Kind implements Handler.
func (h *FetchContentHandler) Kind() domain.TaskKind { return domain.TaskFetchSourceContent }

// Execute implements Handler.
func (h *FetchContentHandler) Execute(ctx context.Context, job *domain.Job, project *domain.Project, cancel <-chan struct{}) error {
	log := logger.FromContext(ctx)

	payload, ok := job.DecodePayload().(*domain.FetchContentPayload)
	if !ok {
		return fmt.Errorf("invalid payload for %s job", job.TaskKind)
	}

	total := len(payload.SourceIDs)
	if _, err := h.deps.updateJob(ctx, nil, job.ID, project.ID, progressUpdate(0, total)); err != nil {
		return err
	}

	var fetched, failed int
	canceled := false
	for _, sourceID := range payload.SourceIDs {
		if cancelRequested(cancel) {
			canceled = true
			break
		}

		if err := h.fetchSource(ctx, project, sourceID); err != nil {
			log.Error("source content fetch failed",
				slog.String("source_id", sourceID.String()),
				slog.String("error", err.Error()))
			failed++
		} else {
			fetched++
		}

		if _, err := h.deps.updateJob(ctx, nil, job.ID, project.ID, progressUpdate(fetched+failed, total)); err != nil {
			return err
		}
	}

	if canceled {
		status := domain.JobStatusCanceled
		_, err := h.deps.updateJob(ctx, nil, job.ID, project.ID, domain.JobUpdate{Status: &status})
		return err
	}

	h.adoptAvatar(ctx, project)

	status := domain.JobStatusCompleted
	_, err := h.deps.updateJob(ctx, nil, job.ID, project.ID, domain.JobUpdate{
		Status: &status,
		Result: domain.FetchContentResult{SourcesFetched: fetched, SourcesFailed: failed},
	})
	return err
}

// fetchSource retrieves one source's content and caches it. Character
// projects get markdown plus best-effort image extraction from the raw
// HTML; lorebook projects cache cleaned HTML.
func (h *FetchContentHandler) fetchSource(ctx context.Context, project *domain.Project, sourceID uuid.UUID) error {
	log := logger.FromContext(ctx)

	source, err := h.deps.Sources.GetByID(ctx, sourceID)
	if err != nil {
		return err
	}

	var content string
	var contentType domain.SourceContentType
	var imageURLs []string

	switch project.Type {
	case domain.ProjectTypeCharacter, domain.ProjectTypeCharacterLorebook:
		content, err = h.deps.Fetcher.Fetch(ctx, source.URL, fetcher.Options{
			Format: fetcher.FormatMarkdown,
			Clean:  true,
		})
		if err != nil {
			return err
		}
		contentType = domain.ContentTypeMarkdown

		// Image extraction wants the uncleaned document; its failure
		// never fails the fetch.
		rawHTML, rawErr := h.deps.Fetcher.Fetch(ctx, source.URL, fetcher.Options{Format: fetcher.FormatHTML})
		if rawErr != nil {
			log.Debug("skipping image extraction, raw fetch failed",
				slog.String("source_id", source.ID.String()),
				slog.String("error", rawErr.Error()))
		} else {
			imageURLs = fetcher.ExtractImageURLs(rawHTML, source.URL)
			log.Info("image extraction complete",
				slog.String("source_id", source.ID.String()),
				slog.Int("images", len(imageURLs)))
		}
	default:
		content, err = h.deps.Fetcher.Fetch(ctx, source.URL, fetcher.Options{
			Format: fetcher.FormatHTML,
			Clean:  true,
		})
		if err != nil {
			return err
		}
		contentType = domain.ContentTypeHTML
	}

	now := time.Now().UTC()
	update := domain.SourceUpdate{
		RawContent:    &content,
		ContentType:   &contentType,
		LastCrawledAt: &now,
	}
	if len(imageURLs) > 0 {
		update.ImageURLs = imageURLs
	}
	if err := h.deps.Sources.Update(ctx, source.ID, update); err != nil {
		return err
	}

	updated, err := h.deps.Sources.GetByID(ctx, source.ID)
	if err == nil {
		h.deps.Events.Publish(events.Event{
			Type:      events.TypeSourceUpdated,
			ProjectID: project.ID,
			Payload:   updated,
		})
	}
	return nil
}

// adoptAvatar sets a character project's card avatar to the first
// extracted image when the card has none yet. Best-effort only.
func (h *FetchContentHandler) adoptAvatar(ctx context.Context, project *domain.Project) {
	if project.Type != domain.ProjectTypeCharacter {
		return
	}
	log := logger.FromContext(ctx)

	sources, err := h.deps.Sources.ListByProject(ctx, project.ID)
	if err != nil {
		log.Warn("avatar adoption skipped", slog.String("error", err.Error()))
		return
	}
	var firstImage string
	for _, source := range sources {
		if len(source.ImageURLs) > 0 {
			firstImage = source.ImageURLs[0]
			break
		}
	}
	if firstImage == "" {
		return
	}

	card, err := h.deps.Cards.GetByProject(ctx, project.ID)
	if store.IsNotFound(err) {
		return
	}
	if err != nil {
		log.Warn("avatar adoption skipped", slog.String("error", err.Error()))
		return
	}
	if card.AvatarURL != "" {
		return
	}

	updated, err := h.deps.Cards.UpdateField(ctx, card.ID, "avatar_url", firstImage)
	if err != nil {
		log.Warn("failed to adopt avatar", slog.String("error", err.Error()))
		return
	}
	log.Info("avatar adopted", slog.String("avatar_url", firstImage))
	h.deps.Events.Publish(events.Event{
		Type:      events.TypeCardUpdated,
		ProjectID: project.ID,
		Payload:   updated,
	})
}
