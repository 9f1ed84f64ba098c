package task

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/loreforge/loreforge/internal/domain"
	"github.com/loreforge/loreforge/internal/events"
	"github.com/loreforge/loreforge/internal/generation"
	"github.com/loreforge/loreforge/internal/platform/logger"
	"github.com/loreforge/loreforge/internal/store"
	"github.com/loreforge/loreforge/internal/templates"
)

// characterEngine holds the model-call plumbing shared by the three
// character-oriented handlers.
type characterEngine struct {
	deps *Deps
}

// aggregateSourceMaterial joins the cached content of the selected
// sources into one prompt block. Empty sourceIDs means every source
// with fetched content. Sources without content are skipped.
func (e *characterEngine) aggregateSourceMaterial(ctx context.Context, projectID string, sourceIDs []uuid.UUID) (string, error) {
	var sources []*domain.Source
	if len(sourceIDs) > 0 {
		for _, id := range sourceIDs {
			source, err := e.deps.Sources.GetByID(ctx, id)
			if err != nil {
				return "", err
			}
			sources = append(sources, source)
		}
	} else {
		all, err := e.deps.Sources.ListByProject(ctx, projectID)
		if err != nil {
			return "", err
		}
		sources = all
	}

	var sections []string
	for _, source := range sources {
		if strings.TrimSpace(source.RawContent) == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("Source: %s\n\n%s", source.URL, source.RawContent))
	}
	if len(sections) == 0 {
		return "", fmt.Errorf("no fetched content available for project %s; fetch source content first", projectID)
	}
	return strings.Join(sections, "\n\n---\n\n"), nil
}

// generateEntries runs one lorebook-entries model call over the given
// material and persists the resulting entries. Returns how many were
// created.
func (e *characterEngine) generateEntries(ctx context.Context, job *domain.Job, project *domain.Project, material string) (int, error) {
	log := logger.FromContext(ctx)

	system, err := templates.Render("character_lorebook_generation",
		templates.Pick(project.Templates.CharacterLorebookGeneration, templates.CharacterLorebookGeneration),
		templates.CharacterData{Prompt: project.Prompt})
	if err != nil {
		return 0, err
	}

	req, err := buildRequest(project,
		[]string{templates.LorebookDefinition, system},
		material,
		generation.CharacterEntriesSchema())
	if err != nil {
		return 0, err
	}

	resp, err := e.deps.generate(ctx, job, project, req)
	if err != nil {
		return 0, err
	}

	var parsed generation.CharacterEntriesResponse
	if err := generation.DecodeInto(resp.Text, &parsed); err != nil {
		log.Warn("model returned unparseable lorebook entries",
			slog.String("raw_response", resp.Text))
		return 0, err
	}

	created := 0
	err = store.RunInTransaction(ctx, e.deps.DB, func(ctx context.Context, tx *sql.Tx) error {
		txEntries := e.deps.Entries.WithTx(tx)
		for _, data := range parsed.Entries {
			entry, entryErr := domain.NewLorebookEntry(project.ID, data.Title, data.Content, data.Keywords, "")
			if entryErr != nil {
				log.Warn("skipping invalid generated entry",
					slog.String("title", data.Title),
					slog.String("error", entryErr.Error()))
				continue
			}
			if createErr := txEntries.Create(ctx, entry); createErr != nil {
				return createErr
			}
			created++
			e.deps.Events.Publish(events.Event{
				Type:      events.TypeEntryCreated,
				ProjectID: project.ID,
				Payload:   entry,
			})
		}
		return nil
	})
	if err != nil {
		return created, err
	}
	return created, nil
}

// GenerateCharacterCardHandler generates a full character card from the
// project's fetched source material. Character-lorebook projects also
// get a set of supporting lorebook entries in the same run.
type GenerateCharacterCardHandler struct {
	engine characterEngine
}

// NewGenerateCharacterCardHandler wires the card generation job.
func NewGenerateCharacterCardHandler(deps *Deps) *GenerateCharacterCardHandler {
	return &GenerateCharacterCardHandler{engine: characterEngine{deps: deps}}
}

var _ Handler = (*GenerateCharacterCardHandler)(nil)

// Kind implements Handler.
func (h *GenerateCharacterCardHandler) Kind() domain.TaskKind { return domain.TaskGenerateCharacterCard }

// Execute implements Handler.
func (h *GenerateCharacterCardHandler) Execute(ctx context.Context, job *domain.Job, project *domain.Project, cancel <-chan struct{}) error {
	log := logger.FromContext(ctx)
	deps := h.engine.deps

	payload, _ := job.DecodePayload().(*domain.GenerateCharacterPayload)
	var sourceIDs []uuid.UUID
	if payload != nil {
		sourceIDs = payload.SourceIDs
	}

	material, err := h.engine.aggregateSourceMaterial(ctx, project.ID, sourceIDs)
	if err != nil {
		return err
	}

	system, err := templates.Render("character_generation",
		templates.Pick(project.Templates.CharacterGeneration, templates.CharacterGeneration),
		templates.CharacterData{Prompt: project.Prompt})
	if err != nil {
		return err
	}

	req, err := buildRequest(project,
		[]string{templates.CharacterCardDefinition, system},
		material,
		generation.CharacterCardSchema())
	if err != nil {
		return err
	}

	resp, err := deps.generate(ctx, job, project, req)
	if err != nil {
		return err
	}

	var parsed generation.CharacterCardData
	if err := generation.DecodeInto(resp.Text, &parsed); err != nil {
		log.Warn("model returned unparseable character card",
			slog.String("raw_response", resp.Text))
		return err
	}
	if parsed.Name == "" {
		return fmt.Errorf("%w: generated card has no name", generation.ErrMalformedResponse)
	}

	card := &domain.CharacterCard{
		ID:              uuid.New(),
		ProjectID:       project.ID,
		Name:            parsed.Name,
		Description:     parsed.Description,
		Persona:         parsed.Persona,
		Scenario:        parsed.Scenario,
		FirstMessage:    parsed.FirstMessage,
		ExampleMessages: parsed.ExampleMessages,
	}
	saved, err := deps.Cards.Upsert(ctx, card)
	if err != nil {
		return err
	}
	deps.Events.Publish(events.Event{
		Type:      events.TypeCardUpdated,
		ProjectID: project.ID,
		Payload:   saved,
	})

	// A character-lorebook project gets its supporting entries in the
	// same run. Entry generation failing never undoes the card.
	if project.Type == domain.ProjectTypeCharacterLorebook {
		if cancelRequested(cancel) {
			status := domain.JobStatusCanceled
			_, err := deps.updateJob(ctx, nil, job.ID, project.ID, domain.JobUpdate{Status: &status})
			return err
		}
		count, entriesErr := h.engine.generateEntries(ctx, job, project, material)
		if entriesErr != nil {
			log.Error("lorebook entry generation failed after card creation",
				slog.String("error", entriesErr.Error()))
		} else {
			log.Info("generated supporting lorebook entries", slog.Int("count", count))
		}
	}

	return store.RunInTransaction(ctx, deps.DB, func(ctx context.Context, tx *sql.Tx) error {
		status := domain.ProjectStatusCompleted
		if err := deps.Projects.WithTx(tx).Update(ctx, project.ID, domain.ProjectUpdate{Status: &status}); err != nil {
			return err
		}
		jobStatus := domain.JobStatusCompleted
		_, err := deps.updateJob(ctx, tx, job.ID, project.ID, domain.JobUpdate{
			Status: &jobStatus,
			Result: domain.GenerateCharacterResult{},
		})
		return err
	})
}

// RegenerateFieldHandler rewrites a single character card field under a
// user-supplied instruction, optionally with the rest of the card and
// selected source material as context.
type RegenerateFieldHandler struct {
	engine characterEngine
}

// NewRegenerateFieldHandler wires the field regeneration job.
func NewRegenerateFieldHandler(deps *Deps) *RegenerateFieldHandler {
	return &RegenerateFieldHandler{engine: characterEngine{deps: deps}}
}

var _ Handler = (*RegenerateFieldHandler)(nil)

// Kind implements Handler.
func (h *RegenerateFieldHandler) Kind() domain.TaskKind { return domain.TaskRegenerateCharacterField }

// Execute implements Handler.
func (h *RegenerateFieldHandler) Execute(ctx context.Context, job *domain.Job, project *domain.Project, cancel <-chan struct{}) error {
	log := logger.FromContext(ctx)
	deps := h.engine.deps

	payload, ok := job.DecodePayload().(*domain.RegenerateFieldPayload)
	if !ok {
		return fmt.Errorf("invalid payload for %s job", job.TaskKind)
	}
	field := payload.FieldToRegenerate
	if !domain.CardFieldNames[field] {
		return fmt.Errorf("unknown card field %q", field)
	}

	card, err := deps.Cards.GetByProject(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("field regeneration requires an existing card: %w", err)
	}

	var existingFields string
	if payload.ContextOptions.IncludeExistingFields {
		existingFields = formatCardFields(card, field)
	}

	var material string
	if len(payload.ContextOptions.SourceIDsToInclude) > 0 {
		material, err = h.engine.aggregateSourceMaterial(ctx, project.ID, payload.ContextOptions.SourceIDsToInclude)
		if err != nil {
			return err
		}
	}

	prompt, err := templates.Render("character_field_regeneration",
		templates.Pick(project.Templates.CharacterFieldRegeneration, templates.CharacterFieldRegeneration),
		templates.FieldRegenerationData{
			Field:          field,
			CustomPrompt:   payload.CustomPrompt,
			ExistingFields: existingFields,
			SourceMaterial: material,
		})
	if err != nil {
		return err
	}

	req, err := buildRequest(project,
		[]string{templates.CharacterCardDefinition},
		prompt,
		generation.RegeneratedFieldSchema())
	if err != nil {
		return err
	}

	resp, err := deps.generate(ctx, job, project, req)
	if err != nil {
		return err
	}

	var parsed generation.RegeneratedFieldResponse
	if err := generation.DecodeInto(resp.Text, &parsed); err != nil {
		log.Warn("model returned unparseable field value",
			slog.String("raw_response", resp.Text))
		return err
	}
	if strings.TrimSpace(parsed.Value) == "" {
		return fmt.Errorf("%w: regenerated field is empty", generation.ErrEmptyResponse)
	}

	updated, err := deps.Cards.UpdateField(ctx, card.ID, field, parsed.Value)
	if err != nil {
		return err
	}
	deps.Events.Publish(events.Event{
		Type:      events.TypeCardUpdated,
		ProjectID: project.ID,
		Payload:   updated,
	})

	status := domain.JobStatusCompleted
	_, err = deps.updateJob(ctx, nil, job.ID, project.ID, domain.JobUpdate{
		Status: &status,
		Result: domain.RegenerateFieldResult{FieldRegenerated: field},
	})
	return err
}

// GenerateLorebookEntriesHandler runs the supporting-entries generation
// on its own, without touching the card.
type GenerateLorebookEntriesHandler struct {
	engine characterEngine
}

// NewGenerateLorebookEntriesHandler wires the standalone entries job.
func NewGenerateLorebookEntriesHandler(deps *Deps) *GenerateLorebookEntriesHandler {
	return &GenerateLorebookEntriesHandler{engine: characterEngine{deps: deps}}
}

var _ Handler = (*GenerateLorebookEntriesHandler)(nil)

// Kind implements Handler.
func (h *GenerateLorebookEntriesHandler) Kind() domain.TaskKind { return domain.TaskGenerateLorebookEntries }

// Execute implements Handler.
func (h *GenerateLorebookEntriesHandler) Execute(ctx context.Context, job *domain.Job, project *domain.Project, cancel <-chan struct{}) error {
	deps := h.engine.deps

	payload, _ := job.DecodePayload().(*domain.GenerateCharacterPayload)
	var sourceIDs []uuid.UUID
	if payload != nil {
		sourceIDs = payload.SourceIDs
	}

	material, err := h.engine.aggregateSourceMaterial(ctx, project.ID, sourceIDs)
	if err != nil {
		return err
	}

	count, err := h.engine.generateEntries(ctx, job, project, material)
	if err != nil {
		return err
	}

	status := domain.JobStatusCompleted
	_, err = deps.updateJob(ctx, nil, job.ID, project.ID, domain.JobUpdate{
		Status: &status,
		Result: domain.GenerateEntriesResult{EntriesCreated: count},
	})
	return err
}

// formatCardFields renders the card's populated fields for prompt
// context, excluding the one being rewritten.
func formatCardFields(card *domain.CharacterCard, exclude string) string {
	var parts []string
	for _, field := range []string{"name", "description", "persona", "scenario", "first_message", "example_messages"} {
		if field == exclude {
			continue
		}
		value, _ := card.FieldValue(field)
		if strings.TrimSpace(value) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:\n%s", strings.ToUpper(field), value))
	}
	return strings.Join(parts, "\n\n")
}
