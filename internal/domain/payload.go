package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

// TaskKind identifies which handler processes a job and which payload
// and result shapes its raw JSON decodes into.
type TaskKind string

// The fixed enumeration of task kinds.
const (
	TaskDiscoverAndCrawlSources  TaskKind = "discover_and_crawl_sources"
	TaskRescanLinks              TaskKind = "rescan_links"
	TaskConfirmLinks             TaskKind = "confirm_links"
	TaskProcessProjectEntries    TaskKind = "process_project_entries"
	TaskGenerateSearchParams     TaskKind = "generate_search_params"
	TaskFetchSourceContent       TaskKind = "fetch_source_content"
	TaskGenerateCharacterCard    TaskKind = "generate_character_card"
	TaskRegenerateCharacterField TaskKind = "regenerate_character_field"
	TaskGenerateLorebookEntries  TaskKind = "generate_lorebook_entries"
)

// AllTaskKinds lists every valid kind, in a stable order.
var AllTaskKinds = []TaskKind{
	TaskDiscoverAndCrawlSources,
	TaskRescanLinks,
	TaskConfirmLinks,
	TaskProcessProjectEntries,
	TaskGenerateSearchParams,
	TaskFetchSourceContent,
	TaskGenerateCharacterCard,
	TaskRegenerateCharacterField,
	TaskGenerateLorebookEntries,
}

// Valid reports whether the kind is a member of the enumeration.
func (k TaskKind) Valid() bool {
	for _, kind := range AllTaskKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// --- Payloads ---

// CrawlSourcesPayload selects the sources a crawl-family job operates on.
// Shared by discover_and_crawl_sources and rescan_links.
type CrawlSourcesPayload struct {
	SourceIDs []uuid.UUID `json:"source_ids"`
}

// ConfirmLinksPayload carries the URLs to persist as pending links.
type ConfirmLinksPayload struct {
	URLs []string `json:"urls"`
}

// ProcessEntriesPayload optionally restricts the link pipeline to
// specific links; empty means all processable links for the project.
type ProcessEntriesPayload struct {
	LinkIDs []uuid.UUID `json:"link_ids,omitempty"`
}

// FetchContentPayload selects the sources to fetch and cache.
type FetchContentPayload struct {
	SourceIDs []uuid.UUID `json:"source_ids"`
}

// GenerateCharacterPayload optionally restricts card generation to
// specific sources; empty means every source with fetched content.
type GenerateCharacterPayload struct {
	SourceIDs []uuid.UUID `json:"source_ids,omitempty"`
}

// RegenerateFieldContext selects what context material accompanies a
// field regeneration request.
type RegenerateFieldContext struct {
	IncludeExistingFields bool        `json:"include_existing_fields"`
	SourceIDsToInclude    []uuid.UUID `json:"source_ids_to_include"`
}

// RegenerateFieldPayload asks the model to rewrite exactly one card field.
type RegenerateFieldPayload struct {
	FieldToRegenerate string                 `json:"field_to_regenerate"`
	CustomPrompt      string                 `json:"custom_prompt,omitempty"`
	ContextOptions    RegenerateFieldContext `json:"context_options"`
}

// --- Results ---

// CrawlSourcesResult is the outcome of a crawl-family job.
type CrawlSourcesResult struct {
	NewLinks           []string    `json:"new_links"`
	ExistingLinks      []string    `json:"existing_links"`
	NewSourcesCreated  int         `json:"new_sources_created"`
	SelectorsGenerated int         `json:"selectors_generated"`
	SourcesFailed      []uuid.UUID `json:"sources_failed"`
}

// ConfirmLinksResult reports how many links were persisted.
type ConfirmLinksResult struct {
	LinksSaved int `json:"links_saved"`
}

// ProcessEntriesResult reports the link pipeline's outcome counts.
type ProcessEntriesResult struct {
	EntriesCreated int `json:"entries_created"`
	EntriesFailed  int `json:"entries_failed"`
	EntriesSkipped int `json:"entries_skipped"`
}

// FetchContentResult reports per-source fetch outcomes.
type FetchContentResult struct {
	SourcesFetched int `json:"sources_fetched"`
	SourcesFailed  int `json:"sources_failed"`
}

// GenerateSearchParamsResult is empty; the generated params live on the project.
type GenerateSearchParamsResult struct{}

// GenerateCharacterResult is empty; the card lives on its own row.
type GenerateCharacterResult struct{}

// RegenerateFieldResult names the field that was rewritten.
type RegenerateFieldResult struct {
	FieldRegenerated string `json:"field_regenerated"`
}

// GenerateEntriesResult reports how many entries a standalone lorebook
// generation produced.
type GenerateEntriesResult struct {
	EntriesCreated int `json:"entries_created"`
}

// payloadPrototypes maps each kind to a factory for its payload type.
var payloadPrototypes = map[TaskKind]func() any{
	TaskDiscoverAndCrawlSources:  func() any { return &CrawlSourcesPayload{} },
	TaskRescanLinks:              func() any { return &CrawlSourcesPayload{} },
	TaskConfirmLinks:             func() any { return &ConfirmLinksPayload{} },
	TaskProcessProjectEntries:    func() any { return &ProcessEntriesPayload{} },
	TaskGenerateSearchParams:     func() any { return &struct{}{} },
	TaskFetchSourceContent:       func() any { return &FetchContentPayload{} },
	TaskGenerateCharacterCard:    func() any { return &GenerateCharacterPayload{} },
	TaskRegenerateCharacterField: func() any { return &RegenerateFieldPayload{} },
	TaskGenerateLorebookEntries:  func() any { return &GenerateCharacterPayload{} },
}

// resultPrototypes maps each kind to a factory for its result type.
var resultPrototypes = map[TaskKind]func() any{
	TaskDiscoverAndCrawlSources:  func() any { return &CrawlSourcesResult{} },
	TaskRescanLinks:              func() any { return &CrawlSourcesResult{} },
	TaskConfirmLinks:             func() any { return &ConfirmLinksResult{} },
	TaskProcessProjectEntries:    func() any { return &ProcessEntriesResult{} },
	TaskGenerateSearchParams:     func() any { return &GenerateSearchParamsResult{} },
	TaskFetchSourceContent:       func() any { return &FetchContentResult{} },
	TaskGenerateCharacterCard:    func() any { return &GenerateCharacterResult{} },
	TaskRegenerateCharacterField: func() any { return &RegenerateFieldResult{} },
	TaskGenerateLorebookEntries:  func() any { return &GenerateEntriesResult{} },
}

// PayloadPrototype returns a zero value of the payload type for the
// kind, or nil for unknown kinds. Used by callers that need to decode
// a payload before a job row exists.
func PayloadPrototype(kind TaskKind) any {
	factory, ok := payloadPrototypes[kind]
	if !ok {
		return nil
	}
	return factory()
}

// DecodePayload decodes the job's raw payload into the type dictated by
// its task kind. A missing payload, an unknown kind or malformed JSON
// yields nil rather than an error: a bad payload degrades to "unknown"
// instead of corrupting the row.
func (j *Job) DecodePayload() any {
	return decodeTagged(j.TaskKind, j.Payload, payloadPrototypes)
}

// DecodeResult decodes the job's raw result the same way DecodePayload
// decodes the payload.
func (j *Job) DecodeResult() any {
	return decodeTagged(j.TaskKind, j.Result, resultPrototypes)
}

func decodeTagged(kind TaskKind, raw json.RawMessage, prototypes map[TaskKind]func() any) any {
	if len(raw) == 0 {
		return nil
	}
	factory, ok := prototypes[kind]
	if !ok {
		return nil
	}
	v := factory()
	if err := json.Unmarshal(raw, v); err != nil {
		return nil
	}
	return v
}
