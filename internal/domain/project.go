package domain

import "time"

// ProjectType determines what kind of content a project generates.
type ProjectType string

const (
	ProjectTypeLorebook          ProjectType = "lorebook"
	ProjectTypeCharacter         ProjectType = "character"
	ProjectTypeCharacterLorebook ProjectType = "character_lorebook"
)

// ProjectStatus tracks a project's position in the content pipeline.
type ProjectStatus string

const (
	ProjectStatusDraft                 ProjectStatus = "draft"
	ProjectStatusSearchParamsGenerated ProjectStatus = "search_params_generated"
	ProjectStatusSelectorGenerated     ProjectStatus = "selector_generated"
	ProjectStatusLinksExtracted        ProjectStatus = "links_extracted"
	ProjectStatusProcessing            ProjectStatus = "processing"
	ProjectStatusCompleted             ProjectStatus = "completed"
	ProjectStatusFailed                ProjectStatus = "failed"
)

// JSONEnforcementMode selects how structured model output is requested:
// natively through the provider API, or by instruction in the prompt.
type JSONEnforcementMode string

const (
	JSONModeAPINative         JSONEnforcementMode = "api_native"
	JSONModePromptEngineering JSONEnforcementMode = "prompt_engineering"
)

// SearchParams are the model-generated extraction parameters derived
// from the user's free-text prompt.
type SearchParams struct {
	Purpose         string `json:"purpose"`
	ExtractionNotes string `json:"extraction_notes"`
	Criteria        string `json:"criteria"`
}

// ProjectTemplates holds the per-project prompt template overrides.
// Empty fields fall back to the package defaults in internal/templates.
type ProjectTemplates struct {
	SelectorGeneration          string `json:"selector_generation,omitempty"`
	EntryCreation               string `json:"entry_creation,omitempty"`
	SearchParamsGeneration      string `json:"search_params_generation,omitempty"`
	CharacterGeneration         string `json:"character_generation,omitempty"`
	CharacterFieldRegeneration  string `json:"character_field_regeneration,omitempty"`
	CharacterLorebookGeneration string `json:"character_lorebook_generation,omitempty"`
}

// Project is the top-level unit of work: a prompt, a set of sources and
// the generated content derived from them.
type Project struct {
	ID                string              `json:"id"`
	Name              string              `json:"name"`
	Type              ProjectType         `json:"project_type"`
	Status            ProjectStatus       `json:"status"`
	Prompt            string              `json:"prompt,omitempty"`
	SearchParams      *SearchParams       `json:"search_params,omitempty"`
	Templates         ProjectTemplates    `json:"templates"`
	ModelName         string              `json:"model_name"`
	RequestsPerMinute int                 `json:"requests_per_minute"`
	JSONMode          JSONEnforcementMode `json:"json_enforcement_mode"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// ProjectUpdate carries a partial update for a project row.
type ProjectUpdate struct {
	Status       *ProjectStatus
	SearchParams *SearchParams
}
