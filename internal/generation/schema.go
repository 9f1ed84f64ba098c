package generation

import (
	"encoding/json"
	"fmt"
)

// ResponseSchema is a minimal JSON-schema description passed to
// providers that support native structured output.
type ResponseSchema struct {
	Type       string                     `json:"type"`
	Properties map[string]*ResponseSchema `json:"properties,omitempty"`
	Items      *ResponseSchema            `json:"items,omitempty"`
	Required   []string                   `json:"required,omitempty"`
}

// SelectorResponse is the model's answer to selector generation: the
// CSS selectors that drive a crawl.
type SelectorResponse struct {
	ContentSelectors   []string `json:"content_selectors"`
	CategorySelectors  []string `json:"category_selectors"`
	PaginationSelector string   `json:"pagination_selector"`
}

// EntryData is the generated body of one lorebook entry.
type EntryData struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
}

// EntryResponse is the model's verdict on one content page: either a
// generated entry, or a stated reason the page holds nothing usable.
type EntryResponse struct {
	Valid  bool       `json:"valid"`
	Reason string     `json:"reason,omitempty"`
	Entry  *EntryData `json:"entry,omitempty"`
}

// SearchParamsResponse carries the extraction parameters derived from a
// project prompt.
type SearchParamsResponse struct {
	Purpose         string `json:"purpose"`
	ExtractionNotes string `json:"extraction_notes"`
	Criteria        string `json:"criteria"`
}

// CharacterCardData is a full generated character profile.
type CharacterCardData struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Persona         string `json:"persona"`
	Scenario        string `json:"scenario"`
	FirstMessage    string `json:"first_message"`
	ExampleMessages string `json:"example_messages"`
}

// RegeneratedFieldResponse carries one rewritten card field.
type RegeneratedFieldResponse struct {
	Value string `json:"value"`
}

// CharacterEntriesResponse carries lorebook entries generated to
// accompany a character card.
type CharacterEntriesResponse struct {
	Entries []EntryData `json:"entries"`
}

// DecodeInto parses model output into the given response struct,
// tolerating markdown fences around the JSON.
func DecodeInto(text string, out any) error {
	cleaned := StripFences(text)
	if cleaned == "" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func stringSchema() *ResponseSchema {
	return &ResponseSchema{Type: "string"}
}

func stringArraySchema() *ResponseSchema {
	return &ResponseSchema{Type: "array", Items: stringSchema()}
}

// SelectorSchema describes SelectorResponse for native JSON mode.
func SelectorSchema() *ResponseSchema {
	return &ResponseSchema{
		Type: "object",
		Properties: map[string]*ResponseSchema{
			"content_selectors":   stringArraySchema(),
			"category_selectors":  stringArraySchema(),
			"pagination_selector": stringSchema(),
		},
		Required: []string{"content_selectors"},
	}
}

func entryDataSchema() *ResponseSchema {
	return &ResponseSchema{
		Type: "object",
		Properties: map[string]*ResponseSchema{
			"title":    stringSchema(),
			"content":  stringSchema(),
			"keywords": stringArraySchema(),
		},
		Required: []string{"title", "content"},
	}
}

// EntrySchema describes EntryResponse for native JSON mode.
func EntrySchema() *ResponseSchema {
	return &ResponseSchema{
		Type: "object",
		Properties: map[string]*ResponseSchema{
			"valid":  {Type: "boolean"},
			"reason": stringSchema(),
			"entry":  entryDataSchema(),
		},
		Required: []string{"valid"},
	}
}

// SearchParamsSchema describes SearchParamsResponse for native JSON mode.
func SearchParamsSchema() *ResponseSchema {
	return &ResponseSchema{
		Type: "object",
		Properties: map[string]*ResponseSchema{
			"purpose":          stringSchema(),
			"extraction_notes": stringSchema(),
			"criteria":         stringSchema(),
		},
		Required: []string{"purpose", "extraction_notes", "criteria"},
	}
}

// CharacterCardSchema describes CharacterCardData for native JSON mode.
func CharacterCardSchema() *ResponseSchema {
	return &ResponseSchema{
		Type: "object",
		Properties: map[string]*ResponseSchema{
			"name":             stringSchema(),
			"description":      stringSchema(),
			"persona":          stringSchema(),
			"scenario":         stringSchema(),
			"first_message":    stringSchema(),
			"example_messages": stringSchema(),
		},
		Required: []string{"name", "description", "persona"},
	}
}

// RegeneratedFieldSchema describes RegeneratedFieldResponse for native
// JSON mode.
func RegeneratedFieldSchema() *ResponseSchema {
	return &ResponseSchema{
		Type: "object",
		Properties: map[string]*ResponseSchema{
			"value": stringSchema(),
		},
		Required: []string{"value"},
	}
}

// CharacterEntriesSchema describes CharacterEntriesResponse for native
// JSON mode.
func CharacterEntriesSchema() *ResponseSchema {
	return &ResponseSchema{
		Type: "object",
		Properties: map[string]*ResponseSchema{
			"entries": {Type: "array", Items: entryDataSchema()},
		},
		Required: []string{"entries"},
	}
}
