// Package templates holds the default prompt templates and renders
// them, or their per-project overrides, into prompt text.
package templates

import (
	"fmt"
	"strings"
	"text/template"
)

// Render parses and executes a prompt template against the given data.
func Render(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// Pick returns the override when set, otherwise the default.
func Pick(override, fallback string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return fallback
}

// SelectorData feeds SelectorGeneration.
type SelectorData struct {
	Purpose         string
	ExtractionNotes string
	Criteria        string
}

// SearchParamsData feeds SearchParamsGeneration.
type SearchParamsData struct {
	Prompt string
}

// EntryData feeds EntryCreation.
type EntryData struct {
	SourceURL       string
	Purpose         string
	ExtractionNotes string
	Criteria        string
}

// CharacterData feeds CharacterGeneration and CharacterLorebookGeneration.
type CharacterData struct {
	Prompt string
}

// FieldRegenerationData feeds CharacterFieldRegeneration.
type FieldRegenerationData struct {
	Field          string
	CustomPrompt   string
	ExistingFields string
	SourceMaterial string
}

// JSONFormatterData feeds JSONFormatter, the prompt-engineering
// fallback for providers or projects without native structured output.
type JSONFormatterData struct {
	Schema  string
	Example string
}
