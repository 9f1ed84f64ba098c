package domain

import (
	"time"

	"github.com/google/uuid"
)

// CharacterCard is the structured character profile generated for a
// character project. Field names line up with the regenerate-field
// operation, which addresses them by JSON name.
type CharacterCard struct {
	ID              uuid.UUID `json:"id"`
	ProjectID       string    `json:"project_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Persona         string    `json:"persona"`
	Scenario        string    `json:"scenario"`
	FirstMessage    string    `json:"first_message"`
	ExampleMessages string    `json:"example_messages"`
	AvatarURL       string    `json:"avatar_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CardFieldNames are the card fields the regenerate-field operation may
// target, keyed by their JSON names.
var CardFieldNames = map[string]bool{
	"name":             true,
	"description":      true,
	"persona":          true,
	"scenario":         true,
	"first_message":    true,
	"example_messages": true,
}

// FieldValue returns the named field's current value, or false when the
// name is not an addressable card field.
func (c *CharacterCard) FieldValue(field string) (string, bool) {
	switch field {
	case "name":
		return c.Name, true
	case "description":
		return c.Description, true
	case "persona":
		return c.Persona, true
	case "scenario":
		return c.Scenario, true
	case "first_message":
		return c.FirstMessage, true
	case "example_messages":
		return c.ExampleMessages, true
	}
	return "", false
}

// SetField assigns the named field, updating the timestamp. Returns
// false when the name is not an addressable card field.
func (c *CharacterCard) SetField(field, value string) bool {
	switch field {
	case "name":
		c.Name = value
	case "description":
		c.Description = value
	case "persona":
		c.Persona = value
	case "scenario":
		c.Scenario = value
	case "first_message":
		c.FirstMessage = value
	case "example_messages":
		c.ExampleMessages = value
	default:
		return false
	}
	c.UpdatedAt = time.Now().UTC()
	return true
}
