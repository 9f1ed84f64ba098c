package domain

import (
	"time"

	"github.com/google/uuid"
)

// LorebookEntry is a generated piece of structured lore: a titled body
// of text plus the keywords that trigger it.
type LorebookEntry struct {
	ID        uuid.UUID `json:"id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Keywords  []string  `json:"keywords"`
	SourceURL string    `json:"source_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewLorebookEntry creates an entry, validating the required fields.
func NewLorebookEntry(projectID, title, content string, keywords []string, sourceURL string) (*LorebookEntry, error) {
	if projectID == "" {
		return nil, ErrEmptyProjectID
	}
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if content == "" {
		return nil, ErrEmptyContent
	}
	now := time.Now().UTC()
	return &LorebookEntry{
		ID:        uuid.New(),
		ProjectID: projectID,
		Title:     title,
		Content:   content,
		Keywords:  keywords,
		SourceURL: sourceURL,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
