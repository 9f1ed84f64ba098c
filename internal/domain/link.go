package domain

import (
	"time"

	"github.com/google/uuid"
)

// LinkStatus tracks a discovered content URL through the processing
// pipeline. The processing status must never survive a terminated job;
// finalization resets it to pending.
type LinkStatus string

const (
	LinkStatusPending    LinkStatus = "pending"
	LinkStatusProcessing LinkStatus = "processing"
	LinkStatusCompleted  LinkStatus = "completed"
	LinkStatusFailed     LinkStatus = "failed"
	LinkStatusSkipped    LinkStatus = "skipped"
)

// Link is a discovered content URL awaiting, undergoing or finished with
// entry generation. A completed link always references the entry it
// produced.
type Link struct {
	ID              uuid.UUID  `json:"id"`
	ProjectID       string     `json:"project_id"`
	URL             string     `json:"url"`
	Status          LinkStatus `json:"status"`
	LorebookEntryID *uuid.UUID `json:"lorebook_entry_id,omitempty"`
	RawContent      string     `json:"raw_content,omitempty"`
	SkipReason      string     `json:"skip_reason,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewLink creates a pending link.
func NewLink(projectID, url string) (*Link, error) {
	if projectID == "" {
		return nil, ErrEmptyProjectID
	}
	if url == "" {
		return nil, ErrEmptyURL
	}
	now := time.Now().UTC()
	return &Link{
		ID:        uuid.New(),
		ProjectID: projectID,
		URL:       url,
		Status:    LinkStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// LinkUpdate carries a partial update for a link row.
type LinkUpdate struct {
	Status          *LinkStatus
	LorebookEntryID *uuid.UUID
	RawContent      *string
	SkipReason      *string
	ErrorMessage    *string
}
