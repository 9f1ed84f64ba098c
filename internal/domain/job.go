package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a background job.
type JobStatus string

// Possible job status values.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelling JobStatus = "cancelling"
	JobStatusCanceled   JobStatus = "canceled"
)

// IsTerminal reports whether the status is one a job can never leave.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// jobTransitions is the set of legal status transitions. Anything not
// listed here is rejected by CanTransition.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusInProgress, JobStatusCanceled},
	JobStatusInProgress: {JobStatusCompleted, JobStatusFailed, JobStatusCancelling},
	JobStatusCancelling: {JobStatusCanceled},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// JobProgress tracks incremental completion of a job's items.
type JobProgress struct {
	TotalItems     int     `json:"total_items"`
	ProcessedItems int     `json:"processed_items"`
	Percent        float64 `json:"percent"`
}

// Job represents one unit of asynchronous work with a persisted status
// and result. Payload and Result are stored as raw JSON and decoded
// strictly by TaskKind; see DecodePayload and DecodeResult.
type Job struct {
	ID           uuid.UUID       `json:"id"`
	TaskKind     TaskKind        `json:"task_kind"`
	ProjectID    string          `json:"project_id"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Status       JobStatus       `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	Progress     JobProgress     `json:"progress"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewJob creates a pending job for the given kind and project, with the
// payload serialized to JSON.
func NewJob(kind TaskKind, projectID string, payload any) (*Job, error) {
	if !kind.Valid() {
		return nil, ErrUnknownTaskKind
	}
	if projectID == "" {
		return nil, ErrEmptyProjectID
	}

	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}

	now := time.Now().UTC()
	return &Job{
		ID:        uuid.New(),
		TaskKind:  kind,
		ProjectID: projectID,
		Payload:   raw,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// JobUpdate carries a partial update for a job row. Nil fields are left
// untouched by the store.
type JobUpdate struct {
	Status         *JobStatus
	Result         any
	ErrorMessage   *string
	TotalItems     *int
	ProcessedItems *int
	Percent        *float64
}

// StatusUpdate is a convenience constructor for a status-only update.
func StatusUpdate(status JobStatus) JobUpdate {
	return JobUpdate{Status: &status}
}
