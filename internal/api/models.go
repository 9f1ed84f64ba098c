package api

import (
	"encoding/json"
	"time"

	"github.com/loreforge/loreforge/internal/domain"
)

// CreateJobRequest represents the request body for submitting a job.
type CreateJobRequest struct {
	TaskKind string          `json:"task_kind" validate:"required"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// CancelJobResponse confirms a cancellation request.
type CancelJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// JobProgressResponse mirrors the job's progress counters.
type JobProgressResponse struct {
	TotalItems     int     `json:"total_items"`
	ProcessedItems int     `json:"processed_items"`
	Percent        float64 `json:"percent"`
}

// JobResponse represents the response data for a job. Payload and
// Result are the kind-specific structures, decoded for the client.
type JobResponse struct {
	ID           string              `json:"id"`
	TaskKind     string              `json:"task_kind"`
	ProjectID    string              `json:"project_id"`
	Status       string              `json:"status"`
	Payload      any                 `json:"payload,omitempty"`
	Result       any                 `json:"result,omitempty"`
	Progress     JobProgressResponse `json:"progress"`
	ErrorMessage string              `json:"error_message,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// JobListResponse is one page of jobs plus the total row count.
type JobListResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Total int           `json:"total"`
}

// jobToDTOResponse converts a domain.Job to a JobResponse.
func jobToDTOResponse(job *domain.Job) JobResponse {
	return JobResponse{
		ID:        job.ID.String(),
		TaskKind:  string(job.TaskKind),
		ProjectID: job.ProjectID,
		Status:    string(job.Status),
		Payload:   job.DecodePayload(),
		Result:    job.DecodeResult(),
		Progress: JobProgressResponse{
			TotalItems:     job.Progress.TotalItems,
			ProcessedItems: job.Progress.ProcessedItems,
			Percent:        job.Progress.Percent,
		},
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}
