package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestLog records one outbound model call: which job issued it, what
// it cost and how long it took. Written alongside the work that
// triggered the call, in the same transaction where one exists.
type RequestLog struct {
	ID           uuid.UUID `json:"id"`
	ProjectID    string    `json:"project_id"`
	JobID        uuid.UUID `json:"job_id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	LatencyMs    int64     `json:"latency_ms"`
	Failed       bool      `json:"failed"`
	CreatedAt    time.Time `json:"created_at"`
}
