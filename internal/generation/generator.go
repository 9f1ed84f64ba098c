// Package generation defines the model-provider abstraction the task
// handlers generate content through, plus the structured response
// shapes they expect back.
package generation

import (
	"context"
	"strings"
)

// Role identifies the author of a prompt message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one turn of a prompt.
type Message struct {
	Role    Role
	Content string
}

// Request describes a single generation call.
type Request struct {
	// Model overrides the provider's default model when non-empty.
	Model string

	// Messages is the prompt, in order.
	Messages []Message

	// ResponseSchema, when non-nil, asks the provider to constrain
	// output to the given JSON schema. Providers that cannot enforce
	// schemas natively ignore it; callers handle JSONMode themselves by
	// embedding format instructions in the prompt.
	ResponseSchema *ResponseSchema

	// Temperature, when non-nil, overrides the provider default.
	Temperature *float32
}

// Usage reports token accounting for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the outcome of a generation call.
type Response struct {
	Text      string
	Usage     Usage
	LatencyMs int64
}

// ModelProvider is the boundary between task handlers and a concrete
// model backend.
type ModelProvider interface {
	// Generate performs one model call. Implementations must honor
	// context cancellation and return wrapped sentinel errors from this
	// package so callers can classify failures.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name identifies the backing provider in request logs.
	Name() string
}

// StripFences removes a leading/trailing markdown code fence from model
// output. Models in prompt-engineering JSON mode frequently wrap their
// JSON in ```json blocks despite instructions not to.
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
