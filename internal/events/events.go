// Package events fans job and content change notifications out to
// interested subscribers, feeding the server-sent-events endpoint.
package events

// Type identifies what changed.
type Type string

const (
	TypeJobUpdated    Type = "job_updated"
	TypeLinksCreated  Type = "links_created"
	TypeLinkUpdated   Type = "link_updated"
	TypeEntryCreated  Type = "entry_created"
	TypeSourceUpdated Type = "source_updated"
	TypeCardUpdated   Type = "character_card_updated"
)

// Event is one change notification scoped to a project. Payload is the
// changed entity, already in its API shape.
type Event struct {
	Type      Type   `json:"type"`
	ProjectID string `json:"project_id"`
	Payload   any    `json:"payload,omitempty"`
}

// Publisher is the producer side of the hub. Handlers publish through
// this interface so tests can swap in a recorder.
type Publisher interface {
	Publish(event Event)
}

// NopPublisher discards events.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

// Publish implements Publisher.
func (NopPublisher) Publish(Event) {}
