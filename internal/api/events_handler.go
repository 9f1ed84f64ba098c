package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/loreforge/loreforge/internal/api/shared"
	"github.com/loreforge/loreforge/internal/events"
)

// EventsHandler streams job and content change notifications over
// server-sent events.
type EventsHandler struct {
	hub    *events.Hub
	logger *slog.Logger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(hub *events.Hub, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		hub:    hub,
		logger: logger.With(slog.String("component", "events_handler")),
	}
}

// Stream handles GET /api/events requests. An optional project_id query
// parameter narrows the stream to one project; without it the client
// receives every project's events.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Streaming is not supported")
		return
	}

	projectID := r.URL.Query().Get("project_id")
	sub := h.hub.Subscribe(projectID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug("event stream opened", slog.String("project_id", projectID))

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("event stream closed", slog.String("project_id", projectID))
			return
		case event, open := <-sub.C:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("failed to marshal event",
					slog.String("type", string(event.Type)),
					slog.String("error", err.Error()))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
