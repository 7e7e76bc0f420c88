package server

import (
	"net/http"
	"time"

	jsonwriter "github.com/dgellow/grant-intake/internal/json"
	"github.com/dgellow/grant-intake/internal/log"
	"github.com/dgellow/grant-intake/internal/session"
	"github.com/dgellow/grant-intake/internal/sse"
)

// StateWatcher streams session snapshots.
type StateWatcher interface {
	Watch() (<-chan session.State, func())
}

// SessionEventsHandler streams the session state as server-sent events: one
// "session" event with the current state on connect, then one per change.
type SessionEventsHandler struct {
	watcher      StateWatcher
	pingInterval time.Duration
}

// NewSessionEventsHandler creates the handler.
func NewSessionEventsHandler(watcher StateWatcher) *SessionEventsHandler {
	return &SessionEventsHandler{
		watcher:      watcher,
		pingInterval: 30 * time.Second,
	}
}

// ServeHTTP handles GET /session/events
func (h *SessionEventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonwriter.WriteMethodNotAllowed(w, http.MethodGet)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonwriter.WriteInternalServerError(w, "Streaming unsupported")
		return
	}

	states, cancel := h.watcher.Watch()
	defer cancel()

	sse.SetHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case s, ok := <-states:
			if !ok {
				// orchestrator stopped
				return
			}
			if err := sse.WriteEvent(w, flusher, "session", newSessionResponse(s)); err != nil {
				log.LogDebugWithFields("session_api", "Event stream closed", map[string]any{
					"error": err.Error(),
				})
				return
			}
		case <-ticker.C:
			if err := sse.WriteEvent(w, flusher, "ping", map[string]any{}); err != nil {
				return
			}
		}
	}
}
