// Package sse writes server-sent events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SetHeaders prepares w for an event stream.
func SetHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// WriteMessage writes a SSE message to the response writer
func WriteMessage(w http.ResponseWriter, flusher http.Flusher, data any) error {
	return WriteEvent(w, flusher, "", data)
}

// WriteEvent writes data as JSON under the given event name. An empty name
// leaves the client's default "message" event.
func WriteEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
