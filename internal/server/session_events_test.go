package server

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgellow/grant-intake/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanWatcher struct {
	ch        chan session.State
	cancelled atomic.Bool
}

func (w *chanWatcher) Watch() (<-chan session.State, func()) {
	return w.ch, func() { w.cancelled.Store(true) }
}

// readEvent returns the next event name and data payload.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			return event, data
		}
	}
}

func TestSessionEventsHandler_Streams(t *testing.T) {
	watcher := &chanWatcher{ch: make(chan session.State, 2)}
	watcher.ch <- session.State{Status: session.StatusLoading, Loading: true}

	srv := httptest.NewServer(NewSessionEventsHandler(watcher))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	event, data := readEvent(t, reader)
	assert.Equal(t, "session", event)
	var first sessionResponse
	require.NoError(t, json.Unmarshal([]byte(data), &first))
	assert.Equal(t, session.StatusLoading, first.Status)
	assert.True(t, first.Loading)

	watcher.ch <- authenticatedState()
	_, data = readEvent(t, reader)
	var second sessionResponse
	require.NoError(t, json.Unmarshal([]byte(data), &second))
	assert.True(t, second.IsAuthenticated)
	assert.Equal(t, "Ada Okafor", second.DisplayName)

	close(watcher.ch)
	_, err = io.ReadAll(reader)
	assert.NoError(t, err)
	assert.Eventually(t, watcher.cancelled.Load, time.Second, 10*time.Millisecond)
}

func TestSessionEventsHandler_Ping(t *testing.T) {
	watcher := &chanWatcher{ch: make(chan session.State)}
	h := NewSessionEventsHandler(watcher)
	h.pingInterval = 10 * time.Millisecond

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	event, _ := readEvent(t, bufio.NewReader(resp.Body))
	assert.Equal(t, "ping", event)
}

func TestSessionEventsHandler_MethodNotAllowed(t *testing.T) {
	rr := httptest.NewRecorder()
	NewSessionEventsHandler(&chanWatcher{}).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/session/events", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
