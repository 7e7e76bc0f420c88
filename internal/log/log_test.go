package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "info", want: slog.LevelInfo},
		{in: "WARNING", want: slog.LevelWarn},
		{in: "debug", want: slog.LevelDebug},
		{in: "trace", want: LevelTrace},
		{in: "error", want: slog.LevelError},
		{in: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetOutputCapturesComponentFields(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	LogWarnWithFields("session", "Profile fetch failed", map[string]any{
		"subject": "user-1",
	})

	out := buf.String()
	assert.Contains(t, out, "Profile fetch failed")
	assert.Contains(t, out, "component=session")
	assert.Contains(t, out, "subject=user-1")
}

func TestTraceLevelNamed(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	prev := GetLogLevel()
	require.NoError(t, SetLogLevel("trace"))
	defer func() { _ = SetLogLevel(prev) }()

	buf.Reset()
	LogTraceWithFields("session", "event queued", nil)
	assert.Contains(t, buf.String(), "level=TRACE")
}
