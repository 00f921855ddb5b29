package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTextAndJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(WithOutput(&buf), WithAttr(slog.String("service", "hub")))
	log.Info("started", Component("hub"))
	assert.Contains(t, buf.String(), "service=hub")
	assert.Contains(t, buf.String(), "component=hub")

	buf.Reset()
	log = New(WithOutput(&buf), WithJSON(), WithLevel(slog.LevelWarn))
	log.Info("hidden")
	log.Warn("visible", Error(errors.New("boom")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "visible", rec["msg"])
	assert.Equal(t, "boom", rec["error"])
}

func TestNilSafeAttrs(t *testing.T) {
	assert.True(t, Error(nil).Equal(slog.Attr{}))
	assert.True(t, ID("task_id", nil).Equal(slog.Attr{}))
	assert.Equal(t, "task_id", ID("task_id", "abc").Key)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}
