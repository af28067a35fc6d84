package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(level Level, jsonOutput bool) (*DefaultLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: level, JSONOutput: jsonOutput, Stderr: &buf})
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return l, &buf
}

func TestLevels(t *testing.T) {
	l, buf := newTestLogger(WarnLevel, false)
	l.Debug("debug")
	l.Info("info")
	l.Warn("warn")
	l.Error("error")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[2026-01-02 03:04:05] WARN: warn", lines[0])
	assert.Equal(t, "[2026-01-02 03:04:05] ERROR: error", lines[1])

	buf.Reset()
	l.SetLevel(DebugLevel)
	l.Debug("now visible")
	assert.Contains(t, buf.String(), "DEBUG: now visible")
}

func TestTextFields(t *testing.T) {
	l, buf := newTestLogger(DebugLevel, false)
	l.Info("loaded", "classes", 3, "source", "app.jar")
	assert.Equal(t, "[2026-01-02 03:04:05] INFO: loaded classes=3 source=app.jar\n", buf.String())

	buf.Reset()
	l.Info("odd", "dangling", "k", "v")
	assert.Contains(t, buf.String(), "odd arg=dangling k=v")
}

func TestJSONOutput(t *testing.T) {
	l, buf := newTestLogger(InfoLevel, true)
	l.Warn("skipped", "class", "A", "err", errors.New("bad magic"), "message", "clash")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, map[string]interface{}{
		"timestamp":     "2026-01-02 03:04:05",
		"level":         "WARN",
		"message":       "skipped",
		"class":         "A",
		"err":           "bad magic",
		"field.message": "clash",
	}, entry)

	buf.Reset()
	l.SetJSONOutput(false)
	l.Info("plain")
	assert.True(t, strings.HasPrefix(buf.String(), "["))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestProgressSpinner(t *testing.T) {
	var buf bytes.Buffer
	s := NewProgressSpinner("working")
	s.writer = &buf
	s.colors = false

	s.Stop()
	s.Start()
	s.Start()
	s.Message("still working")
	time.Sleep(200 * time.Millisecond)
	s.Stop()
	s.Stop()

	out := buf.String()
	assert.Contains(t, out, "still working")
	assert.True(t, strings.HasSuffix(out, "\r\033[K"))
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Info("nothing", "k", 1)
	l.SetLevel(DebugLevel)
}
