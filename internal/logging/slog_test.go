package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileLines decodes the JSON lines written to the session file.
func fileLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func TestSetup_FileIsJSON(t *testing.T) {
	var file bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{File: &file, Level: "info"})
	m.Component("switcher").Info("Switched", "host", "h1", "to", "Lab")

	lines := fileLines(t, &file)
	require.Len(t, lines, 2)
	assert.Equal(t, "Logging initialized", lines[0]["msg"])
	assert.Equal(t, "Switched", lines[1]["msg"])
	assert.Equal(t, "switcher", lines[1]["component"])
	assert.Equal(t, "Lab", lines[1]["to"])
}

func TestSetup_ConsoleAndFile(t *testing.T) {
	var console, file bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{Console: &console, File: &file, Level: "info"})
	m.Logger().Info("both", "host", "h1")

	assert.Contains(t, console.String(), "msg=both host=h1")
	assert.Contains(t, file.String(), `"msg":"both"`)
}

func TestSetup_FileLevel(t *testing.T) {
	var console, file bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{Console: &console, File: &file, Level: "warn", FileLevel: "debug"})

	m.Logger().Debug("capability attached")
	m.Logger().Warn("switch declined")

	assert.NotContains(t, console.String(), "capability attached")
	assert.Contains(t, console.String(), "switch declined")
	assert.Contains(t, file.String(), "capability attached")
	assert.Equal(t, slog.LevelWarn, m.Level())
}

func TestSetup_LevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{Console: &buf, Level: "info"})

	m.Logger().Debug("should be filtered")
	m.Logger().Info("should appear")

	assert.NotContains(t, buf.String(), "should be filtered")
	assert.Contains(t, buf.String(), "should appear")
}

func TestSetup_ReplacesOutputs(t *testing.T) {
	var first, second bytes.Buffer
	m := NewSlogManager()

	m.Setup(Options{Console: &first, Level: "info"})
	m.Logger().Info("one")
	m.Setup(Options{Console: &second, Level: "info"})
	m.Logger().Info("two")

	assert.Contains(t, first.String(), "one")
	assert.NotContains(t, first.String(), "two")
	assert.Contains(t, second.String(), "two")
}

func TestSetup_TimestampsAreUTC(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{Console: &buf, Level: "info"})

	assert.Regexp(t, `time=\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z`, buf.String())
}

func TestSetup_Attrs(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{Console: &buf, Level: "info", Attrs: []slog.Attr{slog.String("session", "20260301_120000")}})

	m.Component("handlers").Info("Saved host states")

	assert.Contains(t, buf.String(), "session=20260301_120000 component=handlers")
}

func TestLogger_DefaultBeforeSetup(t *testing.T) {
	assert.Equal(t, slog.Default(), NewSlogManager().Logger())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" DEBUG ", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

// failingHandler accepts every record and fails to write it.
type failingHandler struct {
	slog.Handler
}

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("disk full")
}

func TestFanout_ReachesEveryOutput(t *testing.T) {
	var buf bytes.Buffer
	f := fanout{failingHandler{}, slog.NewTextHandler(&buf, nil)}

	err := f.Handle(context.Background(), slog.NewRecord(timeZero, slog.LevelInfo, "still written", 0))

	assert.EqualError(t, err, "disk full")
	assert.Contains(t, buf.String(), "still written")
}

func TestFanout_Enabled(t *testing.T) {
	info := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelInfo})
	debug := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug})
	ctx := context.Background()

	assert.False(t, fanout{}.Enabled(ctx, slog.LevelError))
	assert.False(t, fanout{info}.Enabled(ctx, slog.LevelDebug))
	assert.True(t, fanout{info, debug}.Enabled(ctx, slog.LevelDebug))
}

func TestFanout_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	f := fanout{slog.NewTextHandler(&buf, nil)}

	slog.New(f.WithGroup("quote")).Info("Quoted", "cost", 150)
	assert.Contains(t, buf.String(), "quote.cost=150")

	same := f.WithGroup("")
	assert.Equal(t, f, same)
}

var timeZero = time.Time{}
