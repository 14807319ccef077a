package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Options selects the outputs of a SlogManager.
type Options struct {
	Console io.Writer // text lines; nil disables console output
	File    io.Writer // JSON lines; nil disables file output
	Level   string
	// FileLevel lets the session file keep more detail than the console.
	// Empty means Level.
	FileLevel string
	Attrs     []slog.Attr // added to every record, e.g. the session id
}

// SlogManager owns the engine logger and its console and file outputs.
type SlogManager struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogManager returns a manager logging through slog.Default until Setup.
func NewSlogManager() *SlogManager {
	return &SlogManager{level: slog.LevelInfo}
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
		}
	}
	return a
}

// Setup builds the outputs. Calling it again replaces them.
func (m *SlogManager) Setup(opts Options) {
	m.level = parseLevel(opts.Level)
	fileLevel := m.level
	if opts.FileLevel != "" {
		fileLevel = parseLevel(opts.FileLevel)
	}

	var outs fanout
	if opts.Console != nil {
		outs = append(outs, slog.NewTextHandler(opts.Console, &slog.HandlerOptions{Level: m.level, ReplaceAttr: utcTime}))
	}
	if opts.File != nil {
		outs = append(outs, slog.NewJSONHandler(opts.File, &slog.HandlerOptions{Level: fileLevel, ReplaceAttr: utcTime}))
	}

	var h slog.Handler = outs
	if len(opts.Attrs) > 0 {
		h = h.WithAttrs(opts.Attrs)
	}
	m.logger = slog.New(h)
	m.logger.Info("Logging initialized", "level", m.level.String(), "fileLevel", fileLevel.String())
}

// Logger returns the configured logger, slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Component returns a logger tagged with a component name.
func (m *SlogManager) Component(name string) *slog.Logger {
	return m.Logger().With("component", name)
}

// Level returns the console level.
func (m *SlogManager) Level() slog.Level {
	return m.level
}

// fanout hands each record to every output that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
