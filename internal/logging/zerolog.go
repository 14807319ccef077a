package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/rs/zerolog"
)

// NewZerolog creates the zerolog logger used by the database and influx
// layers. A nil writer disables it.
func NewZerolog(w io.Writer, level string, component string) zerolog.Logger {
	if w == nil {
		return zerolog.Nop()
	}
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(w).
		Level(zerologLevel(level)).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// NewConsoleZerolog writes human-readable lines to w.
func NewConsoleZerolog(w io.Writer, level string, component string) zerolog.Logger {
	return NewZerolog(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}, level, component)
}

func zerologLevel(level string) zerolog.Level {
	switch parseLevel(level) {
	case slog.LevelDebug:
		return zerolog.DebugLevel
	case slog.LevelWarn:
		return zerolog.WarnLevel
	case slog.LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
