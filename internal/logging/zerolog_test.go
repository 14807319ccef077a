package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewZerolog(t *testing.T) {
	var buf bytes.Buffer
	zl := NewZerolog(&buf, "warn", "database")

	zl.Info().Msg("filtered")
	zl.Warn().Str("table", "host_states").Msg("slow query")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "slow query", entry["message"])
	assert.Equal(t, "database", entry["component"])
	assert.Equal(t, "host_states", entry["table"])
	assert.Equal(t, "warn", entry["level"])
}

func TestNewZerolog_NilWriter(t *testing.T) {
	zl := NewZerolog(nil, "debug", "influx")
	// Nop logger must not panic
	zl.Error().Msg("dropped")
}

func TestNewConsoleZerolog(t *testing.T) {
	var buf bytes.Buffer
	zl := NewConsoleZerolog(&buf, "debug", "storage")

	zl.Debug().Int("events", 3).Msg("Flushed switch events")

	out := buf.String()
	assert.Contains(t, out, "Flushed switch events")
	assert.Contains(t, out, "events=3")
	assert.Contains(t, out, "component=storage")
}

func TestZerologLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "debug",
		"WARNING": "warn",
		"error":   "error",
		"":        "info",
		"verbose": "info",
	}
	for in, want := range tests {
		assert.Equal(t, want, zerologLevel(in).String(), in)
	}
}
