package sqlitestorage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/partswitch/internal/storage"
	"github.com/OCAP2/partswitch/pkg/core"
)

func state(id, template string) *core.HostState {
	return &core.HostState{
		HostID:         id,
		TemplateName:   template,
		CapacityFactor: 1,
		Resources:      []core.ResourceAmount{{Name: "Ore", Amount: 5, MaxAmount: 100}},
		SavedAt:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBackend_InMemoryOnly(t *testing.T) {
	b, err := New(Config{}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.SaveHostState(state("h1", "Storage")))
	got, err := b.LoadHostState("h1")
	require.NoError(t, err)
	assert.Equal(t, "Storage", got.TemplateName)

	_, err = b.LoadHostState("h2")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestBackend_CloseDumpsAndInitRestores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.db")
	cfg := Config{DumpPath: path, DumpInterval: time.Hour}

	first, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, first.Init())
	require.NoError(t, first.SaveHostState(state("h1", "Lab")))
	require.NoError(t, first.RecordSwitchEvent(&core.SwitchEvent{ID: "e1", HostID: "h1", Time: time.Now(), Outcome: "switched"}))
	require.NoError(t, first.Close())
	assert.FileExists(t, path)

	second, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, second.Init())
	defer second.Close()

	got, err := second.LoadHostState("h1")
	require.NoError(t, err)
	assert.Equal(t, "Lab", got.TemplateName)
	assert.Equal(t, []core.ResourceAmount{{Name: "Ore", Amount: 5, MaxAmount: 100}}, got.Resources)

	events, err := second.SwitchEvents("h1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].ID)
}

func TestBackend_DumpLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.db")
	b, err := New(Config{DumpPath: path, DumpInterval: 20 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.SaveHostState(state("h1", "Battery")))

	assert.Eventually(t, func() bool {
		return fileExists(path)
	}, time.Second, 10*time.Millisecond)
}

func TestBackend_CloseWithoutInit(t *testing.T) {
	b, err := New(Config{}, zerolog.Nop())
	require.NoError(t, err)

	assert.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}
