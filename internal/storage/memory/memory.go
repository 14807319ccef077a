// internal/storage/memory/memory.go
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/OCAP2/partswitch/internal/config"
	"github.com/OCAP2/partswitch/internal/storage"
	"github.com/OCAP2/partswitch/pkg/core"
)

var (
	_ storage.Backend      = (*Backend)(nil)
	_ storage.EventHistory = (*Backend)(nil)
	_ storage.Exporter     = (*Backend)(nil)
)

// Backend keeps host states in memory and exports them to a JSON file.
type Backend struct {
	cfg config.MemoryConfig

	states map[string]core.HostState // keyed by HostID
	events []core.SwitchEvent

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:    cfg,
		states: make(map[string]core.HostState),
	}
}

// Init reads back a previous export from the output directory, if any.
func (b *Backend) Init() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	export, err := b.readExport()
	if err != nil {
		return fmt.Errorf("reading previous export: %w", err)
	}
	if export == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range export.States {
		b.states[s.HostID] = s
	}
	b.events = append(b.events, export.Events...)
	return nil
}

// Close exports the stored content.
func (b *Backend) Close() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	return b.Export()
}

// SaveHostState stores a copy of the state, replacing the host's previous one.
func (b *Backend) SaveHostState(s *core.HostState) error {
	if s == nil || s.HostID == "" {
		return fmt.Errorf("host state without host id")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states[s.HostID] = clone(*s)
	return nil
}

// LoadHostState returns a copy of the saved state of a host.
func (b *Backend) LoadHostState(hostID string) (*core.HostState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.states[hostID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, hostID)
	}
	c := clone(s)
	return &c, nil
}

// ListHostStates returns every saved state, sorted by host ID.
func (b *Backend) ListHostStates() ([]core.HostState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]core.HostState, 0, len(b.states))
	for _, s := range b.states {
		out = append(out, clone(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HostID < out[j].HostID })
	return out, nil
}

// RecordSwitchEvent appends an event.
func (b *Backend) RecordSwitchEvent(e *core.SwitchEvent) error {
	if e == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, *e)
	return nil
}

// SwitchEvents returns the events of a host in recording order. An empty
// host ID returns every event.
func (b *Backend) SwitchEvents(hostID string) ([]core.SwitchEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []core.SwitchEvent
	for _, e := range b.events {
		if hostID == "" || e.HostID == hostID {
			out = append(out, e)
		}
	}
	return out, nil
}

// clone copies the slices and maps of a state so callers cannot alias the
// stored value.
func clone(s core.HostState) core.HostState {
	c := s
	c.Resources = append([]core.ResourceAmount(nil), s.Resources...)
	if len(s.Workers) > 0 {
		c.Workers = make([]core.WorkerState, len(s.Workers))
		for i, w := range s.Workers {
			c.Workers[i] = w
			if w.Runtime != nil {
				c.Workers[i].Runtime = make(map[string]float64, len(w.Runtime))
				for k, v := range w.Runtime {
					c.Workers[i].Runtime[k] = v
				}
			}
		}
	} else {
		c.Workers = nil
	}
	if len(s.Settings) > 0 {
		c.Settings = make([]core.CapabilitySettings, len(s.Settings))
		for i, cs := range s.Settings {
			c.Settings[i] = core.CapabilitySettings{Type: cs.Type, Fields: make(map[string]any, len(cs.Fields))}
			for k, v := range cs.Fields {
				c.Settings[i].Fields[k] = v
			}
		}
	} else {
		c.Settings = nil
	}
	if len(c.Resources) == 0 {
		c.Resources = nil
	}
	return c
}
