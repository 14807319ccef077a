package converter

import (
	"log/slog"
	"sort"

	"github.com/OCAP2/partswitch/internal/host"
	"github.com/OCAP2/partswitch/pkg/core"
)

// Manager owns the workers created for a host's current template.
type Manager struct {
	host   *host.Host
	logger *slog.Logger

	workers []*Worker
	pending map[string]core.WorkerState
}

// NewManager creates a worker manager for a host.
func NewManager(h *host.Host, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{host: h, logger: logger}
}

// Rebuild removes every worker created earlier and creates one per
// descriptor whose required module is present. State is matched by
// declared name, never by position. Returns the names created.
func (m *Manager) Rebuild(descriptors []core.WorkerDescriptor) []string {
	states := make(map[string]core.WorkerState, len(m.workers)+len(m.pending))
	for _, w := range m.workers {
		states[w.Name] = w.State()
	}
	for name, s := range m.pending {
		states[name] = s
	}
	m.pending = nil
	m.Clear()

	ctx := m.host.SimContext()
	var names []string
	for _, d := range descriptors {
		if d.RequiredModule != "" && !m.host.HasModule(d.RequiredModule) {
			m.logger.Debug("Converter module missing", "host", m.host.ID, "converter", d.Name, "module", d.RequiredModule)
			continue
		}

		w := NewWorker(d)
		m.host.AddModule(w)
		if err := w.Attach(m.host); err != nil {
			m.drop(w, err)
			continue
		}
		s, restored := states[d.Name]
		if restored {
			w.Restore(s)
		}
		if err := w.Configure(d.Config); err != nil {
			m.drop(w, err)
			continue
		}
		if !restored {
			w.enabled = w.StartEnabled
		}
		w.HideUI()
		if err := w.Start(ctx); err != nil {
			m.drop(w, err)
			continue
		}

		m.workers = append(m.workers, w)
		names = append(names, w.Name)
	}
	return names
}

func (m *Manager) drop(w *Worker, err error) {
	m.logger.Warn("Failed to attach converter", "host", m.host.ID, "converter", w.Name, "error", err)
	w.Detach()
	m.host.RemoveModule(w)
}

// Clear detaches every worker this manager created.
func (m *Manager) Clear() {
	for _, w := range m.workers {
		w.Detach()
		m.host.RemoveModule(w)
	}
	m.workers = nil
}

// Workers returns the live workers in creation order.
func (m *Manager) Workers() []*Worker {
	out := make([]*Worker, len(m.workers))
	copy(out, m.workers)
	return out
}

// Worker returns a live worker by declared name.
func (m *Manager) Worker(name string) (*Worker, bool) {
	for _, w := range m.workers {
		if w.Name == name {
			return w, true
		}
	}
	return nil, false
}

// SetEnabled toggles a worker by name. Returns false when no such worker.
func (m *Manager) SetEnabled(name string, enabled bool) bool {
	w, ok := m.Worker(name)
	if !ok {
		return false
	}
	w.SetEnabled(enabled)
	return true
}

// SaveState returns the persisted state of every worker. A state loaded but
// not yet applied is included so an early save keeps it.
func (m *Manager) SaveState() []core.WorkerState {
	out := make([]core.WorkerState, 0, len(m.workers)+len(m.pending))
	seen := make(map[string]bool, len(m.workers))
	for _, w := range m.workers {
		if s, ok := m.pending[w.Name]; ok {
			out = append(out, s)
		} else {
			out = append(out, w.State())
		}
		seen[w.Name] = true
	}
	var rest []string
	for name := range m.pending {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		out = append(out, m.pending[name])
	}
	return out
}

// LoadState records persisted worker states for the next rebuild.
func (m *Manager) LoadState(states []core.WorkerState) {
	if len(states) == 0 {
		m.pending = nil
		return
	}
	m.pending = make(map[string]core.WorkerState, len(states))
	for _, s := range states {
		m.pending[s.Name] = s
	}
}

// Process runs one conversion step on every enabled worker.
func (m *Manager) Process(dt float64) {
	for _, w := range m.workers {
		w.Process(dt)
	}
}

// RequiredInputs returns, per input resource, the largest ratio any single
// worker of the template demands. Nothing is attached.
func RequiredInputs(t core.Template) map[string]float64 {
	out := make(map[string]float64)
	for _, w := range t.Workers {
		for _, in := range w.Inputs {
			if in.Ratio > out[in.Resource] {
				out[in.Resource] = in.Ratio
			}
		}
	}
	return out
}
