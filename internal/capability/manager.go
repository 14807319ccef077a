package capability

import (
	"log/slog"

	"github.com/OCAP2/partswitch/internal/host"
	"github.com/OCAP2/partswitch/internal/registry"
	"github.com/OCAP2/partswitch/pkg/core"
)

// SkipReason explains why a descriptor produced no instance.
type SkipReason string

const (
	SkipGated        SkipReason = "gated"
	SkipIgnored      SkipReason = "ignored"
	SkipEditorUnsafe SkipReason = "editor unsafe"
	SkipFailed       SkipReason = "failed"
)

// Skip is one descriptor the manager did not attach.
type Skip struct {
	Type   string
	Reason SkipReason
	Err    error
}

// Report summarizes one rebuild.
type Report struct {
	Attached []string
	Skipped  []Skip
}

// Failed returns the number of descriptors that errored during attachment.
func (r Report) Failed() int {
	n := 0
	for _, s := range r.Skipped {
		if s.Reason == SkipFailed {
			n++
		}
	}
	return n
}

// Options holds the type lists the manager refuses to attach.
type Options struct {
	Ignore       []string // never attached
	EditorUnsafe []string // refused in design-time contexts
}

// Manager owns the capabilities it attached to one host.
type Manager struct {
	host    *host.Host
	factory *Factory
	logger  *slog.Logger

	ignore       map[string]bool
	editorUnsafe map[string]bool

	attached []Capability
	pending  Snapshot
}

// NewManager creates a manager for a host.
func NewManager(h *host.Host, factory *Factory, logger *slog.Logger, opts Options) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if factory == nil {
		factory = NewDefaultFactory()
	}
	return &Manager{
		host:         h,
		factory:      factory,
		logger:       logger,
		ignore:       toSet(opts.Ignore),
		editorUnsafe: toSet(opts.EditorUnsafe),
	}
}

// Factory returns the constructor registry the manager builds from.
func (m *Manager) Factory() *Factory {
	return m.factory
}

// SetPending records the snapshot captured at load. It is consumed by the
// next rebuild and wins over values carried over from live instances.
func (m *Manager) SetPending(s Snapshot) {
	m.pending = s
}

// HasPending reports whether a load snapshot is waiting to be applied.
func (m *Manager) HasPending() bool {
	return m.pending != nil
}

// Attached returns the instances attached by the last rebuild.
func (m *Manager) Attached() []Capability {
	out := make([]Capability, len(m.attached))
	copy(out, m.attached)
	return out
}

// Capture returns the persisted field values of the attached instances.
// While a load snapshot is pending its values win, matching what the next
// rebuild would restore.
func (m *Manager) Capture() Snapshot {
	live := make(Snapshot)
	for _, c := range m.attached {
		p, ok := c.(Persistent)
		if !ok {
			continue
		}
		if _, seen := live[c.TypeName()]; seen {
			continue
		}
		live.set(c.TypeName(), p.SaveFields())
	}
	if m.pending != nil {
		return live.Overlay(m.pending)
	}
	return live
}

// Clear detaches and removes every instance this manager attached.
func (m *Manager) Clear() {
	for _, c := range m.attached {
		c.Detach()
		m.host.RemoveModule(c)
	}
	m.attached = nil
}

// Rebuild replaces the attached instances with the ones the descriptors
// describe. A failing descriptor is skipped and never aborts the rest.
func (m *Manager) Rebuild(descriptors []core.CapabilityDescriptor) Report {
	restore := m.Capture()
	m.pending = nil
	m.Clear()

	var report Report
	inEditor := m.host.InEditor()
	var created []Capability

	for _, d := range descriptors {
		if a := registry.GatesOpen(m.host, d.TechRequired, d.RequiredPackages); a != registry.Valid {
			m.logger.Debug("Capability gated", "host", m.host.ID, "type", d.Type, "reason", a.String())
			report.Skipped = append(report.Skipped, Skip{Type: d.Type, Reason: SkipGated})
			continue
		}
		if m.ignore[d.Type] {
			m.logger.Debug("Capability on ignore list", "host", m.host.ID, "type", d.Type)
			report.Skipped = append(report.Skipped, Skip{Type: d.Type, Reason: SkipIgnored})
			continue
		}
		if inEditor && m.editorUnsafe[d.Type] {
			m.logger.Debug("Capability refused in editor", "host", m.host.ID, "type", d.Type)
			report.Skipped = append(report.Skipped, Skip{Type: d.Type, Reason: SkipEditorUnsafe})
			continue
		}

		c, err := m.attach(d, restore)
		if err != nil {
			m.logger.Warn("Failed to attach capability", "host", m.host.ID, "type", d.Type, "error", err)
			report.Skipped = append(report.Skipped, Skip{Type: d.Type, Reason: SkipFailed, Err: err})
			continue
		}
		created = append(created, c)
	}

	m.link()

	ctx := m.host.SimContext()
	for _, c := range created {
		if err := c.Start(ctx); err != nil {
			m.logger.Warn("Failed to start capability", "host", m.host.ID, "type", c.TypeName(), "error", err)
			c.Detach()
			m.host.RemoveModule(c)
			report.Skipped = append(report.Skipped, Skip{Type: c.TypeName(), Reason: SkipFailed, Err: err})
			continue
		}
		m.attached = append(m.attached, c)
		report.Attached = append(report.Attached, c.TypeName())
	}

	// a failed start may have shifted indices
	if len(m.attached) != len(created) {
		m.link()
	}

	return report
}

func (m *Manager) attach(d core.CapabilityDescriptor, restore Snapshot) (Capability, error) {
	c, err := m.factory.New(d.Type)
	if err != nil {
		return nil, err
	}

	m.host.AddModule(c)
	fail := func(err error) (Capability, error) {
		c.Detach()
		m.host.RemoveModule(c)
		return nil, err
	}

	if err := c.Attach(m.host); err != nil {
		return fail(err)
	}
	if p, ok := c.(Persistent); ok {
		if fields, ok := restore.Fields(d.Type); ok {
			if err := p.RestoreFields(fields); err != nil {
				return fail(err)
			}
		}
	}
	if err := c.Configure(d.Config); err != nil {
		return fail(err)
	}
	return c, nil
}

// link points every linker at the nearest preceding provider in the host's
// full module list, -1 when there is none.
func (m *Manager) link() {
	provider := -1
	for i, mod := range m.host.Modules() {
		if _, ok := mod.(InventoryProvider); ok {
			provider = i
			continue
		}
		if l, ok := mod.(InventoryLinker); ok {
			l.LinkInventory(provider)
		}
	}
}

func toSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}
