package capability

import (
	"errors"
	"fmt"

	"github.com/OCAP2/partswitch/internal/host"
	"github.com/OCAP2/partswitch/pkg/core"
)

// Built-in type names.
const (
	TypeModuleInventory = "ModuleInventory"
	TypeInventoryReport = "InventoryReport"
	TypeGenerator       = "Generator"
	TypeLight           = "Light"
)

// RegisterBuiltins adds the built-in types to a factory.
func RegisterBuiltins(f *Factory) {
	for name, ctor := range map[string]Constructor{
		TypeModuleInventory: func() Capability { return &ModuleInventory{} },
		TypeInventoryReport: func() Capability { return &InventoryReport{inventory: -1} },
		TypeGenerator:       func() Capability { return &Generator{} },
		TypeLight:           func() Capability { return &Light{} },
	} {
		// duplicates are ignored
		_ = f.Register(name, ctor)
	}
}

// base carries the host reference and attach state shared by built-ins.
type base struct {
	host    *host.Host
	started core.SimContext
}

func (b *base) Attach(h *host.Host) error {
	if h == nil {
		return errors.New("attach: nil host")
	}
	b.host = h
	return nil
}

func (b *base) Start(ctx core.SimContext) error {
	b.started = ctx
	return nil
}

func (b *base) Detach() {
	b.host = nil
}

// Started returns the context passed to Start, empty before start.
func (b *base) Started() core.SimContext {
	return b.started
}

// ModuleInventory is a cargo container other modules can reference.
type ModuleInventory struct {
	base
	Capacity float64 `mapstructure:"capacity"`
	Slots    int     `mapstructure:"slots"`
}

func (m *ModuleInventory) TypeName() string { return TypeModuleInventory }

func (m *ModuleInventory) Configure(config map[string]any) error {
	if err := Decode(config, m); err != nil {
		return err
	}
	if m.Capacity < 0 || m.Slots < 0 {
		return fmt.Errorf("inventory: negative capacity %.1f or slots %d", m.Capacity, m.Slots)
	}
	return nil
}

// InventoryCapacity implements InventoryProvider.
func (m *ModuleInventory) InventoryCapacity() float64 { return m.Capacity }

// InventoryReport summarizes the contents of the inventory it links to.
type InventoryReport struct {
	base
	Label     string `mapstructure:"label"`
	inventory int
}

func (r *InventoryReport) TypeName() string { return TypeInventoryReport }

func (r *InventoryReport) Configure(config map[string]any) error {
	return Decode(config, r)
}

// LinkInventory implements InventoryLinker.
func (r *InventoryReport) LinkInventory(index int) { r.inventory = index }

// InventoryIndex returns the module index of the linked inventory, -1 when
// unlinked.
func (r *InventoryReport) InventoryIndex() int { return r.inventory }

// Summary describes the linked inventory.
func (r *InventoryReport) Summary() string {
	if r.host == nil || r.inventory < 0 {
		return "No inventory"
	}
	mods := r.host.Modules()
	if r.inventory >= len(mods) {
		return "No inventory"
	}
	inv, ok := mods[r.inventory].(InventoryProvider)
	if !ok {
		return "No inventory"
	}
	return fmt.Sprintf("%s: %.0f capacity", r.labelOr("Inventory"), inv.InventoryCapacity())
}

func (r *InventoryReport) labelOr(fallback string) string {
	if r.Label != "" {
		return r.Label
	}
	return fallback
}

// Generator produces a resource while running. The running flag persists.
type Generator struct {
	base
	Resource string  `mapstructure:"resource"`
	Rate     float64 `mapstructure:"rate"`
	running  bool
}

func (g *Generator) TypeName() string { return TypeGenerator }

func (g *Generator) Configure(config map[string]any) error {
	if err := Decode(config, g); err != nil {
		return err
	}
	if g.Resource == "" {
		return errors.New("generator: no output resource")
	}
	return nil
}

// Running reports whether the generator is producing.
func (g *Generator) Running() bool { return g.running }

// SetRunning starts or stops production.
func (g *Generator) SetRunning(running bool) { g.running = running }

// Produce returns the output for a time step. Nothing is produced in the
// editor or while stopped.
func (g *Generator) Produce(dt float64) float64 {
	if !g.running || g.started == core.SimEditor || dt <= 0 {
		return 0
	}
	return g.Rate * dt
}

func (g *Generator) SaveFields() map[string]any {
	return map[string]any{"running": g.running}
}

func (g *Generator) RestoreFields(fields map[string]any) error {
	var saved struct {
		Running bool `mapstructure:"running"`
	}
	if err := Decode(fields, &saved); err != nil {
		return err
	}
	g.running = saved.Running
	return nil
}

// Light is a lamp with a persisted on/off state. Attaching it outside live
// simulation breaks the host's action menu.
type Light struct {
	base
	Color     string  `mapstructure:"color"`
	Intensity float64 `mapstructure:"intensity"`
	on        bool
}

func (l *Light) TypeName() string { return TypeLight }

func (l *Light) Configure(config map[string]any) error {
	return Decode(config, l)
}

// On reports whether the light is lit.
func (l *Light) On() bool { return l.on }

// Toggle flips the light.
func (l *Light) Toggle() { l.on = !l.on }

func (l *Light) SaveFields() map[string]any {
	return map[string]any{"on": l.on}
}

func (l *Light) RestoreFields(fields map[string]any) error {
	var saved struct {
		On bool `mapstructure:"on"`
	}
	if err := Decode(fields, &saved); err != nil {
		return err
	}
	l.on = saved.On
	return nil
}
