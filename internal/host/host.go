// Package host models the reconfigurable entity: its resource inventory,
// the modules attached to it and the engine callbacks it is driven by.
package host

import (
	"sync"

	"github.com/OCAP2/partswitch/pkg/core"
)

// Module is anything attached to a host's module list.
type Module interface {
	TypeName() string
}

// Host is a reconfigurable entity.
type Host struct {
	ID       string
	Name     string
	platform Platform

	mu        sync.RWMutex
	inventory *Inventory
	modules   []Module
}

// New creates a host driven by the given platform. Static modules (the ones
// the host was built with) are attached in order.
func New(id, name string, platform Platform, static ...Module) *Host {
	h := &Host{
		ID:        id,
		Name:      name,
		platform:  platform,
		inventory: NewInventory(),
	}
	h.modules = append(h.modules, static...)
	return h
}

// Platform returns the engine callbacks of the host.
func (h *Host) Platform() Platform {
	return h.platform
}

// Inventory returns the resource inventory.
func (h *Host) Inventory() *Inventory {
	return h.inventory
}

// AddModule appends a module and returns its index in the module list.
func (h *Host) AddModule(m Module) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modules = append(h.modules, m)
	return len(h.modules) - 1
}

// RemoveModule removes a module by identity. It returns false when the
// module is not attached.
func (h *Host) RemoveModule(m Module) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, have := range h.modules {
		if have == m {
			h.modules = append(h.modules[:i], h.modules[i+1:]...)
			return true
		}
	}
	return false
}

// Modules returns a copy of the module list.
func (h *Host) Modules() []Module {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Module, len(h.modules))
	copy(out, h.modules)
	return out
}

// ModuleIndex returns the position of a module, -1 when not attached.
func (h *Host) ModuleIndex(m Module) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i, have := range h.modules {
		if have == m {
			return i
		}
	}
	return -1
}

// HasModule reports whether a module of the given type is attached.
func (h *Host) HasModule(typeName string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.modules {
		if m.TypeName() == typeName {
			return true
		}
	}
	return false
}

// SimContext is a shortcut to the platform's simulation context.
func (h *Host) SimContext() core.SimContext {
	if h.platform == nil {
		return core.SimNone
	}
	if h.platform.InEditor() {
		return core.SimEditor
	}
	return h.platform.SimContext()
}

// InEditor reports whether the host is in a design-time context.
func (h *Host) InEditor() bool {
	return h.platform != nil && h.platform.InEditor()
}

// StaticModule is a plain module a host is built with.
type StaticModule struct {
	Type string
}

// TypeName implements Module.
func (m *StaticModule) TypeName() string {
	return m.Type
}

// ProgressionActive delegates to the platform.
func (h *Host) ProgressionActive() bool {
	return h.platform != nil && h.platform.ProgressionActive()
}

// TechUnlocked delegates to the platform.
func (h *Host) TechUnlocked(tech string) bool {
	return h.platform != nil && h.platform.TechUnlocked(tech)
}

// PackageInstalled delegates to the platform.
func (h *Host) PackageInstalled(name string) bool {
	return h.platform != nil && h.platform.PackageInstalled(name)
}
