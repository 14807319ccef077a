package capability

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrUnknownType   = errors.New("unknown capability type")
	ErrDuplicateType = errors.New("capability type already registered")
)

// Constructor creates a fresh, unattached capability instance.
type Constructor func() Capability

// Factory maps declared type names to constructors.
type Factory struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{ctors: make(map[string]Constructor)}
}

// NewDefaultFactory creates a factory holding the built-in capability types.
func NewDefaultFactory() *Factory {
	f := NewFactory()
	RegisterBuiltins(f)
	return f
}

// Register adds a constructor for a type name.
func (f *Factory) Register(typeName string, ctor Constructor) error {
	if typeName == "" || ctor == nil {
		return fmt.Errorf("register %q: invalid constructor", typeName)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.ctors[typeName]; exists {
		return fmt.Errorf("register %q: %w", typeName, ErrDuplicateType)
	}
	f.ctors[typeName] = ctor
	return nil
}

// New constructs an instance of the named type.
func (f *Factory) New(typeName string) (Capability, error) {
	f.mu.RLock()
	ctor, ok := f.ctors[typeName]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%q: %w", typeName, ErrUnknownType)
	}
	return ctor(), nil
}

// Has reports whether a type name is registered.
func (f *Factory) Has(typeName string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.ctors[typeName]
	return ok
}

// Types returns the registered type names, sorted.
func (f *Factory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, 0, len(f.ctors))
	for name := range f.ctors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
