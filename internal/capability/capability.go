// Package capability attaches behaviour modules to a host at runtime.
//
// Capabilities are created from template descriptors, exclusively owned by
// the host and destroyed on every reconfiguration. Their persisted field
// values survive a rebuild through name-keyed snapshots.
package capability

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/OCAP2/partswitch/internal/host"
	"github.com/OCAP2/partswitch/pkg/core"
)

// Capability is the lifecycle contract every attachable module implements.
// The manager calls Attach, Configure and Start in that order on a freshly
// constructed instance and Detach exactly once before discarding it.
type Capability interface {
	host.Module

	// Attach is the late initialization hook run once the instance is in the
	// host's module list.
	Attach(h *host.Host) error
	// Configure feeds the descriptor's configuration.
	Configure(config map[string]any) error
	// Start runs the startup hook for the current simulation context.
	Start(ctx core.SimContext) error
	// Detach tears the instance down.
	Detach()
}

// Persistent is implemented by capabilities with field values that carry
// over a rebuild and a save/load cycle.
type Persistent interface {
	SaveFields() map[string]any
	RestoreFields(fields map[string]any) error
}

// InventoryProvider is a capability other capabilities can hold a
// back-reference to.
type InventoryProvider interface {
	Capability
	InventoryCapacity() float64
}

// InventoryLinker is a capability referencing the nearest preceding
// InventoryProvider in the host's module list by index.
type InventoryLinker interface {
	Capability
	LinkInventory(index int)
}

// Decode copies a configuration map into a struct using mapstructure tags.
// Weak typing is enabled so "5" decodes into numeric fields.
func Decode(config map[string]any, out any) error {
	if len(config) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}
	if err := dec.Decode(config); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	return nil
}
