package host

import (
	"math"

	"github.com/OCAP2/partswitch/pkg/core"
)

// Resource is one resource stored on a host.
type Resource struct {
	Name      string
	Amount    float64
	MaxAmount float64
}

// IsEmpty reports whether nothing is stored.
func (r Resource) IsEmpty() bool {
	return r.Amount <= 1e-9
}

// Inventory is the ordered resource list of a host.
type Inventory struct {
	resources []Resource
}

// NewInventory creates an empty inventory.
func NewInventory() *Inventory {
	return &Inventory{}
}

// Get returns the named resource.
func (inv *Inventory) Get(name string) (Resource, bool) {
	if i := inv.index(name); i >= 0 {
		return inv.resources[i], true
	}
	return Resource{}, false
}

// Has reports whether the named resource exists.
func (inv *Inventory) Has(name string) bool {
	return inv.index(name) >= 0
}

// Set creates or replaces a resource. Amount is clamped into [0, max].
func (inv *Inventory) Set(name string, amount, max float64) {
	max = math.Max(max, 0)
	amount = math.Min(math.Max(amount, 0), max)
	r := Resource{Name: name, Amount: amount, MaxAmount: max}
	if i := inv.index(name); i >= 0 {
		inv.resources[i] = r
		return
	}
	inv.resources = append(inv.resources, r)
}

// Resize changes the capacity of a resource, clamping its amount.
// It returns false when the resource does not exist.
func (inv *Inventory) Resize(name string, max float64) bool {
	i := inv.index(name)
	if i < 0 {
		return false
	}
	r := inv.resources[i]
	inv.Set(name, r.Amount, max)
	return true
}

// Remove deletes a resource.
func (inv *Inventory) Remove(name string) {
	if i := inv.index(name); i >= 0 {
		inv.resources = append(inv.resources[:i], inv.resources[i+1:]...)
	}
}

// RemoveExcept deletes every resource not in keep.
func (inv *Inventory) RemoveExcept(keep []string) {
	kept := inv.resources[:0]
	for _, r := range inv.resources {
		for _, k := range keep {
			if r.Name == k {
				kept = append(kept, r)
				break
			}
		}
	}
	inv.resources = kept
}

// All returns a copy of the resource list.
func (inv *Inventory) All() []Resource {
	out := make([]Resource, len(inv.resources))
	copy(out, inv.resources)
	return out
}

// Names returns the resource names in order.
func (inv *Inventory) Names() []string {
	names := make([]string, len(inv.resources))
	for i, r := range inv.resources {
		names[i] = r.Name
	}
	return names
}

// Len returns the number of resources.
func (inv *Inventory) Len() int {
	return len(inv.resources)
}

// Amounts returns the persisted form of the inventory.
func (inv *Inventory) Amounts() []core.ResourceAmount {
	out := make([]core.ResourceAmount, len(inv.resources))
	for i, r := range inv.resources {
		out[i] = core.ResourceAmount{Name: r.Name, Amount: r.Amount, MaxAmount: r.MaxAmount}
	}
	return out
}

func (inv *Inventory) index(name string) int {
	for i, r := range inv.resources {
		if r.Name == name {
			return i
		}
	}
	return -1
}
