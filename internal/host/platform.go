package host

import "github.com/OCAP2/partswitch/pkg/core"

// Platform is the set of host engine callbacks the reconfiguration engine
// consumes. Implementations must be cheap to call; every method is invoked
// synchronously from the simulation thread.
type Platform interface {
	// SimContext reports the situation of the host ("orbiting", "landed", ...).
	SimContext() core.SimContext
	// InEditor reports whether the host is in a design-time context.
	InEditor() bool

	// Occupants returns the crew aboard the host.
	Occupants() []core.Occupant
	// ExternalOperator returns an operator working on the host from outside.
	ExternalOperator() (core.Occupant, bool)
	// HasAttachedObjects reports whether foreign objects are rigidly attached.
	HasAttachedObjects() bool
	// Counterparts returns the IDs of the other hosts in the symmetry group.
	Counterparts() []string

	// Available returns the amount of a resource reachable by the host and
	// the free storage room for it.
	Available(resource string) (amount, room float64)
	// Withdraw removes up to amount and returns what was actually removed.
	Withdraw(resource string, amount float64) float64
	// Deposit stores up to amount and returns what was actually stored.
	Deposit(resource string, amount float64) float64

	// ProgressionActive reports whether technology unlocks gate templates.
	ProgressionActive() bool
	// TechUnlocked reports whether a technology node is unlocked.
	TechUnlocked(tech string) bool
	// PackageInstalled reports whether an optional package is present.
	PackageInstalled(name string) bool
}
