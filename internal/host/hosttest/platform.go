// Package hosttest provides an in-memory host platform for tests and the
// interactive simulator.
package hosttest

import (
	"math"
	"sync"

	"github.com/OCAP2/partswitch/internal/host"
	"github.com/OCAP2/partswitch/pkg/core"
)

var _ host.Platform = (*Platform)(nil)

// Pool is one shared resource reachable by a host.
type Pool struct {
	Amount   float64
	Capacity float64 // 0 means unlimited
}

// Platform is a configurable host.Platform.
type Platform struct {
	mu sync.Mutex

	Context     core.SimContext
	Editor      bool
	Crew        []core.Occupant
	External    *core.Occupant
	Attached    bool
	Siblings    []string
	Progression bool
	Unlocked    map[string]bool
	Installed   map[string]bool
	Pools       map[string]*Pool

	Withdrawals int
	Deposits    int
}

// New creates a platform orbiting, outside progression mode, with no crew.
func New() *Platform {
	return &Platform{
		Context:   core.SimOrbiting,
		Unlocked:  make(map[string]bool),
		Installed: make(map[string]bool),
		Pools:     make(map[string]*Pool),
	}
}

// WithPool sets a reachable resource pool.
func (p *Platform) WithPool(resource string, amount, capacity float64) *Platform {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Pools[resource] = &Pool{Amount: amount, Capacity: capacity}
	return p
}

// Amount returns the pooled amount of a resource.
func (p *Platform) Amount(resource string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pool, ok := p.Pools[resource]; ok {
		return pool.Amount
	}
	return 0
}

func (p *Platform) SimContext() core.SimContext { return p.Context }
func (p *Platform) InEditor() bool               { return p.Editor }
func (p *Platform) Occupants() []core.Occupant   { return p.Crew }
func (p *Platform) HasAttachedObjects() bool     { return p.Attached }
func (p *Platform) Counterparts() []string       { return p.Siblings }
func (p *Platform) ProgressionActive() bool      { return p.Progression }
func (p *Platform) TechUnlocked(t string) bool   { return p.Unlocked[t] }
func (p *Platform) PackageInstalled(n string) bool {
	return p.Installed[n]
}

func (p *Platform) ExternalOperator() (core.Occupant, bool) {
	if p.External == nil {
		return core.Occupant{}, false
	}
	return *p.External, true
}

func (p *Platform) Available(resource string) (float64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pool, ok := p.Pools[resource]
	if !ok {
		return 0, 0
	}
	if pool.Capacity <= 0 {
		return pool.Amount, math.MaxFloat64
	}
	return pool.Amount, math.Max(pool.Capacity-pool.Amount, 0)
}

func (p *Platform) Withdraw(resource string, amount float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Withdrawals++
	pool, ok := p.Pools[resource]
	if !ok || amount <= 0 {
		return 0
	}
	got := math.Min(amount, pool.Amount)
	pool.Amount -= got
	return got
}

func (p *Platform) Deposit(resource string, amount float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Deposits++
	if amount <= 0 {
		return 0
	}
	pool, ok := p.Pools[resource]
	if !ok {
		pool = &Pool{}
		p.Pools[resource] = pool
	}
	stored := amount
	if pool.Capacity > 0 {
		stored = math.Min(amount, math.Max(pool.Capacity-pool.Amount, 0))
	}
	pool.Amount += stored
	return stored
}
