package switcher

import (
	"sort"
	"sync"
)

// Fleet indexes controllers by host ID so a switch can be replayed on the
// host's symmetry counterparts.
type Fleet struct {
	mu      sync.RWMutex
	members map[string]*Controller
}

// NewFleet creates an empty fleet.
func NewFleet() *Fleet {
	return &Fleet{members: make(map[string]*Controller)}
}

// Add registers a controller. Its successful switches are replayed on the
// counterparts its platform reports.
func (f *Fleet) Add(c *Controller) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[c.host.ID] = c
	c.fleet = f
}

// Remove unregisters a host.
func (f *Fleet) Remove(hostID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.members[hostID]; ok {
		c.fleet = nil
		delete(f.members, hostID)
	}
}

// Get returns the controller of a host.
func (f *Fleet) Get(hostID string) (*Controller, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.members[hostID]
	return c, ok
}

// IDs returns the registered host IDs, sorted.
func (f *Fleet) IDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.members))
	for id := range f.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// replay runs the same target on every counterpart of origin, each with its
// own transition. Replayed switches are never replayed further.
func (f *Fleet) replay(origin *Controller, target int) (replayed, failed []string) {
	p := origin.host.Platform()
	if p == nil {
		return nil, nil
	}
	for _, id := range p.Counterparts() {
		if id == origin.host.ID {
			continue
		}
		c, ok := f.Get(id)
		if !ok {
			origin.logger.Debug("Counterpart not in fleet", "counterpart", id)
			continue
		}
		switch res := c.switchTemplate(target, false, true); res.Status {
		case Switched, NoChange:
			replayed = append(replayed, id)
		default:
			origin.logger.Warn("Counterpart did not follow switch", "counterpart", id, "status", res.Status.String(), "reason", res.Message)
			failed = append(failed, id)
		}
	}
	return replayed, failed
}
