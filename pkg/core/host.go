// pkg/core/host.go
package core

import (
	"strings"
	"time"
)

// SimContext is the situation a host is in when capabilities start.
type SimContext string

const (
	SimNone      SimContext = "none"
	SimEditor    SimContext = "editor"
	SimPrelaunch SimContext = "prelaunch"
	SimLanded    SimContext = "landed"
	SimSplashed  SimContext = "splashed"
	SimFlying    SimContext = "flying"
	SimOrbiting  SimContext = "orbiting"
	SimDocked    SimContext = "docked"
)

// Occupant is a crew member aboard a host or operating it from outside.
type Occupant struct {
	Name   string
	Skills []string
	Level  int // experience level
}

// HasSkill reports whether the occupant holds the named skill, ignoring case.
func (o Occupant) HasSkill(skill string) bool {
	for _, s := range o.Skills {
		if strings.EqualFold(s, skill) {
			return true
		}
	}
	return false
}

// ResourceAmount is one stored resource as persisted.
type ResourceAmount struct {
	Name      string  `json:"name" yaml:"name"`
	Amount    float64 `json:"amount" yaml:"amount"`
	MaxAmount float64 `json:"maxAmount" yaml:"maxAmount"`
}

// WorkerState is the persisted state of one converter worker.
type WorkerState struct {
	Name    string             `json:"name" yaml:"name"`
	Enabled bool               `json:"enabled" yaml:"enabled"`
	Runtime map[string]float64 `json:"runtime,omitempty" yaml:"runtime,omitempty"`
}

// CapabilitySettings holds the persisted field values of one capability type.
type CapabilitySettings struct {
	Type   string         `json:"type" yaml:"type"`
	Fields map[string]any `json:"fields" yaml:"fields"`
}

// HostState is the save/restore payload of a reconfigurable host.
type HostState struct {
	HostID         string               `json:"hostId" yaml:"hostId"`
	TemplateIndex  int                  `json:"templateIndex" yaml:"templateIndex"`
	TemplateName   string               `json:"templateName" yaml:"templateName"`
	Deployed       bool                 `json:"deployed" yaml:"deployed"`
	EverDeployed   bool                 `json:"everDeployed" yaml:"everDeployed"`
	CapacityFactor float64              `json:"capacityFactor" yaml:"capacityFactor"`
	Resources      []ResourceAmount     `json:"resources" yaml:"resources"`
	Workers        []WorkerState        `json:"workers" yaml:"workers"`
	Settings       []CapabilitySettings `json:"settings,omitempty" yaml:"settings,omitempty"`
	SavedAt        time.Time            `json:"savedAt" yaml:"savedAt"`
}

// SwitchEvent records one attempted reconfiguration.
type SwitchEvent struct {
	ID       string    `json:"id" yaml:"id"`
	HostID   string    `json:"hostId" yaml:"hostId"`
	Time     time.Time `json:"time" yaml:"time"`
	From     string    `json:"from" yaml:"from"`
	To       string    `json:"to" yaml:"to"`
	Resource string    `json:"resource,omitempty" yaml:"resource,omitempty"`
	Cost     float64   `json:"cost" yaml:"cost"` // negative values were paid back as refund
	Outcome  string    `json:"outcome" yaml:"outcome"`
	Replayed bool      `json:"replayed,omitempty" yaml:"replayed,omitempty"` // applied as a symmetry counterpart
}
