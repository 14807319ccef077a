package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&HostState{},
	&SwitchEvent{},
}

// HostState is the latest saved state of one host. Resources, workers and
// capability settings are stored as JSON documents.
type HostState struct {
	gorm.Model
	HostID         string         `json:"hostId" gorm:"size:127;uniqueIndex:idx_host_state_host_id"`
	TemplateIndex  int            `json:"templateIndex"`
	TemplateName   string         `json:"templateName" gorm:"size:127"`
	Deployed       bool           `json:"deployed"`
	EverDeployed   bool           `json:"everDeployed"`
	CapacityFactor float64        `json:"capacityFactor"`
	Resources      datatypes.JSON `json:"resources"`
	Workers        datatypes.JSON `json:"workers"`
	Settings       datatypes.JSON `json:"settings"`
	SavedAt        time.Time      `json:"savedAt" gorm:"index:idx_host_state_saved_at"`
}

func (*HostState) TableName() string {
	return "host_states"
}

// SwitchEvent is one recorded reconfiguration attempt.
type SwitchEvent struct {
	ID       string    `json:"id" gorm:"primaryKey;size:36"`
	HostID   string    `json:"hostId" gorm:"size:127;index:idx_switch_event_host_id"`
	Time     time.Time `json:"time" gorm:"index:idx_switch_event_time"`
	From     string    `json:"from" gorm:"column:from_template;size:127"`
	To       string    `json:"to" gorm:"column:to_template;size:127"`
	Resource string    `json:"resource" gorm:"size:64"`
	Cost     float64   `json:"cost"`
	Outcome  string    `json:"outcome" gorm:"size:32;index:idx_switch_event_outcome"`
	Replayed bool      `json:"replayed"`
}

func (*SwitchEvent) TableName() string {
	return "switch_events"
}
