// internal/storage/storage.go
package storage

import (
	"errors"

	"github.com/OCAP2/partswitch/pkg/core"
)

// ErrNotFound is returned when no state was saved for a host.
var ErrNotFound = errors.New("host state not found")

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Host state (saving replaces the previous state of the same host)
	SaveHostState(s *core.HostState) error
	LoadHostState(hostID string) (*core.HostState, error)
	ListHostStates() ([]core.HostState, error)

	// Event recording
	RecordSwitchEvent(e *core.SwitchEvent) error
}

// EventHistory is an optional interface for backends that can read back
// recorded switch events.
type EventHistory interface {
	SwitchEvents(hostID string) ([]core.SwitchEvent, error)
}

// Exporter is an optional interface for backends that write their content
// to a file.
type Exporter interface {
	Export() error
	ExportedFilePath() string
}
