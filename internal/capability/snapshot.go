package capability

import (
	"maps"
	"sort"

	"github.com/OCAP2/partswitch/pkg/core"
)

// Snapshot holds persisted field values keyed by capability type name and
// field name.
type Snapshot map[string]map[string]any

// FromSettings builds a snapshot from persisted settings. A later entry for
// the same type merges over an earlier one.
func FromSettings(settings []core.CapabilitySettings) Snapshot {
	if len(settings) == 0 {
		return nil
	}
	s := make(Snapshot, len(settings))
	for _, cs := range settings {
		if cs.Type == "" {
			continue
		}
		s.set(cs.Type, cs.Fields)
	}
	return s
}

// Settings converts the snapshot to its persisted form, sorted by type.
func (s Snapshot) Settings() []core.CapabilitySettings {
	if len(s) == 0 {
		return nil
	}
	out := make([]core.CapabilitySettings, 0, len(s))
	for typeName, fields := range s {
		out = append(out, core.CapabilitySettings{Type: typeName, Fields: maps.Clone(fields)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Fields returns the stored values for a type.
func (s Snapshot) Fields(typeName string) (map[string]any, bool) {
	fields, ok := s[typeName]
	return fields, ok
}

// Overlay returns a new snapshot with over's fields winning over s.
func (s Snapshot) Overlay(over Snapshot) Snapshot {
	out := make(Snapshot, len(s)+len(over))
	for typeName, fields := range s {
		out.set(typeName, fields)
	}
	for typeName, fields := range over {
		out.set(typeName, fields)
	}
	return out
}

func (s Snapshot) set(typeName string, fields map[string]any) {
	dst, ok := s[typeName]
	if !ok {
		dst = make(map[string]any, len(fields))
		s[typeName] = dst
	}
	maps.Copy(dst, fields)
}
