// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/OCAP2/partswitch/internal/model"
	"github.com/OCAP2/partswitch/pkg/core"
)

// toJSON marshals a list, storing empty lists as "[]".
func toJSON[T any](items []T) (datatypes.JSON, error) {
	if len(items) == 0 {
		return datatypes.JSON("[]"), nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

func fromJSON[T any](data datatypes.JSON) ([]T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items, nil
}

// CoreToHostState converts a core.HostState to a GORM model.HostState.
func CoreToHostState(s core.HostState) (model.HostState, error) {
	resources, err := toJSON(s.Resources)
	if err != nil {
		return model.HostState{}, fmt.Errorf("encoding resources: %w", err)
	}
	workers, err := toJSON(s.Workers)
	if err != nil {
		return model.HostState{}, fmt.Errorf("encoding workers: %w", err)
	}
	settings, err := toJSON(s.Settings)
	if err != nil {
		return model.HostState{}, fmt.Errorf("encoding capability settings: %w", err)
	}

	return model.HostState{
		HostID:         s.HostID,
		TemplateIndex:  s.TemplateIndex,
		TemplateName:   s.TemplateName,
		Deployed:       s.Deployed,
		EverDeployed:   s.EverDeployed,
		CapacityFactor: s.CapacityFactor,
		Resources:      resources,
		Workers:        workers,
		Settings:       settings,
		SavedAt:        s.SavedAt,
	}, nil
}

// HostStateToCore converts a GORM HostState to a core.HostState.
func HostStateToCore(s model.HostState) (core.HostState, error) {
	resources, err := fromJSON[core.ResourceAmount](s.Resources)
	if err != nil {
		return core.HostState{}, fmt.Errorf("decoding resources: %w", err)
	}
	workers, err := fromJSON[core.WorkerState](s.Workers)
	if err != nil {
		return core.HostState{}, fmt.Errorf("decoding workers: %w", err)
	}
	settings, err := fromJSON[core.CapabilitySettings](s.Settings)
	if err != nil {
		return core.HostState{}, fmt.Errorf("decoding capability settings: %w", err)
	}

	return core.HostState{
		HostID:         s.HostID,
		TemplateIndex:  s.TemplateIndex,
		TemplateName:   s.TemplateName,
		Deployed:       s.Deployed,
		EverDeployed:   s.EverDeployed,
		CapacityFactor: s.CapacityFactor,
		Resources:      resources,
		Workers:        workers,
		Settings:       settings,
		SavedAt:        s.SavedAt,
	}, nil
}

// CoreToSwitchEvent converts a core.SwitchEvent to a GORM model.SwitchEvent.
func CoreToSwitchEvent(e core.SwitchEvent) model.SwitchEvent {
	return model.SwitchEvent{
		ID:       e.ID,
		HostID:   e.HostID,
		Time:     e.Time,
		From:     e.From,
		To:       e.To,
		Resource: e.Resource,
		Cost:     e.Cost,
		Outcome:  e.Outcome,
		Replayed: e.Replayed,
	}
}

// SwitchEventToCore converts a GORM SwitchEvent to a core.SwitchEvent.
func SwitchEventToCore(e model.SwitchEvent) core.SwitchEvent {
	return core.SwitchEvent{
		ID:       e.ID,
		HostID:   e.HostID,
		Time:     e.Time,
		From:     e.From,
		To:       e.To,
		Resource: e.Resource,
		Cost:     e.Cost,
		Outcome:  e.Outcome,
		Replayed: e.Replayed,
	}
}
