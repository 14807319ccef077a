package switcher

import (
	"errors"

	"github.com/OCAP2/partswitch/pkg/core"
)

// EventSink receives switch events. Storage backends and the influx writer
// implement it.
type EventSink interface {
	RecordSwitchEvent(e *core.SwitchEvent) error
}

// MultiSink fans an event out to several sinks. Every sink is tried; the
// errors are joined.
type MultiSink []EventSink

func (m MultiSink) RecordSwitchEvent(e *core.SwitchEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.RecordSwitchEvent(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func eventFor(name, resource string, cost float64, outcome string) core.SwitchEvent {
	return core.SwitchEvent{
		From:     name,
		To:       name,
		Resource: resource,
		Cost:     cost,
		Outcome:  outcome,
	}
}
