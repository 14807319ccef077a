// Package converter manages the resource converter workers a template
// attaches to a host. Workers are capabilities whose enabled flag and small
// runtime counters persist by declared name.
package converter

import (
	"errors"
	"fmt"

	"github.com/OCAP2/partswitch/internal/capability"
	"github.com/OCAP2/partswitch/internal/host"
	"github.com/OCAP2/partswitch/pkg/core"
)

// TypeName is the capability type of every worker.
const TypeName = "Converter"

// Runtime counter keys.
const (
	RuntimeProcessed = "processed" // seconds spent converting
	RuntimeProduced  = "produced"  // total output units
)

var _ capability.Capability = (*Worker)(nil)

// Worker converts input resources into outputs at fixed per-second ratios.
type Worker struct {
	Name         string       `mapstructure:"name"`
	Inputs       []core.Ratio `mapstructure:"inputs"`
	Outputs      []core.Ratio `mapstructure:"outputs"`
	Efficiency   float64      `mapstructure:"efficiency"`
	StartEnabled bool         `mapstructure:"startEnabled"`

	host     *host.Host
	started  core.SimContext
	enabled  bool
	uiHidden bool
	status   string
	runtime  map[string]float64
}

// NewWorker creates a worker from a descriptor.
func NewWorker(d core.WorkerDescriptor) *Worker {
	return &Worker{
		Name:       d.Name,
		Inputs:     append([]core.Ratio(nil), d.Inputs...),
		Outputs:    append([]core.Ratio(nil), d.Outputs...),
		Efficiency: 1,
		runtime:    make(map[string]float64),
	}
}

// Register adds the converter type to a capability factory so templates can
// also declare converters as plain capabilities.
func Register(f *capability.Factory) error {
	return f.Register(TypeName, func() capability.Capability {
		return &Worker{Efficiency: 1, runtime: make(map[string]float64)}
	})
}

func (w *Worker) TypeName() string { return TypeName }

func (w *Worker) Attach(h *host.Host) error {
	if h == nil {
		return errors.New("attach: nil host")
	}
	w.host = h
	return nil
}

// Configure decodes the descriptor config. A worker that already has its
// declared name keeps it; config may only name unnamed workers.
func (w *Worker) Configure(config map[string]any) error {
	name := w.Name
	if err := capability.Decode(config, w); err != nil {
		return err
	}
	if name != "" {
		w.Name = name
	}
	if w.Name == "" {
		return errors.New("converter: no name")
	}
	if w.Efficiency <= 0 {
		return fmt.Errorf("converter %s: efficiency %.2f must be positive", w.Name, w.Efficiency)
	}
	return nil
}

func (w *Worker) Start(ctx core.SimContext) error {
	w.started = ctx
	w.status = "Idle"
	return nil
}

func (w *Worker) Detach() {
	w.host = nil
	w.enabled = false
}

// Enabled reports whether the worker is converting.
func (w *Worker) Enabled() bool { return w.enabled }

// SetEnabled turns the worker on or off.
func (w *Worker) SetEnabled(enabled bool) {
	w.enabled = enabled
	if !enabled {
		w.status = "Idle"
	}
}

// HideUI suppresses the worker's own controls. Hidden workers are driven
// through the host's aggregated view.
func (w *Worker) HideUI() { w.uiHidden = true }

// UIHidden reports whether the worker's own controls are suppressed.
func (w *Worker) UIHidden() bool { return w.uiHidden }

// Status returns the last conversion status.
func (w *Worker) Status() string { return w.status }

// Runtime returns a runtime counter.
func (w *Worker) Runtime(key string) float64 { return w.runtime[key] }

// State returns the persisted form of the worker.
func (w *Worker) State() core.WorkerState {
	rt := make(map[string]float64, len(w.runtime))
	for k, v := range w.runtime {
		rt[k] = v
	}
	return core.WorkerState{Name: w.Name, Enabled: w.enabled, Runtime: rt}
}

// Restore applies a persisted worker state.
func (w *Worker) Restore(s core.WorkerState) {
	w.enabled = s.Enabled
	for k, v := range s.Runtime {
		w.runtime[k] = v
	}
}

// Process runs one conversion step of dt seconds. A step either consumes
// every input in full or does nothing.
func (w *Worker) Process(dt float64) {
	if !w.enabled || w.host == nil || dt <= 0 || w.started == core.SimEditor {
		return
	}
	p := w.host.Platform()
	if p == nil {
		return
	}

	scale := dt * w.Efficiency
	for _, in := range w.Inputs {
		if have, _ := p.Available(in.Resource); have+1e-9 < in.Ratio*scale {
			w.status = "Missing " + in.Resource
			return
		}
	}
	for _, in := range w.Inputs {
		p.Withdraw(in.Resource, in.Ratio*scale)
	}
	produced := 0.0
	for _, out := range w.Outputs {
		produced += p.Deposit(out.Resource, out.Ratio*scale)
	}

	w.runtime[RuntimeProcessed] += dt
	w.runtime[RuntimeProduced] += produced
	w.status = "Running"
}
