// Package switcher drives runtime reconfiguration of a host: template
// selection through the gate, inventory and capability rebuilds, the
// deploy/stow state machine and symmetry replay.
package switcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/OCAP2/partswitch/internal/capability"
	"github.com/OCAP2/partswitch/internal/converter"
	"github.com/OCAP2/partswitch/internal/gate"
	"github.com/OCAP2/partswitch/internal/host"
	"github.com/OCAP2/partswitch/internal/registry"
	"github.com/OCAP2/partswitch/pkg/core"
)

// Status is the outcome of a switch request.
type Status int

const (
	Switched Status = iota
	NoChange
	OutOfRange
	Busy
	Declined
)

func (s Status) String() string {
	switch s {
	case Switched:
		return "switched"
	case NoChange:
		return "no change"
	case OutOfRange:
		return "out of range"
	case Busy:
		return "busy"
	case Declined:
		return "declined"
	default:
		return "unknown"
	}
}

// Result describes one switch request.
type Result struct {
	Status   Status
	From     string
	To       string
	Index    int
	Quote    gate.Quote
	Report   capability.Report
	Replayed []string // counterparts that switched along
	Failed   []string // counterparts that declined
	Message  string
}

// Options are the per-host controller settings.
type Options struct {
	KeepResources              []string // survive every switch
	PlaceholderCapacity        float64  // capacity of templated resources while stowed
	Inflatable                 bool     // host has a deployed/stowed state
	AllowDeployWhenOccupied    bool
	AllowDeployWithAttachments bool
	CapacityFactor             float64
}

// DefaultOptions returns the stock controller settings.
func DefaultOptions() Options {
	return Options{
		PlaceholderCapacity: 1,
		CapacityFactor:      1,
	}
}

// Dependencies holds the collaborators of a controller.
type Dependencies struct {
	Host         *host.Host
	Registry     *registry.Registry
	Capabilities *capability.Manager
	Converters   *converter.Manager
	Policy       gate.Policy
	Options      Options
	Logger       *slog.Logger
	Sink         EventSink
}

type phase int

const (
	idle phase = iota
	transitioning
)

// Controller owns the reconfiguration state of one host.
type Controller struct {
	host     *host.Host
	registry *registry.Registry
	caps     *capability.Manager
	workers  *converter.Manager
	policy   gate.Policy
	opts     Options
	logger   *slog.Logger
	sink     EventSink
	fleet    *Fleet

	phase          phase
	index          int
	settled        bool
	deployed       bool
	everDeployed   bool
	capacityFactor float64
	confirmDeflate bool
	displayName    string
	decals         []string
	pending        *core.HostState

	switches metric.Int64Counter
}

// New creates a controller. The host is not reconfigured until Start or
// the first switch.
func New(deps Dependencies) (*Controller, error) {
	if deps.Host == nil {
		return nil, errors.New("controller: nil host")
	}
	if deps.Registry == nil {
		return nil, errors.New("controller: nil registry")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Capabilities == nil {
		deps.Capabilities = capability.NewManager(deps.Host, nil, deps.Logger, capability.Options{})
	}
	if deps.Converters == nil {
		deps.Converters = converter.NewManager(deps.Host, deps.Logger)
	}
	if deps.Options.CapacityFactor <= 0 {
		deps.Options.CapacityFactor = 1
	}

	c := &Controller{
		host:           deps.Host,
		registry:       deps.Registry,
		caps:           deps.Capabilities,
		workers:        deps.Converters,
		policy:         deps.Policy,
		opts:           deps.Options,
		logger:         deps.Logger.With("host", deps.Host.ID),
		sink:           deps.Sink,
		deployed:       !deps.Options.Inflatable,
		capacityFactor: deps.Options.CapacityFactor,
	}

	var err error
	c.switches, err = meter().Int64Counter(
		"switcher.switches",
		metric.WithDescription("Switch requests by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating switch counter: %w", err)
	}

	return c, nil
}

// Host returns the controlled host.
func (c *Controller) Host() *host.Host { return c.host }

// Registry returns the template registry of the host.
func (c *Controller) Registry() *registry.Registry { return c.registry }

// Capabilities returns the capability manager of the host.
func (c *Controller) Capabilities() *capability.Manager { return c.caps }

// Converters returns the worker manager of the host.
func (c *Controller) Converters() *converter.Manager { return c.workers }

// Index returns the current template index.
func (c *Controller) Index() int { return c.index }

// Settled reports whether the host matches its current template.
func (c *Controller) Settled() bool { return c.settled }

// Deployed reports whether the host is deployed.
func (c *Controller) Deployed() bool { return c.deployed }

// CapacityFactor returns the resource capacity multiplier.
func (c *Controller) CapacityFactor() float64 { return c.capacityFactor }

// Decals returns the decoration references of the current template.
func (c *Controller) Decals() []string { return c.decals }

// DisplayName returns the display name of the current template.
func (c *Controller) DisplayName() string { return c.displayName }

// Next switches to the next usable template.
func (c *Controller) Next() Result {
	return c.SwitchTemplate(c.registry.NextUsable(c.index), false)
}

// Prev switches to the previous usable template.
func (c *Controller) Prev() Result {
	return c.SwitchTemplate(c.registry.PrevUsable(c.index), false)
}

// SwitchTo switches to the named template.
func (c *Controller) SwitchTo(name string) Result {
	return c.SwitchTemplate(c.registry.IndexOf(name), false)
}

// SwitchTemplate reconfigures the host into the template at target. With
// force the host is rebuilt even when already at target.
func (c *Controller) SwitchTemplate(target int, force bool) Result {
	res := c.switchTemplate(target, force, false)
	if res.Status == Switched && c.fleet != nil {
		res.Replayed, res.Failed = c.fleet.replay(c, target)
	}
	return res
}

func (c *Controller) switchTemplate(target int, force, replay bool) Result {
	c.confirmDeflate = false
	res := Result{Index: target, From: c.CurrentName()}

	if c.phase == transitioning {
		res.Status = Busy
		res.Message = "Reconfiguration already in progress"
		return c.finish(res, replay)
	}

	tpl, ok := c.registry.At(target)
	if !ok {
		res.Status = OutOfRange
		res.Message = fmt.Sprintf("No template at index %d", target)
		return c.finish(res, replay)
	}
	res.To = tpl.Name

	if target == c.index && c.settled && !force {
		res.Status = NoChange
		res.Message = "Already configured as " + tpl.DisplayName()
		return c.finish(res, replay)
	}

	res.Quote = gate.Evaluate(c.current(), &tpl, c.situation(tpl.Price), c.policy)
	if !res.Quote.Allowed {
		res.Status = Declined
		res.Message = res.Quote.Message()
		return c.finish(res, replay)
	}

	if res.Quote.Cost != 0 {
		refunded, err := gate.Pay(c.host.Platform(), res.Quote.Resource, res.Quote.Cost)
		if err != nil {
			c.logger.Warn("Payment failed", "template", tpl.Name, "error", err)
			res.Status = Declined
			res.Quote.Allowed = false
			res.Quote.Reason = gate.Insufficient
			res.Message = res.Quote.Message()
			return c.finish(res, replay)
		}
		if res.Quote.Cost < 0 {
			// the pool may not have room for the whole refund
			res.Quote.Cost = -refunded
		}
	}

	c.phase = transitioning
	res.Report = c.apply(tpl)
	c.consumePending(tpl)
	c.index = target
	c.settled = true
	c.phase = idle

	res.Status = Switched
	res.Message = res.Quote.Message()
	return c.finish(res, replay)
}

// apply runs the inventory, capability, worker and decoration steps as one
// unit. A capability failure is logged and leaves the inventory on target.
func (c *Controller) apply(tpl core.Template) capability.Report {
	c.applyResources(tpl)

	report := c.caps.Rebuild(tpl.Capabilities)
	if n := report.Failed(); n > 0 {
		c.logger.Warn("Capability rebuild incomplete", "template", tpl.Name, "failed", n)
	}
	c.workers.Rebuild(tpl.Workers)

	c.decals = append([]string(nil), tpl.Decals...)
	c.displayName = tpl.DisplayName()
	return report
}

// applyResources drops resources the target does not store and sizes the
// templated ones. Persistent resources keep their amount; the others start
// full in the editor and empty in flight.
func (c *Controller) applyResources(tpl core.Template) {
	inv := c.host.Inventory()

	keep := slices.Clone(c.opts.KeepResources)
	for _, r := range tpl.Resources {
		keep = append(keep, r.Name)
	}
	inv.RemoveExcept(keep)

	inEditor := c.host.InEditor()
	for _, r := range tpl.Resources {
		capacity := c.capacityFor(r)
		amount := 0.0
		existing, had := inv.Get(r.Name)
		switch {
		case had && r.Persistent:
			amount = existing.Amount
		case inEditor:
			amount = capacity
		}
		inv.Set(r.Name, amount, capacity)
	}
}

// rescale resizes every templated resource to the capacity of the current
// deploy state.
func (c *Controller) rescale() {
	tpl := c.current()
	if tpl == nil {
		return
	}
	inv := c.host.Inventory()
	for _, r := range tpl.Resources {
		if !inv.Resize(r.Name, c.capacityFor(r)) {
			inv.Set(r.Name, 0, c.capacityFor(r))
		}
	}
}

func (c *Controller) capacityFor(r core.ResourceDescriptor) float64 {
	full := r.MaxAmount * c.capacityFactor
	if c.opts.Inflatable && !c.deployed {
		return math.Min(c.opts.PlaceholderCapacity, full)
	}
	return full
}

// SetCapacityFactor changes the capacity multiplier and rescales the
// templated resources.
func (c *Controller) SetCapacityFactor(f float64) {
	if f <= 0 {
		f = 1
	}
	c.confirmDeflate = false
	c.capacityFactor = f
	if c.settled {
		c.rescale()
	}
}

// Tick advances the converter workers by dt seconds.
func (c *Controller) Tick(dt float64) {
	if c.settled {
		c.workers.Process(dt)
	}
}

// current returns the settled template, nil when the host has none.
func (c *Controller) current() *core.Template {
	if !c.settled {
		return nil
	}
	tpl, ok := c.registry.At(c.index)
	if !ok {
		return nil
	}
	return &tpl
}

func (c *Controller) situation(price core.Price) gate.Situation {
	s := gate.Situation{
		Stowed:       c.opts.Inflatable && !c.deployed,
		EverDeployed: c.everDeployed,
	}
	p := c.host.Platform()
	if p == nil {
		return s
	}
	s.Occupants = p.Occupants()
	if ext, ok := p.ExternalOperator(); ok {
		s.External = &ext
	}
	if price.Resource != "" {
		s.OnBoard, _ = p.Available(price.Resource)
	}
	return s
}

// finish counts and records the outcome of a switch request.
func (c *Controller) finish(res Result, replay bool) Result {
	c.switches.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("outcome", res.Status.String()),
		attribute.Bool("replayed", replay),
	))

	switch res.Status {
	case Switched:
		c.logger.Info("Host reconfigured", "from", res.From, "to", res.To, "cost", res.Quote.Cost, "replayed", replay)
	case NoChange:
		c.logger.Debug("Switch skipped", "template", res.To)
		return res
	case OutOfRange, Busy:
		c.logger.Debug("Switch rejected", "index", res.Index, "status", res.Status.String())
	case Declined:
		c.logger.Info("Switch declined", "to", res.To, "reason", res.Quote.Reason.String())
	}

	c.record(core.SwitchEvent{
		From:     res.From,
		To:       res.To,
		Resource: res.Quote.Resource,
		Cost:     res.Quote.Cost,
		Outcome:  res.Status.String(),
		Replayed: replay,
	})
	return res
}

func (c *Controller) record(e core.SwitchEvent) {
	if c.sink == nil {
		return
	}
	e.ID = uuid.NewString()
	e.HostID = c.host.ID
	e.Time = time.Now().UTC()
	if err := c.sink.RecordSwitchEvent(&e); err != nil {
		c.logger.Warn("Failed to record switch event", "error", err)
	}
}
