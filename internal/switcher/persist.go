package switcher

import (
	"context"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/OCAP2/partswitch/internal/capability"
	"github.com/OCAP2/partswitch/pkg/core"
)

// Save returns the persisted state of the host. A state loaded but not yet
// settled is returned as loaded.
func (c *Controller) Save() core.HostState {
	if c.pending != nil {
		s := *c.pending
		s.SavedAt = time.Now().UTC()
		return s
	}
	return core.HostState{
		HostID:         c.host.ID,
		TemplateIndex:  c.index,
		TemplateName:   c.CurrentName(),
		Deployed:       c.deployed,
		EverDeployed:   c.everDeployed,
		CapacityFactor: c.capacityFactor,
		Resources:      c.host.Inventory().Amounts(),
		Workers:        c.workers.SaveState(),
		Settings:       c.caps.Capture().Settings(),
		SavedAt:        time.Now().UTC(),
	}
}

// Load records a persisted state. Nothing is rebuilt until Start.
func (c *Controller) Load(s core.HostState) {
	c.confirmDeflate = false
	c.pending = &s
	c.settled = false
	c.index = s.TemplateIndex
	c.everDeployed = s.EverDeployed
	c.deployed = s.Deployed || !c.opts.Inflatable
	if s.CapacityFactor > 0 {
		c.capacityFactor = s.CapacityFactor
	}
	c.caps.SetPending(capability.FromSettings(s.Settings))
	c.workers.LoadState(s.Workers)
}

// Start settles the host on its template without charging for it. A loaded
// state is resolved by template name. Saves without a name resolve by index.
// A name the registry no longer holds falls back to the first template and
// only the kept resources are restored.
func (c *Controller) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := c.pending
	c.pending = nil
	c.confirmDeflate = false

	if c.registry.Len() == 0 {
		c.logger.Warn("No templates available, host left unconfigured")
		return nil
	}

	idx, matched := c.resolve(s)
	tpl, _ := c.registry.At(idx)

	c.phase = transitioning
	c.apply(tpl)
	c.index = idx
	c.settled = true
	if s != nil {
		c.restoreAmounts(tpl, s.Resources, func(core.ResourceDescriptor) bool { return matched })
	}
	c.phase = idle

	c.switches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", "settled"),
		attribute.Bool("replayed", false),
	))
	c.logger.Info("Host settled", "template", tpl.Name, "index", idx, "loaded", s != nil)
	return nil
}

// resolve returns the index to settle on and whether it is the saved
// template.
func (c *Controller) resolve(s *core.HostState) (int, bool) {
	if s == nil {
		if c.index >= 0 && c.index < c.registry.Len() {
			return c.index, true
		}
		return 0, true
	}

	if s.TemplateName != "" {
		if i := c.registry.IndexOf(s.TemplateName); i >= 0 {
			return i, true
		}
	} else if _, ok := c.registry.At(s.TemplateIndex); ok {
		return s.TemplateIndex, true
	}
	c.logger.Warn("Saved template mismatch, falling back to first template",
		"saved", s.TemplateName, "index", s.TemplateIndex)
	return 0, false
}

// consumePending carries a loaded state into the first switch after Load.
// Persistent templated resources and kept resources take their saved amounts.
func (c *Controller) consumePending(tpl core.Template) {
	s := c.pending
	c.pending = nil
	if s == nil {
		return
	}
	c.restoreAmounts(tpl, s.Resources, func(r core.ResourceDescriptor) bool { return r.Persistent })
	c.logger.Debug("Loaded state consumed by switch", "saved", s.TemplateName, "template", tpl.Name)
}

// restoreAmounts writes saved amounts back. Templated resources are restored
// when templated reports true for them; kept resources always are.
func (c *Controller) restoreAmounts(tpl core.Template, saved []core.ResourceAmount, templated func(core.ResourceDescriptor) bool) {
	inv := c.host.Inventory()
	for _, ra := range saved {
		if r, ok := tpl.Resource(ra.Name); ok {
			if !templated(r) {
				continue
			}
			if have, ok := inv.Get(ra.Name); ok {
				inv.Set(ra.Name, ra.Amount, have.MaxAmount)
			}
			continue
		}
		if slices.Contains(c.opts.KeepResources, ra.Name) {
			inv.Set(ra.Name, ra.Amount, ra.MaxAmount)
		}
	}
}
