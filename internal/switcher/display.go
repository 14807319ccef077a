package switcher

import (
	"github.com/OCAP2/partswitch/internal/converter"
	"github.com/OCAP2/partswitch/internal/gate"
	"github.com/OCAP2/partswitch/internal/host"
)

// WorkerView is one worker in the aggregated worker display.
type WorkerView struct {
	Name    string
	Enabled bool
	Status  string
}

// Display is everything a UI shows about a host.
type Display struct {
	HostID         string
	Current        string
	Title          string
	Description    string
	Index          int
	Count          int
	Next           string
	Prev           string
	Deployed       bool
	Inflatable     bool
	NextQuote      gate.Quote
	Resources      []host.Resource
	Workers        []WorkerView
	RequiredInputs map[string]float64
	Decals         []string
}

// CurrentName returns the short name of the current template, empty when
// the index is out of range.
func (c *Controller) CurrentName() string {
	tpl, ok := c.registry.At(c.index)
	if !ok {
		return ""
	}
	return tpl.Name
}

// PreviewNext returns the name of the template Next would switch to.
func (c *Controller) PreviewNext() string {
	return c.nameAt(c.registry.NextUsable(c.index))
}

// PreviewPrev returns the name of the template Prev would switch to.
func (c *Controller) PreviewPrev() string {
	return c.nameAt(c.registry.PrevUsable(c.index))
}

func (c *Controller) nameAt(i int) string {
	tpl, ok := c.registry.At(i)
	if !ok {
		return ""
	}
	return tpl.Name
}

// EstimateCost quotes a switch to the template at index without side
// effects. It returns false when the index is out of range.
func (c *Controller) EstimateCost(index int) (gate.Quote, bool) {
	tpl, ok := c.registry.At(index)
	if !ok {
		return gate.Quote{}, false
	}
	return gate.Evaluate(c.current(), &tpl, c.situation(tpl.Price), c.policy), true
}

// RequiredInputs returns the worker input demand of the template at index.
func (c *Controller) RequiredInputs(index int) map[string]float64 {
	tpl, ok := c.registry.At(index)
	if !ok {
		return nil
	}
	return converter.RequiredInputs(tpl)
}

// Display returns the aggregated view of the host.
func (c *Controller) Display() Display {
	d := Display{
		HostID:     c.host.ID,
		Current:    c.CurrentName(),
		Index:      c.index,
		Count:      c.registry.Len(),
		Next:       c.PreviewNext(),
		Prev:       c.PreviewPrev(),
		Deployed:   c.deployed,
		Inflatable: c.opts.Inflatable,
		Resources:  c.host.Inventory().All(),
		Decals:     c.decals,
	}
	if tpl, ok := c.registry.At(c.index); ok {
		d.Title = tpl.DisplayName()
		d.Description = tpl.Description
		d.RequiredInputs = converter.RequiredInputs(tpl)
	}
	if next := c.registry.NextUsable(c.index); next >= 0 {
		d.NextQuote, _ = c.EstimateCost(next)
	}
	for _, w := range c.workers.Workers() {
		d.Workers = append(d.Workers, WorkerView{Name: w.Name, Enabled: w.Enabled(), Status: w.Status()})
	}
	return d
}
