package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cast"

	"github.com/OCAP2/partswitch/internal/capability"
	"github.com/OCAP2/partswitch/internal/config"
	"github.com/OCAP2/partswitch/internal/converter"
	"github.com/OCAP2/partswitch/internal/host"
	"github.com/OCAP2/partswitch/internal/host/hosttest"
	"github.com/OCAP2/partswitch/internal/registry"
	"github.com/OCAP2/partswitch/internal/switcher"
	"github.com/OCAP2/partswitch/pkg/core"
)

// simOptions describes the simulated hosts of the run command.
type simOptions struct {
	Hosts     []string
	Symmetric bool
	Pools     []string // Resource=amount[/capacity]
	Crew      []string // Name:Skill[:level]
	External  string   // Name:Skill[:level] operating from outside
	Packages  []string
	Unlocked  []string
	Editor    bool
}

// parsePool reads "Resource=amount[/capacity]".
func parsePool(s string) (string, float64, float64, error) {
	name, rest, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", 0, 0, fmt.Errorf("pool %q: expected Resource=amount[/capacity]", s)
	}
	amountStr, capStr, hasCap := strings.Cut(rest, "/")
	amount, err := cast.ToFloat64E(strings.TrimSpace(amountStr))
	if err != nil {
		return "", 0, 0, fmt.Errorf("pool %q: bad amount: %w", s, err)
	}
	var capacity float64
	if hasCap {
		if capacity, err = cast.ToFloat64E(strings.TrimSpace(capStr)); err != nil {
			return "", 0, 0, fmt.Errorf("pool %q: bad capacity: %w", s, err)
		}
	}
	return name, amount, capacity, nil
}

// parseOccupant reads "Name:Skill[:level]".
func parseOccupant(s string) (core.Occupant, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
		return core.Occupant{}, fmt.Errorf("crew %q: expected Name:Skill[:level]", s)
	}
	o := core.Occupant{Name: strings.TrimSpace(parts[0])}
	if skill := strings.TrimSpace(parts[1]); skill != "" {
		o.Skills = []string{skill}
	}
	if len(parts) > 2 {
		level, err := cast.ToIntE(strings.TrimSpace(parts[2]))
		if err != nil {
			return core.Occupant{}, fmt.Errorf("crew %q: bad level: %w", s, err)
		}
		o.Level = level
	}
	return o, nil
}

func newPlatform(opts simOptions, self string) (*hosttest.Platform, error) {
	p := hosttest.New()
	p.Progression = config.GetBool("progression")
	if opts.Editor {
		p.Editor = true
		p.Context = core.SimEditor
	}
	for _, s := range opts.Pools {
		name, amount, capacity, err := parsePool(s)
		if err != nil {
			return nil, err
		}
		p.WithPool(name, amount, capacity)
	}
	for _, s := range opts.Crew {
		o, err := parseOccupant(s)
		if err != nil {
			return nil, err
		}
		p.Crew = append(p.Crew, o)
	}
	if opts.External != "" {
		o, err := parseOccupant(opts.External)
		if err != nil {
			return nil, err
		}
		p.External = &o
	}
	for _, name := range opts.Packages {
		p.Installed[name] = true
	}
	for _, tech := range opts.Unlocked {
		p.Unlocked[tech] = true
	}
	if opts.Symmetric {
		for _, id := range opts.Hosts {
			if id != self {
				p.Siblings = append(p.Siblings, id)
			}
		}
	}
	return p, nil
}

// newController wires one host with its managers and registry.
func newController(id string, p host.Platform, loader *registry.Loader, sink switcher.EventSink, logger *slog.Logger) (*switcher.Controller, error) {
	h := host.New(id, id, p)

	factory := capability.NewDefaultFactory()
	if err := converter.Register(factory); err != nil {
		return nil, fmt.Errorf("registering converter capability: %w", err)
	}

	return switcher.New(switcher.Dependencies{
		Host:         h,
		Registry:     loader.Load(config.GetStringSlice("templateSources"), config.GetStringSlice("tagFilter"), h),
		Capabilities: capability.NewManager(h, factory, logger, config.CapabilityOptions()),
		Converters:   converter.NewManager(h, logger),
		Policy:       config.Policy(),
		Options:      config.ControllerOptions(),
		Logger:       logger,
		Sink:         sink,
	})
}

// buildFleet creates every simulated host and registers it in one fleet.
func buildFleet(opts simOptions, loader *registry.Loader, sink switcher.EventSink, logger *slog.Logger) (*switcher.Fleet, map[string]*hosttest.Platform, error) {
	if len(opts.Hosts) == 0 {
		return nil, nil, fmt.Errorf("no hosts to simulate")
	}
	fleet := switcher.NewFleet()
	platforms := make(map[string]*hosttest.Platform, len(opts.Hosts))
	for _, id := range opts.Hosts {
		if _, dup := platforms[id]; dup {
			return nil, nil, fmt.Errorf("duplicate host %q", id)
		}
		p, err := newPlatform(opts, id)
		if err != nil {
			return nil, nil, err
		}
		c, err := newController(id, p, loader, sink, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("host %s: %w", id, err)
		}
		fleet.Add(c)
		platforms[id] = p
	}
	return fleet, platforms, nil
}
