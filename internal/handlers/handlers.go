// Package handlers exposes host reconfiguration as dispatcher commands. It is
// the entry point used by UI buttons, scripts and action triggers.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/OCAP2/partswitch/internal/dispatcher"
	"github.com/OCAP2/partswitch/internal/storage"
	"github.com/OCAP2/partswitch/internal/switcher"
	"github.com/OCAP2/partswitch/internal/util"
)

// Command names.
const (
	CmdSwitchNext   = ":SWITCH:NEXT:"
	CmdSwitchPrev   = ":SWITCH:PREV:"
	CmdSwitchName   = ":SWITCH:NAME:"
	CmdSwitchIndex  = ":SWITCH:INDEX:"
	CmdDeploy       = ":DEPLOY:"
	CmdQuote        = ":QUOTE:"
	CmdStatus       = ":STATUS:"
	CmdWorkerToggle = ":WORKER:TOGGLE:"
	CmdSave         = ":SAVE:"
	CmdLoad         = ":LOAD:"
	CmdTick         = ":TICK:"
	CmdHosts        = ":HOSTS:"
)

var (
	ErrUnknownHost   = errors.New("unknown host")
	ErrUnknownWorker = errors.New("unknown worker")
	ErrNoStorage     = errors.New("no storage backend configured")
)

// Dependencies holds all dependencies needed by handlers.
type Dependencies struct {
	Fleet   *switcher.Fleet
	Storage storage.Backend
	Logger  *slog.Logger
}

// SwitchResponse is the reply to a switch command.
type SwitchResponse struct {
	Status   string   `json:"status"`
	From     string   `json:"from,omitempty"`
	To       string   `json:"to,omitempty"`
	Index    int      `json:"index"`
	Cost     float64  `json:"cost"`
	Resource string   `json:"resource,omitempty"`
	Replayed []string `json:"replayed,omitempty"`
	Failed   []string `json:"failed,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// DeployResponse is the reply to a deploy command.
type DeployResponse struct {
	Status   string  `json:"status"`
	Deployed bool    `json:"deployed"`
	Cost     float64 `json:"cost,omitempty"`
	Salvage  float64 `json:"salvage,omitempty"`
	Resource string  `json:"resource,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// QuoteResponse is the reply to a quote command.
type QuoteResponse struct {
	Template string             `json:"template"`
	Allowed  bool               `json:"allowed"`
	Reason   string             `json:"reason"`
	Cost     float64            `json:"cost"`
	Resource string             `json:"resource,omitempty"`
	Operator string             `json:"operator,omitempty"`
	Message  string             `json:"message"`
	Inputs   map[string]float64 `json:"inputs,omitempty"`
}

// Service serializes every command that touches a controller.
type Service struct {
	ctx  context.Context
	deps Dependencies
	mu   sync.Mutex
}

// NewService creates a new handler service. ctx bounds the Start calls made
// by the load command.
func NewService(ctx context.Context, deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Fleet == nil {
		deps.Fleet = switcher.NewFleet()
	}
	return &Service{ctx: ctx, deps: deps}
}

// Fleet returns the controllers the service routes to.
func (s *Service) Fleet() *switcher.Fleet {
	return s.deps.Fleet
}

// Register adds every command to the dispatcher.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	host := dispatcher.MinArgs(1)
	hostAndValue := dispatcher.MinArgs(2)
	d.Register(CmdSwitchNext, s.handle(s.SwitchNext), host, dispatcher.Logged())
	d.Register(CmdSwitchPrev, s.handle(s.SwitchPrev), host, dispatcher.Logged())
	d.Register(CmdSwitchName, s.handle(s.SwitchName), hostAndValue, dispatcher.Logged())
	d.Register(CmdSwitchIndex, s.handle(s.SwitchIndex), hostAndValue, dispatcher.Logged())
	d.Register(CmdDeploy, s.handle(s.Deploy), hostAndValue, dispatcher.Logged())
	d.Register(CmdQuote, s.handle(s.Quote), host)
	d.Register(CmdStatus, s.handle(s.Status), host)
	d.Register(CmdWorkerToggle, s.handle(s.WorkerToggle), hostAndValue, dispatcher.Logged())
	d.Register(CmdSave, s.handle(s.Save), dispatcher.Logged())
	d.Register(CmdLoad, s.handle(s.Load), host, dispatcher.Logged())
	d.Register(CmdTick, s.handle(s.Tick), hostAndValue)
	d.Register(CmdHosts, s.handle(s.Hosts))
}

func (s *Service) handle(fn func(args []string) (any, error)) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) (any, error) {
		args := util.CleanArgs(append([]string(nil), e.Args...))
		s.mu.Lock()
		defer s.mu.Unlock()
		return fn(args)
	}
}

func (s *Service) controller(args []string) (*switcher.Controller, error) {
	id, err := util.Arg(args, 0)
	if err != nil {
		return nil, fmt.Errorf("host id: %w", err)
	}
	c, ok := s.deps.Fleet.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHost, id)
	}
	return c, nil
}

func switchResponse(res switcher.Result) SwitchResponse {
	msg := res.Message
	if msg == "" && res.Status == switcher.Declined {
		msg = res.Quote.Message()
	}
	return SwitchResponse{
		Status:   res.Status.String(),
		From:     res.From,
		To:       res.To,
		Index:    res.Index,
		Cost:     res.Quote.Cost,
		Resource: res.Quote.Resource,
		Replayed: res.Replayed,
		Failed:   res.Failed,
		Message:  msg,
	}
}

// SwitchNext handles :SWITCH:NEXT: host
func (s *Service) SwitchNext(args []string) (any, error) {
	c, err := s.controller(args)
	if err != nil {
		return nil, err
	}
	return switchResponse(c.Next()), nil
}

// SwitchPrev handles :SWITCH:PREV: host
func (s *Service) SwitchPrev(args []string) (any, error) {
	c, err := s.controller(args)
	if err != nil {
		return nil, err
	}
	return switchResponse(c.Prev()), nil
}

// SwitchName handles :SWITCH:NAME: host|template
func (s *Service) SwitchName(args []string) (any, error) {
	c, err := s.controller(args)
	if err != nil {
		return nil, err
	}
	name, err := util.Arg(args, 1)
	if err != nil {
		return nil, fmt.Errorf("template name: %w", err)
	}
	return switchResponse(c.SwitchTo(name)), nil
}

// SwitchIndex handles :SWITCH:INDEX: host|index[|force]
func (s *Service) SwitchIndex(args []string) (any, error) {
	c, err := s.controller(args)
	if err != nil {
		return nil, err
	}
	idx, err := util.ArgInt(args, 1)
	if err != nil {
		return nil, fmt.Errorf("template index: %w", err)
	}
	force, err := util.OptionalBool(args, 2, false)
	if err != nil {
		return nil, err
	}
	return switchResponse(c.SwitchTemplate(idx, force)), nil
}

// Deploy handles :DEPLOY: host|deployed
func (s *Service) Deploy(args []string) (any, error) {
	c, err := s.controller(args)
	if err != nil {
		return nil, err
	}
	deploy, err := util.ArgBool(args, 1)
	if err != nil {
		return nil, err
	}
	res := c.SetDeployed(deploy)
	return DeployResponse{
		Status:   res.Status.String(),
		Deployed: res.Deployed,
		Cost:     res.Cost,
		Salvage:  res.Salvage,
		Resource: res.Resource,
		Message:  res.Message,
	}, nil
}

// Quote handles :QUOTE: host[|index]. Without an index the next usable
// template is quoted.
func (s *Service) Quote(args []string) (any, error) {
	c, err := s.controller(args)
	if err != nil {
		return nil, err
	}
	idx := c.Registry().NextUsable(c.Index())
	if len(args) > 1 {
		if idx, err = util.ArgInt(args, 1); err != nil {
			return nil, fmt.Errorf("template index: %w", err)
		}
	}
	q, ok := c.EstimateCost(idx)
	if !ok {
		return nil, fmt.Errorf("template index %d out of range", idx)
	}
	tpl, _ := c.Registry().At(idx)
	return QuoteResponse{
		Template: tpl.Name,
		Allowed:  q.Allowed,
		Reason:   q.Reason.String(),
		Cost:     q.Cost,
		Resource: q.Resource,
		Operator: q.Operator,
		Message:  q.Message(),
		Inputs:   c.RequiredInputs(idx),
	}, nil
}

// Status handles :STATUS: host
func (s *Service) Status(args []string) (any, error) {
	c, err := s.controller(args)
	if err != nil {
		return nil, err
	}
	return c.Display(), nil
}

// WorkerToggle handles :WORKER:TOGGLE: host|worker[|enabled]. Without the
// flag the worker is flipped.
func (s *Service) WorkerToggle(args []string) (any, error) {
	c, err := s.controller(args)
	if err != nil {
		return nil, err
	}
	name, err := util.Arg(args, 1)
	if err != nil {
		return nil, fmt.Errorf("worker name: %w", err)
	}
	w, ok := c.Converters().Worker(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	enabled, err := util.OptionalBool(args, 2, !w.Enabled())
	if err != nil {
		return nil, err
	}
	c.Converters().SetEnabled(name, enabled)
	return enabled, nil
}

// Save handles :SAVE:[host]. Without a host every controller is saved.
// It returns the number of saved states.
func (s *Service) Save(args []string) (any, error) {
	if s.deps.Storage == nil {
		return nil, ErrNoStorage
	}
	ids := s.deps.Fleet.IDs()
	if len(args) > 0 && args[0] != "" {
		if _, err := s.controller(args); err != nil {
			return nil, err
		}
		ids = args[:1]
	}

	saved := 0
	for _, id := range ids {
		c, _ := s.deps.Fleet.Get(id)
		state := c.Save()
		if err := s.deps.Storage.SaveHostState(&state); err != nil {
			return saved, fmt.Errorf("saving %s: %w", id, err)
		}
		saved++
	}
	s.deps.Logger.Info("Saved host states", "count", saved)
	return saved, nil
}

// Load handles :LOAD: host. The stored state is applied and the host is
// settled on it. A host without a stored state is settled on its current
// template.
func (s *Service) Load(args []string) (any, error) {
	if s.deps.Storage == nil {
		return nil, ErrNoStorage
	}
	c, err := s.controller(args)
	if err != nil {
		return nil, err
	}

	state, err := s.deps.Storage.LoadHostState(args[0])
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.deps.Logger.Info("No stored state, settling on current template", "host", args[0])
	case err != nil:
		return nil, fmt.Errorf("loading %s: %w", args[0], err)
	default:
		c.Load(*state)
	}

	if err := c.Start(s.ctx); err != nil {
		return nil, fmt.Errorf("starting %s: %w", args[0], err)
	}
	return c.CurrentName(), nil
}

// Tick handles :TICK: host|seconds and runs the workers.
func (s *Service) Tick(args []string) (any, error) {
	c, err := s.controller(args)
	if err != nil {
		return nil, err
	}
	dt, err := util.ArgFloat(args, 1)
	if err != nil {
		return nil, err
	}
	c.Tick(dt)
	return nil, nil
}

// Hosts handles :HOSTS: and lists the registered host IDs.
func (s *Service) Hosts(_ []string) (any, error) {
	return s.deps.Fleet.IDs(), nil
}
