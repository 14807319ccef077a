// Package dispatcher routes host commands to their handlers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/partswitch/internal/dispatcher"

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrClosed         = errors.New("dispatcher closed")
	ErrMissingArgs    = errors.New("missing arguments")
	ErrQueueFull      = errors.New("queue full")
)

// Queued is the result of a command accepted by a buffered route.
const Queued = "queued"

// Event is one command received from the host side: a UI button, an action
// trigger or a script line.
type Event struct {
	Command   string
	Args      []string
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Option configures a route.
type Option func(*route)

// Buffered hands events to a worker goroutine through a queue of the given
// size. Dispatch returns Queued right away.
func Buffered(size int) Option {
	return func(r *route) { r.bufferSize = size }
}

// Blocking makes a full buffered route wait for room instead of failing with
// ErrQueueFull.
func Blocking() Option {
	return func(r *route) { r.blocking = true }
}

// Logged logs every call at debug level and failures at error level.
func Logged() Option {
	return func(r *route) { r.logged = true }
}

// MinArgs rejects events carrying fewer than n arguments before the handler
// runs.
func MinArgs(n int) Option {
	return func(r *route) { r.minArgs = n }
}

// Dependencies holds the collaborators of a Dispatcher.
type Dependencies struct {
	Logger *slog.Logger
	// Meter defaults to the global OTel meter, a no-op unless a provider is
	// installed.
	Meter metric.Meter
}

type route struct {
	command    string
	handler    HandlerFunc
	bufferSize int
	blocking   bool
	logged     bool
	minArgs    int
	queue      chan Event
}

type instruments struct {
	queued   metric.Int64ObservableGauge
	handled  metric.Int64Counter
	dropped  metric.Int64Counter
	duration metric.Float64Histogram
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	log  *slog.Logger
	inst instruments

	mu      sync.RWMutex
	routes  map[string]*route
	closed  bool
	workers sync.WaitGroup
}

// New creates a Dispatcher and its command metrics.
func New(deps Dependencies) (*Dispatcher, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Meter == nil {
		deps.Meter = otel.Meter(instrumentationName)
	}
	d := &Dispatcher{
		log:    deps.Logger,
		routes: make(map[string]*route),
	}
	if err := d.createInstruments(deps.Meter); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) createInstruments(m metric.Meter) error {
	var err error
	if d.inst.queued, err = m.Int64ObservableGauge("partswitch.commands.queued",
		metric.WithDescription("Commands waiting in buffered routes")); err != nil {
		return fmt.Errorf("creating queued gauge: %w", err)
	}
	if _, err = m.RegisterCallback(d.observeQueues, d.inst.queued); err != nil {
		return fmt.Errorf("registering queue callback: %w", err)
	}
	if d.inst.handled, err = m.Int64Counter("partswitch.commands.handled",
		metric.WithDescription("Commands handled, by outcome")); err != nil {
		return fmt.Errorf("creating handled counter: %w", err)
	}
	if d.inst.dropped, err = m.Int64Counter("partswitch.commands.dropped",
		metric.WithDescription("Commands rejected by a full queue")); err != nil {
		return fmt.Errorf("creating dropped counter: %w", err)
	}
	if d.inst.duration, err = m.Float64Histogram("partswitch.commands.duration",
		metric.WithDescription("Handler run time"), metric.WithUnit("s")); err != nil {
		return fmt.Errorf("creating duration histogram: %w", err)
	}
	return nil
}

func (d *Dispatcher) observeQueues(_ context.Context, o metric.Observer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for cmd, r := range d.routes {
		if r.queue != nil {
			o.ObserveInt64(d.inst.queued, int64(len(r.queue)),
				metric.WithAttributes(attribute.String("command", cmd)))
		}
	}
	return nil
}

// Register adds the handler of a command. Registering a command again
// replaces its route.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	r := &route{command: command, handler: h}
	for _, opt := range opts {
		opt(r)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.routes[command]; ok && prev.queue != nil {
		// the old worker finishes what is already queued
		close(prev.queue)
	}
	if r.bufferSize > 0 {
		r.queue = make(chan Event, r.bufferSize)
		d.workers.Add(1)
		go d.drain(r)
	}
	d.routes[command] = r
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	r, err := d.lookup(e)
	if err != nil || r.queue != nil {
		defer d.mu.RUnlock()
		if err != nil {
			return nil, err
		}
		return d.enqueue(r, e)
	}
	d.mu.RUnlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return d.run(r, e)
}

func (d *Dispatcher) lookup(e Event) (*route, error) {
	if d.closed {
		return nil, ErrClosed
	}
	r, ok := d.routes[e.Command]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if len(e.Args) < r.minArgs {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrMissingArgs, e.Command, r.minArgs, len(e.Args))
	}
	return r, nil
}

// enqueue runs under the read lock so Close cannot close the queue under a
// sender.
func (d *Dispatcher) enqueue(r *route, e Event) (any, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if r.blocking {
		r.queue <- e
		return Queued, nil
	}
	select {
	case r.queue <- e:
		return Queued, nil
	default:
		d.inst.dropped.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("command", r.command)))
		return nil, fmt.Errorf("%w: %s", ErrQueueFull, r.command)
	}
}

func (d *Dispatcher) drain(r *route) {
	defer d.workers.Done()
	for e := range r.queue {
		if _, err := d.run(r, e); err != nil && !r.logged {
			d.log.Error("Queued command failed", "command", r.command, "error", err)
		}
	}
}

func (d *Dispatcher) run(r *route, e Event) (any, error) {
	start := time.Now()
	if r.logged {
		d.log.Debug("Handling command", "command", r.command, "args", len(e.Args))
	}

	result, err := r.handler(e)

	elapsed := time.Since(start)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ctx := context.Background()
	cmdAttr := attribute.String("command", r.command)
	d.inst.handled.Add(ctx, 1, metric.WithAttributes(cmdAttr, attribute.String("outcome", outcome)))
	d.inst.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(cmdAttr))

	if r.logged {
		if err != nil {
			d.log.Error("Command failed", "command", r.command, "duration", elapsed, "error", err)
		} else {
			d.log.Debug("Command complete", "command", r.command, "duration", elapsed)
		}
	}
	return result, err
}

// HasHandler reports whether a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.routes[command]
	return ok
}

// Commands returns the registered commands, sorted.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cmds := make([]string, 0, len(d.routes))
	for c := range d.routes {
		cmds = append(cmds, c)
	}
	sort.Strings(cmds)
	return cmds
}

// Close stops accepting commands and waits until every queued command has
// been handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, r := range d.routes {
		if r.queue != nil {
			close(r.queue)
		}
	}
	d.mu.Unlock()
	d.workers.Wait()
}
