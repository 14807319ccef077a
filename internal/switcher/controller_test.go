package switcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/partswitch/internal/capability"
	"github.com/OCAP2/partswitch/internal/gate"
	"github.com/OCAP2/partswitch/internal/host"
	"github.com/OCAP2/partswitch/internal/host/hosttest"
	"github.com/OCAP2/partswitch/internal/registry"
	"github.com/OCAP2/partswitch/pkg/core"
)

const kits = "MaterialKits"

func testTemplates() []core.Template {
	return []core.Template{
		{
			Name: "Storage",
			Resources: []core.ResourceDescriptor{
				{Name: "Ore", MaxAmount: 100},
				{Name: "Parts", MaxAmount: 50, Persistent: true},
			},
			Capabilities: []core.CapabilityDescriptor{
				{Type: capability.TypeModuleInventory, Config: map[string]any{"capacity": 40}},
			},
			Decals: []string{"storage"},
		},
		{
			Name:  "Lab",
			Title: "Science Lab",
			Resources: []core.ResourceDescriptor{
				{Name: "Parts", MaxAmount: 20, Persistent: true},
				{Name: "Samples", MaxAmount: 10},
			},
			Capabilities: []core.CapabilityDescriptor{
				{Type: capability.TypeLight},
				{Type: capability.TypeGenerator, Config: map[string]any{"resource": "ElectricCharge", "rate": 1}},
			},
			Workers: []core.WorkerDescriptor{{
				Name:    "Analyzer",
				Inputs:  []core.Ratio{{Resource: "ElectricCharge", Ratio: 2}},
				Outputs: []core.Ratio{{Resource: "Science", Ratio: 1}},
			}},
			Price: core.Price{Resource: kits, Amount: 150, Skill: "Engineer"},
		},
		{
			Name:      "Battery",
			Resources: []core.ResourceDescriptor{{Name: "ElectricCharge", MaxAmount: 400}},
			Price:     core.Price{Resource: kits, Amount: 100},
		},
	}
}

// memSink collects switch events
type memSink struct {
	events []core.SwitchEvent
	err    error
}

func (s *memSink) RecordSwitchEvent(e *core.SwitchEvent) error {
	s.events = append(s.events, *e)
	return s.err
}

func (s *memSink) outcomes() []string {
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Outcome
	}
	return out
}

type fixture struct {
	platform *hosttest.Platform
	host     *host.Host
	ctrl     *Controller
	sink     *memSink
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, id string, opts ...func(*Dependencies)) *fixture {
	t.Helper()
	p := hosttest.New().WithPool(kits, 1000, 0)
	p.Crew = []core.Occupant{{Name: "Bill", Skills: []string{"Engineer"}, Level: 2}}
	h := host.New(id, "Test "+id, p)

	logs := &bytes.Buffer{}
	sink := &memSink{}
	deps := Dependencies{
		Host:     h,
		Registry: registry.New(testTemplates(), h),
		Policy:   gate.DefaultPolicy(),
		Options:  DefaultOptions(),
		Logger:   slog.New(slog.NewTextHandler(logs, nil)),
		Sink:     sink,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	c, err := New(deps)
	require.NoError(t, err)
	return &fixture{platform: p, host: h, ctrl: c, sink: sink, logs: logs}
}

func (f *fixture) start(t *testing.T) *fixture {
	t.Helper()
	require.NoError(t, f.ctrl.Start(context.Background()))
	return f
}

func inflatable(d *Dependencies) {
	d.Options.Inflatable = true
}

func capTypes(c *Controller) []string {
	var out []string
	for _, attached := range c.Capabilities().Attached() {
		out = append(out, attached.TypeName())
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Dependencies{})
	assert.Error(t, err)

	h := host.New("h", "h", hosttest.New())
	_, err = New(Dependencies{Host: h})
	assert.Error(t, err)
}

func TestStart_SettlesWithoutCharge(t *testing.T) {
	f := newFixture(t, "h1").start(t)

	assert.True(t, f.ctrl.Settled())
	assert.Equal(t, "Storage", f.ctrl.CurrentName())
	assert.Equal(t, []string{"Ore", "Parts"}, f.host.Inventory().Names())
	assert.Equal(t, []string{capability.TypeModuleInventory}, capTypes(f.ctrl))
	assert.Equal(t, []string{"storage"}, f.ctrl.Decals())
	assert.Equal(t, 1000.0, f.platform.Amount(kits))
	assert.Empty(t, f.sink.events)

	ore, _ := f.host.Inventory().Get("Ore")
	assert.Equal(t, 0.0, ore.Amount, "live hosts start empty")
}

func TestStart_EditorStartsFull(t *testing.T) {
	f := newFixture(t, "h1")
	f.platform.Editor = true
	f.start(t)

	ore, _ := f.host.Inventory().Get("Ore")
	assert.Equal(t, 100.0, ore.Amount)
}

func TestSwitchTemplate_CommitsTarget(t *testing.T) {
	f := newFixture(t, "h1").start(t)
	f.host.Inventory().Set("Parts", 30, 50)

	res := f.ctrl.SwitchTo("Lab")

	require.Equal(t, Switched, res.Status, res.Message)
	assert.Equal(t, 1, f.ctrl.Index())
	assert.Equal(t, "Science Lab", f.ctrl.DisplayName())
	assert.InDelta(t, 850, f.platform.Amount(kits), 1e-9)
	assert.Equal(t, []string{"Parts", "Samples"}, f.host.Inventory().Names())
	assert.Equal(t, []string{capability.TypeLight, capability.TypeGenerator}, capTypes(f.ctrl))
	assert.Len(t, f.ctrl.Converters().Workers(), 1)
	assert.Nil(t, f.ctrl.Decals())

	parts, _ := f.host.Inventory().Get("Parts")
	assert.Equal(t, 20.0, parts.Amount, "persistent amount is clamped to the new capacity")
	assert.Equal(t, 20.0, parts.MaxAmount)

	assert.Equal(t, []string{"switched"}, f.sink.outcomes())
	e := f.sink.events[0]
	assert.Equal(t, "h1", e.HostID)
	assert.Equal(t, "Storage", e.From)
	assert.Equal(t, "Lab", e.To)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Replayed)
}

func TestSwitchTemplate_Idempotent(t *testing.T) {
	f := newFixture(t, "h1").start(t)
	require.Equal(t, Switched, f.ctrl.SwitchTemplate(1, false).Status)
	f.host.Inventory().Set("Samples", 4, 10)

	resources := f.host.Inventory().All()
	caps := f.ctrl.Capabilities().Attached()
	kitsBefore := f.platform.Amount(kits)
	withdrawals := f.platform.Withdrawals

	res := f.ctrl.SwitchTemplate(1, false)

	assert.Equal(t, NoChange, res.Status)
	assert.Equal(t, resources, f.host.Inventory().All())
	assert.Equal(t, caps, f.ctrl.Capabilities().Attached())
	assert.Equal(t, kitsBefore, f.platform.Amount(kits))
	assert.Equal(t, withdrawals, f.platform.Withdrawals)
}

func TestSwitchTemplate_Force(t *testing.T) {
	f := newFixture(t, "h1").start(t)
	before := f.ctrl.Capabilities().Attached()

	res := f.ctrl.SwitchTemplate(0, true)

	assert.Equal(t, Switched, res.Status)
	assert.NotSame(t, before[0], f.ctrl.Capabilities().Attached()[0])
}

func TestSwitchTemplate_OutOfRange(t *testing.T) {
	f := newFixture(t, "h1").start(t)

	assert.Equal(t, OutOfRange, f.ctrl.SwitchTemplate(3, false).Status)
	assert.Equal(t, OutOfRange, f.ctrl.SwitchTemplate(-1, false).Status)
	assert.Equal(t, OutOfRange, f.ctrl.SwitchTo("Greenhouse").Status)
	assert.Equal(t, 0, f.ctrl.Index())
}

func TestSwitchTemplate_RefundsCheaperTarget(t *testing.T) {
	f := newFixture(t, "h1", func(d *Dependencies) {
		d.Registry = registry.New([]core.Template{
			{Name: "Workshop", Price: core.Price{Resource: kits, Amount: 1200, Skill: "Engineer"}},
			{Name: "Depot", Price: core.Price{Resource: kits, Amount: 900, Skill: "Engineer"}},
		}, d.Host)
	}).start(t)

	res := f.ctrl.Next()

	require.Equal(t, Switched, res.Status)
	assert.InDelta(t, -60, res.Quote.Cost, 1e-9)
	assert.InDelta(t, 1060, f.platform.Amount(kits), 1e-9)
}

func TestSwitchTemplate_DeclinedWhenUnaffordable(t *testing.T) {
	f := newFixture(t, "h1").start(t)
	f.platform.Pools[kits].Amount = 0
	f.host.Inventory().Set("Ore", 5, 100)
	resources := f.host.Inventory().All()

	res := f.ctrl.SwitchTo("Lab")

	assert.Equal(t, Declined, res.Status)
	assert.Equal(t, gate.Insufficient, res.Quote.Reason)
	assert.InDelta(t, 150, res.Quote.Cost, 1e-9)
	assert.Equal(t, 0, f.ctrl.Index())
	assert.Equal(t, resources, f.host.Inventory().All())
	assert.Equal(t, []string{capability.TypeModuleInventory}, capTypes(f.ctrl))
	assert.Equal(t, []string{"declined"}, f.sink.outcomes())
}

func TestSwitchTemplate_DeclinedWithoutSkill(t *testing.T) {
	f := newFixture(t, "h1").start(t)
	f.platform.Crew = nil

	res := f.ctrl.SwitchTo("Lab")

	assert.Equal(t, Declined, res.Status)
	assert.Equal(t, gate.NoOperator, res.Quote.Reason)
	assert.Contains(t, res.Message, "Engineer")
}

func TestSwitchTemplate_ReentrantIsBusy(t *testing.T) {
	var ctrl *Controller
	var inner Result
	factory := capability.NewDefaultFactory()
	require.NoError(t, factory.Register("Reentrant", func() capability.Capability {
		return &reentrant{onStart: func() { inner = ctrl.Next() }}
	}))

	f := newFixture(t, "h1", func(d *Dependencies) {
		d.Capabilities = capability.NewManager(d.Host, factory, nil, capability.Options{})
		d.Registry = registry.New([]core.Template{
			{Name: "A"},
			{Name: "B", Capabilities: []core.CapabilityDescriptor{{Type: "Reentrant"}}},
		}, d.Host)
	})
	ctrl = f.ctrl
	f.start(t)

	res := f.ctrl.Next()

	assert.Equal(t, Switched, res.Status)
	assert.Equal(t, Busy, inner.Status)
	assert.Equal(t, "B", f.ctrl.CurrentName())
}

// reentrant calls back into the controller while starting
type reentrant struct {
	onStart func()
}

func (r *reentrant) TypeName() string               { return "Reentrant" }
func (r *reentrant) Attach(*host.Host) error        { return nil }
func (r *reentrant) Configure(map[string]any) error { return nil }
func (r *reentrant) Detach()                        {}
func (r *reentrant) Start(core.SimContext) error {
	r.onStart()
	return nil
}

func TestSaveLoad_FreshHostMatches(t *testing.T) {
	a := newFixture(t, "h1").start(t)
	require.Equal(t, Switched, a.ctrl.SwitchTo("Lab").Status)
	a.host.Inventory().Set("Parts", 12, 20)
	a.host.Inventory().Set("Samples", 3, 10)
	require.True(t, a.ctrl.Converters().SetEnabled("Analyzer", true))
	a.ctrl.Capabilities().Attached()[0].(*capability.Light).Toggle()

	saved := a.ctrl.Save()
	assert.Equal(t, "Lab", saved.TemplateName)
	assert.Equal(t, 1, saved.TemplateIndex)

	b := newFixture(t, "h1")
	b.ctrl.Load(saved)
	assert.Equal(t, saved.Resources, b.ctrl.Save().Resources, "save before settle keeps the loaded state")
	b.start(t)

	assert.Equal(t, a.host.Inventory().All(), b.host.Inventory().All())
	assert.Equal(t, a.ctrl.Converters().SaveState(), b.ctrl.Converters().SaveState())
	assert.True(t, b.ctrl.Capabilities().Attached()[0].(*capability.Light).On())
	assert.Equal(t, 1000.0, b.platform.Amount(kits), "settling is free")
}

func TestStart_ResolvesSavedTemplate(t *testing.T) {
	tests := []struct {
		name     string
		state    core.HostState
		expected string
		logged   string
	}{
		{name: "by name", state: core.HostState{TemplateName: "Battery", TemplateIndex: 0}, expected: "Battery"},
		{name: "unnamed save by index", state: core.HostState{TemplateIndex: 1}, expected: "Lab"},
		{name: "unnamed save out of range", state: core.HostState{TemplateIndex: 9}, expected: "Storage", logged: "mismatch"},
		{name: "removed name ignores index", state: core.HostState{TemplateName: "Workshop", TemplateIndex: 2}, expected: "Storage", logged: "mismatch"},
		{name: "fallback", state: core.HostState{TemplateName: "Gone", TemplateIndex: 7}, expected: "Storage", logged: "falling back"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "h1")
			f.ctrl.Load(tt.state)
			f.start(t)

			assert.Equal(t, tt.expected, f.ctrl.CurrentName())
			if tt.logged != "" {
				assert.Contains(t, f.logs.String(), tt.logged)
			}
		})
	}
}

func TestStart_MismatchKeepsOnlyKeptResources(t *testing.T) {
	f := newFixture(t, "h1", func(d *Dependencies) {
		d.Options.KeepResources = []string{"Food"}
	})
	f.ctrl.Load(core.HostState{
		TemplateName:  "Workshop",
		TemplateIndex: 2,
		Resources: []core.ResourceAmount{
			{Name: "Ore", Amount: 80, MaxAmount: 100},
			{Name: "Parts", Amount: 30, MaxAmount: 50},
			{Name: "Food", Amount: 12, MaxAmount: 40},
		},
	})
	f.start(t)

	require.Equal(t, "Storage", f.ctrl.CurrentName())
	ore, _ := f.host.Inventory().Get("Ore")
	parts, _ := f.host.Inventory().Get("Parts")
	food, ok := f.host.Inventory().Get("Food")
	assert.Equal(t, 0.0, ore.Amount)
	assert.Equal(t, 0.0, parts.Amount)
	require.True(t, ok)
	assert.Equal(t, 12.0, food.Amount)
}

func TestSwitch_AfterLoad(t *testing.T) {
	saved := core.HostState{
		HostID:        "h1",
		TemplateName:  "Storage",
		TemplateIndex: 0,
		Resources: []core.ResourceAmount{
			{Name: "Ore", Amount: 80, MaxAmount: 100},
			{Name: "Parts", Amount: 30, MaxAmount: 50},
		},
	}
	tests := []struct {
		name      string
		target    string
		index     int
		resources map[string]float64
	}{
		{name: "to battery", target: "Battery", index: 2, resources: map[string]float64{"ElectricCharge": 0}},
		{name: "to lab carries persistent parts", target: "Lab", index: 1, resources: map[string]float64{"Parts": 20, "Samples": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "h1")
			f.ctrl.Load(saved)

			res := f.ctrl.SwitchTo(tt.target)
			require.Equal(t, Switched, res.Status, res.Message)

			got := f.ctrl.Save()
			assert.Equal(t, tt.target, got.TemplateName)
			assert.Equal(t, tt.index, got.TemplateIndex)
			amounts := make(map[string]float64, len(got.Resources))
			for _, ra := range got.Resources {
				amounts[ra.Name] = ra.Amount
			}
			assert.Equal(t, tt.resources, amounts)

			f.start(t)
			assert.Equal(t, tt.target, f.ctrl.CurrentName(), "loaded state is not applied twice")
			assert.Equal(t, tt.index, f.ctrl.Index())
		})
	}
}

func TestSwitchTemplate_RefundLimitedByRoom(t *testing.T) {
	f := newFixture(t, "h1", func(d *Dependencies) {
		d.Registry = registry.New([]core.Template{
			{Name: "Workshop", Price: core.Price{Resource: kits, Amount: 1200, Skill: "Engineer"}},
			{Name: "Depot", Price: core.Price{Resource: kits, Amount: 900, Skill: "Engineer"}},
		}, d.Host)
	}).start(t)
	f.platform.Pools[kits].Capacity = 1030

	res := f.ctrl.Next()

	require.Equal(t, Switched, res.Status)
	assert.InDelta(t, -30, res.Quote.Cost, 1e-9)
	assert.InDelta(t, 1030, f.platform.Amount(kits), 1e-9)
	require.Len(t, f.sink.events, 1)
	assert.InDelta(t, -30, f.sink.events[0].Cost, 1e-9)
}

func TestStart_Canceled(t *testing.T) {
	f := newFixture(t, "h1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.ctrl.Start(ctx)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, f.ctrl.Settled())
}

func TestStart_EmptyRegistry(t *testing.T) {
	f := newFixture(t, "h1", func(d *Dependencies) {
		d.Registry = registry.New(nil, d.Host)
	}).start(t)

	assert.False(t, f.ctrl.Settled())
	assert.Equal(t, OutOfRange, f.ctrl.Next().Status)
	assert.Contains(t, f.logs.String(), "No templates available")
}

func TestSink_ErrorIsLogged(t *testing.T) {
	f := newFixture(t, "h1").start(t)
	f.sink.err = io.ErrClosedPipe

	res := f.ctrl.SwitchTo("Battery")

	assert.Equal(t, Switched, res.Status)
	assert.Contains(t, f.logs.String(), "Failed to record switch event")
}

func TestMultiSink(t *testing.T) {
	a, b := &memSink{err: io.EOF}, &memSink{}
	sink := MultiSink{a, nil, b}

	err := sink.RecordSwitchEvent(&core.SwitchEvent{Outcome: "switched"})

	assert.True(t, errors.Is(err, io.EOF))
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestDisplay(t *testing.T) {
	f := newFixture(t, "h1").start(t)

	d := f.ctrl.Display()

	assert.Equal(t, "Storage", d.Current)
	assert.Equal(t, "Lab", d.Next)
	assert.Equal(t, "Battery", d.Prev)
	assert.Equal(t, 3, d.Count)
	assert.InDelta(t, 150, d.NextQuote.Cost, 1e-9)
	assert.Len(t, d.Resources, 2)

	q, ok := f.ctrl.EstimateCost(2)
	require.True(t, ok)
	assert.InDelta(t, 100, q.Cost, 1e-9)
	_, ok = f.ctrl.EstimateCost(5)
	assert.False(t, ok)

	assert.Equal(t, map[string]float64{"ElectricCharge": 2}, f.ctrl.RequiredInputs(1))
	assert.Nil(t, f.ctrl.RequiredInputs(9))
	assert.Equal(t, 1000.0, f.platform.Amount(kits), "estimates have no side effects")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "switched", Switched.String())
	assert.Equal(t, "busy", Busy.String())
	assert.Equal(t, "unknown", Status(42).String())
	assert.Equal(t, "needs confirmation", NeedsConfirmation.String())
	assert.Equal(t, "unknown", DeployStatus(42).String())
}
