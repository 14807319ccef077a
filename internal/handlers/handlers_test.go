package handlers

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/partswitch/internal/config"
	"github.com/OCAP2/partswitch/internal/dispatcher"
	"github.com/OCAP2/partswitch/internal/gate"
	"github.com/OCAP2/partswitch/internal/host"
	"github.com/OCAP2/partswitch/internal/host/hosttest"
	"github.com/OCAP2/partswitch/internal/registry"
	"github.com/OCAP2/partswitch/internal/storage"
	"github.com/OCAP2/partswitch/internal/storage/memory"
	"github.com/OCAP2/partswitch/internal/switcher"
	"github.com/OCAP2/partswitch/pkg/core"
)

const kits = "MaterialKits"

func testTemplates() []core.Template {
	return []core.Template{
		{
			Name:      "Storage",
			Resources: []core.ResourceDescriptor{{Name: "Ore", MaxAmount: 100}},
		},
		{
			Name:      "Lab",
			Resources: []core.ResourceDescriptor{{Name: "Samples", MaxAmount: 10}},
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

type fixture struct {
	svc      *Service
	disp     *dispatcher.Dispatcher
	backend  storage.Backend
	platform *hosttest.Platform
}

func newController(t *testing.T, fleet *switcher.Fleet, id string) *hosttest.Platform {
	t.Helper()
	p := hosttest.New().WithPool(kits, 1000, 0)
	p.Crew = []core.Occupant{{Name: "Bill", Skills: []string{"Engineer"}, Level: 2}}
	h := host.New(id, "Test "+id, p)

	c, err := switcher.New(switcher.Dependencies{
		Host:     h,
		Registry: registry.New(testTemplates(), h),
		Policy:   gate.DefaultPolicy(),
		Options:  switcher.DefaultOptions(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	fleet.Add(c)
	return p
}

func newFixture(t *testing.T, backend storage.Backend) *fixture {
	t.Helper()
	fleet := switcher.NewFleet()
	p := newController(t, fleet, "h1")

	svc := NewService(context.Background(), Dependencies{
		Fleet:   fleet,
		Storage: backend,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	d, err := dispatcher.New(dispatcher.Dependencies{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	svc.Register(d)
	t.Cleanup(d.Close)

	return &fixture{svc: svc, disp: d, backend: backend, platform: p}
}

func (f *fixture) call(t *testing.T, command string, args ...string) (any, error) {
	t.Helper()
	return f.disp.Dispatch(dispatcher.Event{Command: command, Args: args})
}

func TestRegister(t *testing.T) {
	f := newFixture(t, nil)

	for _, cmd := range []string{
		CmdSwitchNext, CmdSwitchPrev, CmdSwitchName, CmdSwitchIndex, CmdDeploy,
		CmdQuote, CmdStatus, CmdWorkerToggle, CmdSave, CmdLoad, CmdTick, CmdHosts,
	} {
		assert.True(t, f.disp.HasHandler(cmd), cmd)
	}
}

func TestSwitchNext(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.call(t, CmdSwitchNext, "h1")
	require.NoError(t, err)

	res := got.(SwitchResponse)
	assert.Equal(t, "switched", res.Status)
	assert.Equal(t, "Storage", res.From)
	assert.Equal(t, "Lab", res.To)
	assert.Equal(t, 150.0, res.Cost)
	assert.Equal(t, 850.0, f.platform.Amount(kits))
}

func TestSwitchPrev(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.call(t, CmdSwitchPrev, "h1")
	require.NoError(t, err)
	assert.Equal(t, "Battery", got.(SwitchResponse).To)
}

func TestSwitchName_QuotedArgument(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.call(t, CmdSwitchName, `"h1"`, `"Battery"`)
	require.NoError(t, err)
	assert.Equal(t, "switched", got.(SwitchResponse).Status)
}

func TestSwitchIndex(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		status string
	}{
		{"switch", []string{"h1", "2"}, "switched"},
		{"same template", []string{"h1", "0"}, "no change"},
		{"out of range", []string{"h1", "9"}, "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			got, err := f.call(t, CmdSwitchIndex, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.status, got.(SwitchResponse).Status)
		})
	}
}

func TestSwitchIndex_Force(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.call(t, CmdSwitchIndex, "h1", "0", "true")
	require.NoError(t, err)
	assert.Equal(t, "switched", got.(SwitchResponse).Status)
}

func TestSwitch_Declined(t *testing.T) {
	f := newFixture(t, nil)
	f.platform.Crew = nil

	got, err := f.call(t, CmdSwitchName, "h1", "Lab")
	require.NoError(t, err)

	res := got.(SwitchResponse)
	assert.Equal(t, "declined", res.Status)
	assert.Contains(t, res.Message, "Engineer")
	assert.Equal(t, 1000.0, f.platform.Amount(kits))
}

func TestArgumentErrors(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.call(t, CmdSwitchNext, "nope")
	assert.ErrorIs(t, err, ErrUnknownHost)

	_, err = f.call(t, CmdSwitchNext)
	assert.ErrorIs(t, err, dispatcher.ErrMissingArgs)

	_, err = f.call(t, CmdSwitchName, "h1")
	assert.ErrorIs(t, err, dispatcher.ErrMissingArgs)

	_, err = f.call(t, CmdSwitchIndex, "h1", "abc")
	assert.Error(t, err)

	_, err = f.call(t, CmdDeploy, "h1", "maybe")
	assert.Error(t, err)
}

func TestDeploy_NotInflatable(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.call(t, CmdDeploy, "h1", "false")
	require.NoError(t, err)
	assert.Equal(t, "unsupported", got.(DeployResponse).Status)
}

func TestQuote(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.call(t, CmdQuote, "h1")
	require.NoError(t, err)
	q := got.(QuoteResponse)
	assert.Equal(t, "Lab", q.Template)
	assert.True(t, q.Allowed)
	assert.Equal(t, 150.0, q.Cost)
	assert.Equal(t, "Bill", q.Operator)
	assert.Equal(t, map[string]float64{"ElectricCharge": 2}, q.Inputs)

	got, err = f.call(t, CmdQuote, "h1", "2")
	require.NoError(t, err)
	assert.Equal(t, "Battery", got.(QuoteResponse).Template)

	_, err = f.call(t, CmdQuote, "h1", "7")
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.call(t, CmdStatus, "h1")
	require.NoError(t, err)

	d := got.(switcher.Display)
	assert.Equal(t, "Storage", d.Current)
	assert.Equal(t, "Lab", d.Next)
	assert.Equal(t, "Battery", d.Prev)
	assert.Equal(t, 3, d.Count)
}

func TestWorkerToggle(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.call(t, CmdSwitchName, "h1", "Lab")
	require.NoError(t, err)

	c, _ := f.svc.Fleet().Get("h1")
	w, ok := c.Converters().Worker("Analyzer")
	require.True(t, ok)
	before := w.Enabled()

	got, err := f.call(t, CmdWorkerToggle, "h1", "Analyzer")
	require.NoError(t, err)
	assert.Equal(t, !before, got)
	assert.Equal(t, !before, w.Enabled())

	got, err = f.call(t, CmdWorkerToggle, "h1", "Analyzer", "true")
	require.NoError(t, err)
	assert.Equal(t, true, got)

	_, err = f.call(t, CmdWorkerToggle, "h1", "Furnace")
	assert.ErrorIs(t, err, ErrUnknownWorker)
}

func TestSaveLoad(t *testing.T) {
	backend := memory.New(config.MemoryConfig{})
	require.NoError(t, backend.Init())
	f := newFixture(t, backend)

	_, err := f.call(t, CmdSwitchName, "h1", "Battery")
	require.NoError(t, err)

	got, err := f.call(t, CmdSave)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	stored, err := backend.LoadHostState("h1")
	require.NoError(t, err)
	assert.Equal(t, "Battery", stored.TemplateName)

	// a fresh host with the same ID picks the stored template up
	fleet := switcher.NewFleet()
	newController(t, fleet, "h1")
	svc := NewService(context.Background(), Dependencies{Fleet: fleet, Storage: backend})

	name, err := svc.Load([]string{"h1"})
	require.NoError(t, err)
	assert.Equal(t, "Battery", name)
}

func TestSave_SingleHost(t *testing.T) {
	backend := memory.New(config.MemoryConfig{})
	f := newFixture(t, backend)

	got, err := f.call(t, CmdSave, "h1")
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	_, err = f.call(t, CmdSave, "h9")
	assert.ErrorIs(t, err, ErrUnknownHost)
}

func TestLoad_NoStoredState(t *testing.T) {
	backend := memory.New(config.MemoryConfig{})
	f := newFixture(t, backend)

	got, err := f.call(t, CmdLoad, "h1")
	require.NoError(t, err)
	assert.Equal(t, "Storage", got)
}

func TestSaveLoad_NoStorage(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.call(t, CmdSave)
	assert.ErrorIs(t, err, ErrNoStorage)
	_, err = f.call(t, CmdLoad, "h1")
	assert.ErrorIs(t, err, ErrNoStorage)
}

func TestHostsAndTick(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.call(t, CmdHosts)
	require.NoError(t, err)
	assert.Equal(t, []string{"h1"}, got)

	_, err = f.call(t, CmdTick, "h1", "0.5")
	require.NoError(t, err)
}
