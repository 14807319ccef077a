package dispatcher

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer guards a bytes.Buffer shared with worker goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d, err := New(Dependencies{Logger: logger})
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d, out
}

func noop(Event) (any, error) { return nil, nil }

func TestNew_Defaults(t *testing.T) {
	d, err := New(Dependencies{})
	require.NoError(t, err)
	defer d.Close()
	assert.NotNil(t, d.log)
	assert.Empty(t, d.Commands())
}

func TestDispatch_Sync(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register(":SWITCH:NEXT:", func(e Event) (any, error) {
		got = e
		return "Lab", nil
	})

	result, err := d.Dispatch(Event{Command: ":SWITCH:NEXT:", Args: []string{"h1"}})

	require.NoError(t, err)
	assert.Equal(t, "Lab", result)
	assert.Equal(t, []string{"h1"}, got.Args)
	assert.False(t, got.Timestamp.IsZero(), "timestamp is stamped")
}

func TestDispatch_KeepsTimestamp(t *testing.T) {
	d, _ := newTestDispatcher(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var seen time.Time
	d.Register(":STATUS:", func(e Event) (any, error) {
		seen = e.Timestamp
		return nil, nil
	})
	_, err := d.Dispatch(Event{Command: ":STATUS:", Timestamp: at})

	require.NoError(t, err)
	assert.Equal(t, at, seen)
}

func TestDispatch_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Event{Command: ":SWITCH:UP:"})

	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.ErrorContains(t, err, ":SWITCH:UP:")
}

func TestDispatch_MinArgs(t *testing.T) {
	d, _ := newTestDispatcher(t)
	var calls atomic.Int32
	d.Register(":SWITCH:NAME:", func(Event) (any, error) {
		calls.Add(1)
		return nil, nil
	}, MinArgs(2))

	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"none", nil, true},
		{"host only", []string{"h1"}, true},
		{"host and name", []string{"h1", "Lab"}, false},
		{"extra", []string{"h1", "Lab", "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Dispatch(Event{Command: ":SWITCH:NAME:", Args: tt.args})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingArgs)
				return
			}
			assert.NoError(t, err)
		})
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestDispatch_Buffered(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)
	d.Register(":SAVE:", func(Event) (any, error) {
		processed.Add(1)
		wg.Done()
		return nil, nil
	}, Buffered(8))

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(Event{Command: ":SAVE:"})
		require.NoError(t, err)
		assert.Equal(t, Queued, result)
	}
	wg.Wait()
	assert.Equal(t, int32(3), processed.Load())
}

func TestDispatch_BufferedFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 1)
	block := make(chan struct{})
	d.Register(":SAVE:", func(Event) (any, error) {
		started <- struct{}{}
		<-block
		return nil, nil
	}, Buffered(1))
	defer close(block)

	_, err := d.Dispatch(Event{Command: ":SAVE:"})
	require.NoError(t, err)
	<-started // the worker holds the first event

	_, err = d.Dispatch(Event{Command: ":SAVE:"})
	require.NoError(t, err)

	_, err = d.Dispatch(Event{Command: ":SAVE:"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestDispatch_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 1)
	block := make(chan struct{})
	d.Register(":SAVE:", func(Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(1), Blocking())

	_, _ = d.Dispatch(Event{Command: ":SAVE:"})
	<-started
	_, _ = d.Dispatch(Event{Command: ":SAVE:"})

	done := make(chan struct{})
	go func() {
		_, _ = d.Dispatch(Event{Command: ":SAVE:"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("dispatch should wait for room in the queue")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch did not resume")
	}
}

func TestDispatch_Logged(t *testing.T) {
	d, out := newTestDispatcher(t)

	d.Register(":DEPLOY:", func(Event) (any, error) { return "deployed", nil }, Logged())
	d.Register(":LOAD:", func(Event) (any, error) { return nil, errors.New("no stored state") }, Logged())

	_, err := d.Dispatch(Event{Command: ":DEPLOY:", Args: []string{"h1", "true"}})
	require.NoError(t, err)
	_, err = d.Dispatch(Event{Command: ":LOAD:"})
	require.Error(t, err)

	logs := out.String()
	assert.Contains(t, logs, "Handling command")
	assert.Contains(t, logs, "Command complete")
	assert.Contains(t, logs, "args=2")
	assert.Contains(t, logs, `error="no stored state"`)
}

func TestDispatch_UnloggedQuiet(t *testing.T) {
	d, out := newTestDispatcher(t)
	d.Register(":STATUS:", noop)

	_, err := d.Dispatch(Event{Command: ":STATUS:"})

	require.NoError(t, err)
	assert.Empty(t, out.String())
}

func TestRegister_Replaces(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(":QUOTE:", func(Event) (any, error) { return 1, nil })
	d.Register(":QUOTE:", func(Event) (any, error) { return 2, nil })

	result, err := d.Dispatch(Event{Command: ":QUOTE:"})
	require.NoError(t, err)
	assert.Equal(t, 2, result)
}

func TestRegister_ReplacesBufferedRoute(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var first, second atomic.Int32
	d.Register(":SAVE:", func(Event) (any, error) { first.Add(1); return nil, nil }, Buffered(4))
	_, err := d.Dispatch(Event{Command: ":SAVE:"})
	require.NoError(t, err)

	d.Register(":SAVE:", func(Event) (any, error) { second.Add(1); return nil, nil }, Buffered(4))
	_, err = d.Dispatch(Event{Command: ":SAVE:"})
	require.NoError(t, err)

	d.Close()
	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestCommands(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(":SWITCH:NEXT:", noop)
	d.Register(":DEPLOY:", noop)
	d.Register(":SAVE:", noop, Buffered(4))

	assert.Equal(t, []string{":DEPLOY:", ":SAVE:", ":SWITCH:NEXT:"}, d.Commands())
	assert.True(t, d.HasHandler(":DEPLOY:"))
	assert.False(t, d.HasHandler(":SWITCH:PREV:"))
}

func TestClose_DrainsQueue(t *testing.T) {
	d, out := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register(":SAVE:", func(e Event) (any, error) {
		processed.Add(1)
		if e.Args[0] == "bad" {
			return nil, errors.New("write failed")
		}
		return nil, nil
	}, Buffered(10))

	_, _ = d.Dispatch(Event{Command: ":SAVE:", Args: []string{"ok"}})
	_, _ = d.Dispatch(Event{Command: ":SAVE:", Args: []string{"bad"}})
	d.Close()

	assert.Equal(t, int32(2), processed.Load())
	assert.Equal(t, 1, strings.Count(out.String(), "Queued command failed"))

	_, err := d.Dispatch(Event{Command: ":SAVE:", Args: []string{"ok"}})
	assert.ErrorIs(t, err, ErrClosed)

	// second close is a no-op
	d.Close()
}
