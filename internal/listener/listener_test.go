package listener

import (
	"testing"
	"time"

	"github.com/replaykit/recorderd/internal/infrastructure/logging"
	"github.com/replaykit/recorderd/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource feeds scripted raw events and honors the bounded-close
// contract: Close terminates the stream even when no input arrives.
type fakeSource struct {
	ch     chan RawEvent
	closed chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		ch:     make(chan RawEvent, 128),
		closed: make(chan struct{}),
	}
}

func (f *fakeSource) Open() (<-chan RawEvent, error) {
	out := make(chan RawEvent)
	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-f.ch:
				if !ok {
					return
				}
				out <- ev
			case <-f.closed:
				return
			}
		}
	}()
	return out, nil
}

func (f *fakeSource) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func (f *fakeSource) emit(ev RawEvent) { f.ch <- ev }

func testConfig() Config {
	return Config{
		MoveThresholdPx: 10,
		Buffer:          64,
		StopTimeout:     2 * time.Second,
		Hotkeys: map[string]types.Control{
			"f7": types.ControlPause,
			"f8": types.ControlResume,
			"f9": types.ControlStop,
		},
	}
}

func collect(t *testing.T, l *Listener, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-l.Events():
			require.True(t, ok, "event channel closed early")
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out; got %d of %d events", len(out), n)
		}
	}
	return out
}

func TestMoveBelowThresholdIsCoalesced(t *testing.T) {
	src := newFakeSource()
	var dropped int
	l := New(src, testConfig(), logging.Nop())
	l.OnCoalesced(func() { dropped++ })
	require.NoError(t, l.Start())
	defer l.Stop()

	src.emit(RawEvent{Kind: RawMove, X: 0, Y: 0})    // first move always recorded
	src.emit(RawEvent{Kind: RawMove, X: 3, Y: 4})    // displacement 5 < 10: dropped
	src.emit(RawEvent{Kind: RawMove, X: 6, Y: 8})    // displacement 10 from (0,0): recorded
	src.emit(RawEvent{Kind: RawMove, X: 100, Y: 100}) // far: recorded

	evs := collect(t, l, 3)
	assert.Equal(t, &types.Point{X: 0, Y: 0}, evs[0].Input.Pos)
	assert.Equal(t, &types.Point{X: 6, Y: 8}, evs[1].Input.Pos)
	assert.Equal(t, &types.Point{X: 100, Y: 100}, evs[2].Input.Pos)
}

func TestClicksAndScrollsAlwaysPass(t *testing.T) {
	src := newFakeSource()
	l := New(src, testConfig(), logging.Nop())
	require.NoError(t, l.Start())
	defer l.Stop()

	src.emit(RawEvent{Kind: RawClick, X: 120, Y: 340})
	src.emit(RawEvent{Kind: RawClick, X: 121, Y: 341}) // nearby click still recorded
	src.emit(RawEvent{Kind: RawScroll, X: 121, Y: 341})

	evs := collect(t, l, 3)
	assert.Equal(t, types.KindClick, evs[0].Input.Kind)
	assert.Equal(t, types.KindClick, evs[1].Input.Kind)
	assert.Equal(t, types.KindScroll, evs[2].Input.Kind)
}

func TestHotkeysBecomeControlsNotActions(t *testing.T) {
	src := newFakeSource()
	l := New(src, testConfig(), logging.Nop())
	require.NoError(t, l.Start())
	defer l.Stop()

	src.emit(RawEvent{Kind: RawKeyPress, Key: "F7"}) // case-insensitive match
	src.emit(RawEvent{Kind: RawKeyPress, Key: "enter"})
	src.emit(RawEvent{Kind: RawKeyPress, Key: "f9"})

	evs := collect(t, l, 3)
	assert.Equal(t, types.ControlPause, evs[0].Control)
	assert.Nil(t, evs[0].Input)

	require.NotNil(t, evs[1].Input)
	assert.Equal(t, types.KindKeyPress, evs[1].Input.Kind)
	assert.Equal(t, "enter", evs[1].Input.Key)

	assert.Equal(t, types.ControlStop, evs[2].Control)
}

func TestUppercaseHotkeyBindingsMatch(t *testing.T) {
	src := newFakeSource()
	cfg := testConfig()
	cfg.Hotkeys = map[string]types.Control{"F9": types.ControlStop}
	l := New(src, cfg, logging.Nop())
	require.NoError(t, l.Start())
	defer l.Stop()

	src.emit(RawEvent{Kind: RawKeyPress, Key: "f9"})
	src.emit(RawEvent{Kind: RawKeyPress, Key: "F9"})

	evs := collect(t, l, 2)
	assert.Equal(t, types.ControlStop, evs[0].Control)
	assert.Equal(t, types.ControlStop, evs[1].Control)
}

func TestEventsKeepHardwareOrder(t *testing.T) {
	src := newFakeSource()
	l := New(src, testConfig(), logging.Nop())
	require.NoError(t, l.Start())
	defer l.Stop()

	src.emit(RawEvent{Kind: RawClick, X: 1, Y: 1})
	src.emit(RawEvent{Kind: RawKeyPress, Key: "a"})
	src.emit(RawEvent{Kind: RawClick, X: 2, Y: 2})

	evs := collect(t, l, 3)
	assert.Equal(t, types.KindClick, evs[0].Input.Kind)
	assert.Equal(t, types.KindKeyPress, evs[1].Input.Kind)
	assert.Equal(t, types.KindClick, evs[2].Input.Kind)
	assert.Equal(t, 2, evs[2].Input.Pos.X)
}

func TestStopIsBoundedWithoutFurtherInput(t *testing.T) {
	src := newFakeSource()
	l := New(src, testConfig(), logging.Nop())
	require.NoError(t, l.Start())

	start := time.Now()
	require.NoError(t, l.Stop())
	assert.Less(t, time.Since(start), time.Second, "stop must not wait for more input")

	// Channel closed: no event is delivered after Stop returned.
	_, ok := <-l.Events()
	assert.False(t, ok)
}

func TestStopIsIdempotent(t *testing.T) {
	src := newFakeSource()
	l := New(src, testConfig(), logging.Nop())
	require.NoError(t, l.Start())

	require.NoError(t, l.Stop())
	require.NoError(t, l.Stop())
}

func TestStopBeforeStartIsNoOp(t *testing.T) {
	l := New(newFakeSource(), testConfig(), logging.Nop())
	assert.NoError(t, l.Stop())
}

type failingSource struct{}

func (failingSource) Open() (<-chan RawEvent, error) {
	return nil, assert.AnError
}
func (failingSource) Close() error { return nil }

func TestStartFailureWrapsErrStart(t *testing.T) {
	l := New(failingSource{}, testConfig(), logging.Nop())
	err := l.Start()
	assert.ErrorIs(t, err, ErrStart)

	// The event channel is closed so a consumer loop exits immediately.
	_, ok := <-l.Events()
	assert.False(t, ok)
}
