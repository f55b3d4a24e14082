// Package listener turns global mouse and keyboard hardware events into
// normalized session input.
//
// One pump goroutine owns the hook's event stream. It coalesces
// high-frequency pointer moves (a move is only emitted once displacement
// from the last recorded move reaches a configured pixel threshold), maps
// reserved hotkeys to session control signals, and forwards everything else
// through a bounded ordered channel consumed by the session's single-reader
// loop.
package listener

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/replaykit/recorderd/internal/infrastructure/logging"
	"github.com/replaykit/recorderd/internal/shared/types"
	"go.uber.org/zap"
)

var (
	// ErrStart indicates the OS-level hook could not be installed.
	ErrStart = errors.New("failed to install global input hook")

	// ErrStopTimeout indicates the pump did not exit within the bounded
	// join window. Teardown proceeds regardless.
	ErrStopTimeout = errors.New("listener did not stop within timeout")
)

// Event is the envelope delivered to the session: either a control signal
// mapped from a hotkey or a normalized input action, never both.
type Event struct {
	Control types.Control
	Input   *types.InputEvent
}

// Config tunes normalization.
type Config struct {
	// MoveThresholdPx is the minimum displacement between recorded moves.
	MoveThresholdPx int

	// Buffer bounds the ordered channel to the session.
	Buffer int

	// StopTimeout bounds how long Stop waits for the pump to exit.
	StopTimeout time.Duration

	// Hotkeys maps key names to session controls. Matching is
	// case-insensitive.
	Hotkeys map[string]types.Control
}

// Listener normalizes raw hook events for one recording session.
type Listener struct {
	src Source
	cfg Config
	log *logging.Logger

	out  chan Event
	done chan struct{}

	started atomic.Bool
	stopped atomic.Bool

	// onCoalesced is invoked for every move dropped by the threshold.
	onCoalesced func()
}

// New creates a listener over the given source.
func New(src Source, cfg Config, log *logging.Logger) *Listener {
	if log == nil {
		log = logging.Nop()
	}
	if cfg.Buffer < 1 {
		cfg.Buffer = 1
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 3 * time.Second
	}
	if len(cfg.Hotkeys) > 0 {
		// Pressed keys are matched lowercase; fold configured names the
		// same way so "F9" and "f9" bind identically.
		hotkeys := make(map[string]types.Control, len(cfg.Hotkeys))
		for key, control := range cfg.Hotkeys {
			hotkeys[strings.ToLower(key)] = control
		}
		cfg.Hotkeys = hotkeys
	}
	return &Listener{
		src:  src,
		cfg:  cfg,
		log:  log,
		out:  make(chan Event, cfg.Buffer),
		done: make(chan struct{}),
	}
}

// OnCoalesced registers a hook invoked whenever a move event is dropped.
func (l *Listener) OnCoalesced(fn func()) {
	l.onCoalesced = fn
}

// Events returns the ordered event channel. It is closed once the pump has
// exited; no event is delivered after Stop has returned.
func (l *Listener) Events() <-chan Event {
	return l.out
}

// Start installs the hook and runs the pump goroutine.
func (l *Listener) Start() error {
	if !l.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: listener already started", ErrStart)
	}

	raw, err := l.src.Open()
	if err != nil {
		l.stopped.Store(true)
		close(l.out)
		close(l.done)
		return fmt.Errorf("%w: %v", ErrStart, err)
	}

	go l.pump(raw)
	l.log.Info("input listener started",
		zap.Int("move_threshold_px", l.cfg.MoveThresholdPx),
		zap.Int("buffer", l.cfg.Buffer))
	return nil
}

// Stop closes the hook and waits for the pump to exit, bounded by the
// configured timeout. Idempotent. It never relies on further input to
// notice the stop request: closing the source terminates the stream.
func (l *Listener) Stop() error {
	if !l.started.Load() {
		return nil
	}
	if !l.stopped.CompareAndSwap(false, true) {
		// Second caller still waits for the pump, bounded.
		return l.join()
	}

	if err := l.src.Close(); err != nil {
		l.log.Warn("input hook close failed", zap.Error(err))
	}
	return l.join()
}

func (l *Listener) join() error {
	select {
	case <-l.done:
		return nil
	case <-time.After(l.cfg.StopTimeout):
		l.log.Warn("listener pump did not exit in time, proceeding with teardown",
			zap.Duration("timeout", l.cfg.StopTimeout))
		return ErrStopTimeout
	}
}

func (l *Listener) pump(raw <-chan RawEvent) {
	defer close(l.done)
	defer close(l.out)

	var lastMove *types.Point
	for ev := range raw {
		when := ev.When
		if when.IsZero() {
			when = time.Now()
		}

		switch ev.Kind {
		case RawKeyPress:
			key := strings.ToLower(ev.Key)
			if control, ok := l.cfg.Hotkeys[key]; ok {
				l.out <- Event{Control: control}
				continue
			}
			l.out <- Event{Input: &types.InputEvent{
				Kind: types.KindKeyPress,
				Key:  ev.Key,
				Time: when,
			}}

		case RawMove:
			pt := types.Point{X: ev.X, Y: ev.Y}
			if lastMove != nil && displacement(*lastMove, pt) < float64(l.cfg.MoveThresholdPx) {
				if l.onCoalesced != nil {
					l.onCoalesced()
				}
				continue
			}
			lastMove = &pt
			l.out <- Event{Input: &types.InputEvent{
				Kind: types.KindMove,
				Pos:  &pt,
				Time: when,
			}}

		case RawClick:
			pt := types.Point{X: ev.X, Y: ev.Y}
			l.out <- Event{Input: &types.InputEvent{
				Kind: types.KindClick,
				Pos:  &pt,
				Time: when,
			}}

		case RawScroll:
			pt := types.Point{X: ev.X, Y: ev.Y}
			l.out <- Event{Input: &types.InputEvent{
				Kind: types.KindScroll,
				Pos:  &pt,
				Time: when,
			}}
		}
	}
}

func displacement(a, b types.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}
