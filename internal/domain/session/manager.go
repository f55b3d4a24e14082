package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/replaykit/recorderd/internal/capture"
	"github.com/replaykit/recorderd/internal/domain/lock"
	"github.com/replaykit/recorderd/internal/domain/recovery"
	"github.com/replaykit/recorderd/internal/eventwindow"
	"github.com/replaykit/recorderd/internal/infrastructure/logging"
	"github.com/replaykit/recorderd/internal/infrastructure/monitoring"
	"github.com/replaykit/recorderd/internal/shared/types"
	"go.uber.org/zap"
)

var (
	// ErrNoSession indicates a control call with no live session.
	ErrNoSession = errors.New("no active recording session")

	// ErrSessionActive indicates Start while a session is still live.
	ErrSessionActive = errors.New("a recording session is already active")

	// ErrInvalidTestCase indicates Start with an unusable test case.
	ErrInvalidTestCase = errors.New("invalid test case")
)

// Store is the manager's view of the test case store. Begin is the single
// authority on name uniqueness; there is no separate existence pre-check.
type Store interface {
	Begin(tc types.TestCase) (Recording, error)
}

// Navigator brings the operator to the test's starting point before
// recording begins.
type Navigator interface {
	Go(ctx context.Context, p types.StartingPoint) error
}

// Deps bundles the collaborators a Manager orchestrates.
type Deps struct {
	Locker      *lock.Manager
	Store       Store
	NewListener func() InputListener
	Capturer    capture.Capturer // nil disables screenshot capture
	Window      eventwindow.Notifier
	Navigator   Navigator  // optional
	Report      ReportSink // optional
	Metrics     *monitoring.Metrics // optional
	Log         *logging.Logger

	StopTimeout    time.Duration
	CaptureWorkers int
}

// Manager owns at most one live recording session. Idle is modeled as the
// absence of a live session; the active session, if any, is reachable only
// through the manager that created it.
type Manager struct {
	deps Deps

	mu      sync.Mutex
	current *Session
}

// NewManager creates a session manager.
func NewManager(deps Deps) *Manager {
	if deps.Log == nil {
		deps.Log = logging.Nop()
	}
	return &Manager{deps: deps}
}

// Start transitions Idle -> Recording: acquires the single-instance lock,
// navigates to the starting point, allocates storage, starts the input
// listener, and begins consuming events. Any failure on the way releases
// everything already acquired.
func (m *Manager) Start(ctx context.Context, tc types.TestCase) (*Session, error) {
	if tc.Name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidTestCase)
	}
	if tc.StartingPoint == "" {
		tc.StartingPoint = types.PointNone
	}
	if !tc.StartingPoint.Valid() {
		return nil, fmt.Errorf("%w: unknown starting point %q", ErrInvalidTestCase, tc.StartingPoint)
	}
	if tc.CreatedAt.IsZero() {
		tc.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && !m.current.State().Terminal() {
		return nil, ErrSessionActive
	}

	handle, err := m.deps.Locker.Acquire()
	if err != nil {
		return nil, err
	}

	if m.deps.Navigator != nil {
		if err := m.deps.Navigator.Go(ctx, tc.StartingPoint); err != nil {
			handle.Release()
			return nil, fmt.Errorf("failed to reach starting point %s: %w", tc.StartingPoint, err)
		}
	}

	rec, err := m.deps.Store.Begin(tc)
	if err != nil {
		handle.Release()
		return nil, err
	}

	input := m.deps.NewListener()
	cleanup := recovery.New(m.deps.Log.Component("cleanup"), input.Stop, handle.Release)

	if err := input.Start(); err != nil {
		// ListenerStartFailure is fatal to the session: release the
		// partial lock and leave no storage residue behind.
		cleanup.Run()
		if abandonErr := rec.Abandon(); abandonErr != nil {
			m.deps.Log.Warn("failed to remove abandoned recording dir", zap.Error(abandonErr))
		}
		return nil, err
	}

	s := newSession(sessionParams{
		test:     tc,
		log:      m.deps.Log.Component("session"),
		metrics:  m.deps.Metrics,
		window:   m.deps.Window,
		input:    input,
		capturer: m.deps.Capturer,
		rec:      rec,
		report:   m.deps.Report,
		cleanup:  cleanup,
		timeout:  m.deps.StopTimeout,
		workers:  m.deps.CaptureWorkers,
	})

	m.deps.Window.State(tc.Name, types.StateRecording)
	if m.deps.Metrics != nil {
		m.deps.Metrics.SessionsStarted.Inc()
		m.deps.Metrics.SessionActive.Set(1)
	}

	go s.run()
	m.current = s

	m.deps.Log.Info("recording started",
		zap.String("test", tc.Name),
		zap.String("run_id", s.RunID()),
		zap.String("starting_point", string(tc.StartingPoint)))
	return s, nil
}

// Active returns the live session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.State().Terminal() {
		return nil
	}
	return m.current
}

// Stats reports the manager's view of the session state machine. With no
// live session the state is Idle.
func (m *Manager) Stats() types.SessionStats {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	if current == nil {
		return types.SessionStats{State: types.StateIdle}
	}
	return current.Stats()
}

// Pause forwards to the live session.
func (m *Manager) Pause() error {
	s := m.Active()
	if s == nil {
		return ErrNoSession
	}
	return s.Pause()
}

// Resume forwards to the live session.
func (m *Manager) Resume() error {
	s := m.Active()
	if s == nil {
		return ErrNoSession
	}
	return s.Resume()
}

// Stop ends the live session and commits its test case. Stopping an
// already-finalized session is a no-op, keeping the teardown trigger
// idempotent across the API and the hotkey path.
func (m *Manager) Stop(ctx context.Context) error {
	s := m.last()
	if s == nil {
		return ErrNoSession
	}
	return s.Stop(ctx)
}

// Abort ends the live session without committing. Idempotent like Stop.
func (m *Manager) Abort(ctx context.Context) error {
	s := m.last()
	if s == nil {
		return ErrNoSession
	}
	return s.Abort(ctx)
}

// last returns the most recent session, live or finalized.
func (m *Manager) last() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Shutdown aborts any live session. Called on process exit so the lock is
// released and listener threads are stopped no matter how the exit began.
func (m *Manager) Shutdown(ctx context.Context) {
	s := m.Active()
	if s == nil {
		return
	}
	if err := s.Abort(ctx); err != nil {
		m.deps.Log.Warn("shutdown abort failed", zap.Error(err))
	}
}
