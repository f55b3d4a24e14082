// Package lock implements the process-wide single-instance guard.
//
// At most one recording session may be active per workstation. The guard is
// a marker file containing the owning PID; a marker whose owner is no
// longer alive is stale and gets cleared automatically on the next acquire.
// Absence of the marker means no listener threads are active.
package lock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// ErrAlreadyLocked indicates another live recording session holds the lock.
var ErrAlreadyLocked = errors.New("another recording session is already active")

// Manager guards the lock marker file. Marker creation and deletion are the
// only filesystem mutations this component performs.
type Manager struct {
	path  string
	alive func(pid int) bool

	// onStaleCleared is invoked whenever Acquire clears a marker whose
	// owner is dead or whose content is unreadable.
	onStaleCleared func()
}

// NewManager creates a lock manager for the given marker path.
func NewManager(path string) *Manager {
	return &Manager{path: path, alive: processAlive}
}

// NewManagerWithLiveness creates a manager with a custom liveness probe.
// Used in tests.
func NewManagerWithLiveness(path string, alive func(pid int) bool) *Manager {
	return &Manager{path: path, alive: alive}
}

// OnStaleCleared registers a hook invoked each time a stale marker is
// cleared during Acquire.
func (m *Manager) OnStaleCleared(fn func()) {
	m.onStaleCleared = fn
}

// Path returns the marker file location.
func (m *Manager) Path() string {
	return m.path
}

// Handle represents lock ownership. Release is idempotent and safe to call
// concurrently; normal stop and the exit handler may race to perform it.
type Handle struct {
	manager  *Manager
	pid      int
	released atomic.Bool
}

// Acquire creates the lock marker. If a marker already exists and its owner
// is still alive, it fails with ErrAlreadyLocked; a stale marker is cleared
// and acquisition retried exactly once.
func (m *Manager) Acquire() (*Handle, error) {
	handle, err := m.tryAcquire()
	if err == nil {
		return handle, nil
	}
	if !errors.Is(err, ErrAlreadyLocked) {
		return nil, err
	}

	pid, readErr := m.ownerPID()
	if readErr != nil {
		// Unreadable marker: treat as stale rather than wedging the
		// operator behind a corrupt file.
		if rmErr := os.Remove(m.path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("failed to clear unreadable lock marker: %w", rmErr)
		}
		m.staleCleared()
		return m.tryAcquire()
	}

	if m.alive(pid) {
		return nil, fmt.Errorf("%w (pid %d, marker %s)", ErrAlreadyLocked, pid, m.path)
	}

	// Stale: owner is gone. Clear and retry once.
	if rmErr := os.Remove(m.path); rmErr != nil && !os.IsNotExist(rmErr) {
		return nil, fmt.Errorf("failed to clear stale lock marker: %w", rmErr)
	}
	m.staleCleared()
	return m.tryAcquire()
}

func (m *Manager) staleCleared() {
	if m.onStaleCleared != nil {
		m.onStaleCleared()
	}
}

// IsStale reports whether a marker exists whose owning process is dead.
func (m *Manager) IsStale() bool {
	pid, err := m.ownerPID()
	if err != nil {
		return false
	}
	return !m.alive(pid)
}

func (m *Manager) tryAcquire() (*Handle, error) {
	f, err := os.OpenFile(m.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrAlreadyLocked
		}
		return nil, fmt.Errorf("failed to create lock marker: %w", err)
	}

	pid := os.Getpid()
	if _, err := fmt.Fprintf(f, "%d\n", pid); err != nil {
		f.Close()
		os.Remove(m.path)
		return nil, fmt.Errorf("failed to write lock marker: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(m.path)
		return nil, fmt.Errorf("failed to write lock marker: %w", err)
	}

	return &Handle{manager: m, pid: pid}, nil
}

func (m *Manager) ownerPID() (int, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("lock marker %s holds no PID: %w", m.path, err)
	}
	return pid, nil
}

// Release removes the lock marker. It is a no-op when called twice, when
// the marker is already gone, or when the marker was taken over by another
// process.
func (h *Handle) Release() error {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return nil
	}

	pid, err := h.manager.ownerPID()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if pid != h.pid {
		// Someone else owns the marker now; leave it alone.
		return nil
	}
	if err := os.Remove(h.manager.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock marker: %w", err)
	}
	return nil
}
