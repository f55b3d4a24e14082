// Package session owns the recording session state machine.
//
// A session owns the ordered action log for one test case. Its state and
// log are mutated only from the single-reader loop consuming the listener's
// bounded channel, plus control calls serialized through the session mutex.
// Screenshot capture is the one legitimately concurrent activity: grabs are
// dispatched fire-and-forget so a slow capture never stalls the input pump.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/replaykit/recorderd/internal/capture"
	"github.com/replaykit/recorderd/internal/domain/recovery"
	"github.com/replaykit/recorderd/internal/eventwindow"
	"github.com/replaykit/recorderd/internal/infrastructure/logging"
	"github.com/replaykit/recorderd/internal/infrastructure/monitoring"
	"github.com/replaykit/recorderd/internal/listener"
	"github.com/replaykit/recorderd/internal/shared/id"
	"github.com/replaykit/recorderd/internal/shared/paths"
	"github.com/replaykit/recorderd/internal/shared/types"
	"go.uber.org/zap"
)

var (
	// ErrInvalidTransition indicates a control call that is not legal in
	// the session's current state.
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrPersist indicates the final persist failed. Teardown (listener
	// stopped, lock released) has completed by the time it is returned.
	ErrPersist = errors.New("failed to persist test case")
)

// InputListener is the session's view of the input listener.
type InputListener interface {
	Start() error
	Stop() error
	Events() <-chan listener.Event
}

// Recording is the persistence handle for one run.
type Recording interface {
	ScreenshotPath(seq int) string
	Commit(records []types.ActionRecord) error
	Discard(records []types.ActionRecord) error
	Abandon() error
}

// ReportSink consumes a finalized test case after a successful stop.
type ReportSink interface {
	Submit(ctx context.Context, tc types.TestCase, records []types.ActionRecord) error
}

// Session records one test case. Created by the Manager in Recording state;
// Stopped and Aborted are terminal.
type Session struct {
	runID    string
	test     types.TestCase
	log      *logging.Logger
	metrics  *monitoring.Metrics
	window   eventwindow.Notifier
	input    InputListener
	capturer capture.Capturer
	rec      Recording
	report   ReportSink
	cleanup  *recovery.Cleanup
	timeout  time.Duration

	mu             sync.Mutex
	state          types.SessionState
	records        []types.ActionRecord
	capturesFailed int
	startedAt      time.Time
	lastActionAt   time.Time

	captures sync.WaitGroup
	capGate  chan struct{}
	loopDone chan struct{}
	final    chan struct{}
}

type sessionParams struct {
	test     types.TestCase
	log      *logging.Logger
	metrics  *monitoring.Metrics
	window   eventwindow.Notifier
	input    InputListener
	capturer capture.Capturer
	rec      Recording
	report   ReportSink
	cleanup  *recovery.Cleanup
	timeout  time.Duration
	workers  int
}

func newSession(p sessionParams) *Session {
	if p.workers < 1 {
		p.workers = 1
	}
	if p.timeout <= 0 {
		p.timeout = 3 * time.Second
	}
	runID := string(id.NewRunID())
	return &Session{
		runID:    runID,
		test:     p.test,
		log:      p.log.WithRun(runID),
		metrics:  p.metrics,
		window:   p.window,
		input:    p.input,
		capturer: p.capturer,
		rec:      p.rec,
		report:   p.report,
		cleanup:  p.cleanup,
		timeout:  p.timeout,
		state:    types.StateRecording,
		records:  make([]types.ActionRecord, 0, 64),
		capGate:  make(chan struct{}, p.workers),
		loopDone: make(chan struct{}),
		final:    make(chan struct{}),
		startedAt: time.Now(),
	}
}

// RunID returns the unique identifier of this recording run.
func (s *Session) RunID() string { return s.runID }

// Done is closed once the session has fully finalized.
func (s *Session) Done() <-chan struct{} { return s.final }

// Test returns the test case being recorded.
func (s *Session) Test() types.TestCase { return s.test }

// State returns the current session state.
func (s *Session) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of session statistics.
func (s *Session) Stats() types.SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := types.SessionStats{
		State:          s.state,
		Test:           s.test.Name,
		RunID:          s.runID,
		ActionsTotal:   len(s.records),
		CapturesFailed: s.capturesFailed,
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		stats.StartedAt = &started
	}
	if !s.lastActionAt.IsZero() {
		last := s.lastActionAt
		stats.LastActionAt = &last
	}
	return stats
}

// Snapshot returns the test case and a copy of the action log.
func (s *Session) Snapshot() (types.TestCase, []types.ActionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ActionRecord, len(s.records))
	copy(out, s.records)
	return s.test, out
}

// run is the single-reader loop over the listener's ordered channel. It is
// the only goroutine that appends to the action log, which keeps sequence
// indexes gapless without further coordination.
func (s *Session) run() {
	defer close(s.loopDone)
	for ev := range s.input.Events() {
		if ev.Control != types.ControlNone {
			s.handleControl(ev.Control)
			continue
		}
		if ev.Input != nil {
			s.Append(*ev.Input)
		}
	}
}

func (s *Session) handleControl(c types.Control) {
	s.log.Debug("hotkey control", zap.String("control", c.String()))
	switch c {
	case types.ControlPause:
		if err := s.Pause(); err != nil {
			s.log.Debug("pause ignored", zap.Error(err))
		}
	case types.ControlResume:
		if err := s.Resume(); err != nil {
			s.log.Debug("resume ignored", zap.Error(err))
		}
	case types.ControlStop:
		// Finalize off the loop goroutine: teardown joins this loop.
		go func() {
			if err := s.Stop(context.Background()); err != nil {
				s.log.Error("hotkey stop failed", zap.Error(err))
			}
		}()
	case types.ControlCancel:
		go func() {
			if err := s.Abort(context.Background()); err != nil {
				s.log.Error("hotkey cancel failed", zap.Error(err))
			}
		}()
	}
}

// Append adds one action to the log. Valid only while Recording: in any
// other state the event is dropped with a diagnostic entry. The listener
// should not deliver then, but a stray event must never corrupt state.
func (s *Session) Append(evt types.InputEvent) {
	s.mu.Lock()
	if s.state != types.StateRecording {
		state := s.state
		s.mu.Unlock()
		s.log.Debug("append ignored outside recording",
			zap.String("state", string(state)), zap.String("kind", string(evt.Kind)))
		return
	}

	seq := len(s.records)
	record := types.ActionRecord{
		Seq:       seq,
		Kind:      evt.Kind,
		Pos:       evt.Pos,
		Key:       evt.Key,
		Timestamp: float64(evt.Time.UnixNano()) / 1e9,
	}
	if s.capturer != nil {
		record.ScreenshotRef = paths.ScreenshotName(seq)
	}
	s.records = append(s.records, record)
	s.lastActionAt = evt.Time
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordAction(string(evt.Kind))
	}
	s.window.Action(s.test.Name, record)

	if s.capturer != nil {
		s.dispatchCapture(seq)
	}
}

// dispatchCapture grabs visual evidence for one action without blocking the
// input pump. A failed capture downgrades to a warning: the action stays
// recorded, its screenshot reference cleared.
func (s *Session) dispatchCapture(seq int) {
	s.captures.Add(1)
	go func() {
		defer s.captures.Done()
		s.capGate <- struct{}{}
		defer func() { <-s.capGate }()

		start := time.Now()
		err := s.capturer.Capture(s.rec.ScreenshotPath(seq))
		if s.metrics != nil {
			s.metrics.RecordCapture(time.Since(start), err)
		}
		if err != nil {
			s.log.Warn("screenshot capture failed, action kept without evidence",
				zap.Int("seq", seq), zap.Error(err))
			s.mu.Lock()
			if seq < len(s.records) {
				s.records[seq].ScreenshotRef = ""
			}
			s.capturesFailed++
			s.mu.Unlock()
		}
	}()
}

// Pause suspends appending; the listener keeps running, incoming actions
// are discarded until Resume.
func (s *Session) Pause() error {
	return s.transition(types.StateRecording, types.StatePaused)
}

// Resume re-enables appending after Pause.
func (s *Session) Resume() error {
	return s.transition(types.StatePaused, types.StateRecording)
}

func (s *Session) transition(from, to types.SessionState) error {
	s.mu.Lock()
	if s.state != from {
		current := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, to)
	}
	s.state = to
	s.mu.Unlock()

	s.log.Info("session state changed",
		zap.String("from", string(from)), zap.String("to", string(to)))
	s.window.State(s.test.Name, to)
	return nil
}

// Stop ends the session and commits the test case. Idempotent: a second
// call waits for the first teardown and returns nil.
func (s *Session) Stop(ctx context.Context) error {
	return s.finalize(ctx, types.StateStopped)
}

// Abort ends the session without committing. The partial log is parked
// with the incomplete flag, never listed as a valid test case. Idempotent.
func (s *Session) Abort(ctx context.Context) error {
	return s.finalize(ctx, types.StateAborted)
}

func (s *Session) finalize(ctx context.Context, terminal types.SessionState) error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		<-s.final // second trigger waits out the first teardown
		return nil
	}
	s.state = terminal
	records := make([]types.ActionRecord, len(s.records))
	copy(records, s.records)
	s.mu.Unlock()
	defer close(s.final)

	// Teardown first: the listener must never outlive the session, and
	// the lock must be released even when the persist below fails.
	if err := s.input.Stop(); err != nil {
		s.log.Warn("listener stop", zap.Error(err))
	}
	s.await(ctx, s.loopDone, "consumer loop")
	s.awaitCaptures(ctx)

	// Captures may have cleared screenshot refs after the snapshot.
	s.mu.Lock()
	copy(records, s.records[:len(records)])
	s.mu.Unlock()

	var persistErr error
	if terminal == types.StateStopped {
		persistErr = s.rec.Commit(records)
	} else {
		persistErr = s.rec.Discard(records)
	}

	s.cleanup.Run() // releases the lock, re-stops the listener (no-ops)
	s.window.State(s.test.Name, terminal)

	if s.metrics != nil {
		s.metrics.SessionActive.Set(0)
		if terminal == types.StateStopped {
			s.metrics.SessionsStopped.Inc()
		} else {
			s.metrics.SessionsAborted.Inc()
		}
		if persistErr != nil {
			s.metrics.PersistFailures.Inc()
		}
	}

	if persistErr != nil {
		s.log.Error("persist failed after teardown", zap.Error(persistErr))
		return fmt.Errorf("%w: %v", ErrPersist, persistErr)
	}

	s.log.Info("session finalized",
		zap.String("state", string(terminal)), zap.Int("actions", len(records)))

	if terminal == types.StateStopped && s.report != nil {
		tc := s.test
		go func() {
			if err := s.report.Submit(context.Background(), tc, records); err != nil {
				s.log.Warn("report submission failed", zap.Error(err))
			}
		}()
	}
	return nil
}

func (s *Session) await(ctx context.Context, ch <-chan struct{}, what string) {
	select {
	case <-ch:
	case <-ctx.Done():
		s.log.Warn("teardown context cancelled", zap.String("waiting_on", what))
	case <-time.After(s.timeout):
		s.log.Warn("teardown wait timed out, proceeding",
			zap.String("waiting_on", what), zap.Duration("timeout", s.timeout))
	}
}

func (s *Session) awaitCaptures(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.captures.Wait()
		close(done)
	}()
	s.await(ctx, done, "in-flight captures")
}
