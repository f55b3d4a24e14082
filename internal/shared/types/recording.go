package types

import "time"

// SessionState represents recording session lifecycle states
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateRecording SessionState = "recording"
	StatePaused    SessionState = "paused"
	StateStopped   SessionState = "stopped"
	StateAborted   SessionState = "aborted"
)

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == StateStopped || s == StateAborted
}

// StartingPoint is the environment context the operator must reach
// before recording begins.
type StartingPoint string

const (
	PointDesktop StartingPoint = "desktop"
	PointBrowser StartingPoint = "browser"
	PointMap     StartingPoint = "map"
	PointNone    StartingPoint = "none"
)

// Valid reports whether p is a known starting point.
func (p StartingPoint) Valid() bool {
	switch p {
	case PointDesktop, PointBrowser, PointMap, PointNone:
		return true
	}
	return false
}

// ActionKind classifies a recorded action
type ActionKind string

const (
	KindClick    ActionKind = "click"
	KindMove     ActionKind = "move"
	KindScroll   ActionKind = "scroll"
	KindKeyPress ActionKind = "key_press"
)

// Point represents screen coordinates
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// TestCase describes one recorded test case. Immutable once recording
// starts, except for its action log.
type TestCase struct {
	// ID is assigned by the store when the recording begins.
	ID string `json:"id,omitempty"`

	Name          string        `json:"name"`
	Purpose       string        `json:"purpose"`
	AccuracyLevel int           `json:"accuracy_level"`
	StartingPoint StartingPoint `json:"starting_point"`
	CreatedAt     time.Time     `json:"created_at"`

	// Incomplete marks a partial log persisted from an aborted session.
	Incomplete bool `json:"incomplete,omitempty"`
}

// ActionRecord is one ordered element of a test case's action log.
// Seq is assigned at append time under single-writer discipline and is
// strictly increasing with no gaps.
type ActionRecord struct {
	Seq           int        `json:"sequence_index"`
	Kind          ActionKind `json:"kind"`
	Pos           *Point     `json:"coordinates,omitempty"`
	Key           string     `json:"key,omitempty"`
	Timestamp     float64    `json:"timestamp"` // seconds since epoch
	ScreenshotRef string     `json:"screenshot_ref,omitempty"`
}

// InputEvent is a normalized hardware event delivered by the listener.
type InputEvent struct {
	Kind ActionKind
	Pos  *Point
	Key  string
	Time time.Time
}

// Control is a session control signal mapped from a reserved hotkey.
// Hotkeys control the session and are never recorded as actions.
type Control uint8

const (
	ControlNone Control = iota
	ControlPause
	ControlResume
	ControlStop
	ControlCancel
)

func (c Control) String() string {
	switch c {
	case ControlPause:
		return "pause"
	case ControlResume:
		return "resume"
	case ControlStop:
		return "stop"
	case ControlCancel:
		return "cancel"
	}
	return "none"
}

// UpdateType discriminates event window notifications
type UpdateType string

const (
	UpdateState  UpdateType = "state"
	UpdateAction UpdateType = "action"
)

// Update is a status notification pushed to the event window surface.
// The window renders these; it owns no business logic.
type Update struct {
	Type   UpdateType    `json:"type"`
	Test   string        `json:"test"`
	State  SessionState  `json:"state,omitempty"`
	Action *ActionRecord `json:"action,omitempty"`
	At     time.Time     `json:"at"`
}

// SessionStats contains recording session statistics
type SessionStats struct {
	State          SessionState `json:"state"`
	Test           string       `json:"test,omitempty"`
	RunID          string       `json:"run_id,omitempty"`
	ActionsTotal   int          `json:"actions_total"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	LastActionAt   *time.Time   `json:"last_action_at,omitempty"`
	CapturesFailed int          `json:"captures_failed"`
}
