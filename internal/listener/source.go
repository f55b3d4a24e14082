package listener

import "time"

// RawKind classifies raw hardware events before normalization.
type RawKind uint8

const (
	RawMove RawKind = iota + 1
	RawClick
	RawScroll
	RawKeyPress
)

// RawEvent is a hardware event as the hook delivers it.
type RawEvent struct {
	Kind RawKind
	X    int
	Y    int
	Key  string // lowercase key name, key presses only
	When time.Time
}

// Source abstracts the OS-level global input hook.
//
// Open subscribes system-wide and returns the raw event channel; events
// arrive in the order the hardware generated them. Close must cause the
// channel to close in bounded time even when no further input arrives.
type Source interface {
	Open() (<-chan RawEvent, error)
	Close() error
}
