// Package resilience guards calls to flaky external collaborators.
//
// The recorder talks to exactly one remote system, the report endpoint,
// and a dead endpoint must never stall session teardown. The breaker
// fails those submissions fast instead of burning the retry budget on
// every stop.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without invoking the call while the circuit is open.
var ErrOpen = errors.New("circuit breaker is open")

// State is the circuit state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker trips open after Threshold consecutive failures. Once Cooldown
// has elapsed a single probe call is let through: success closes the
// circuit, failure re-opens it for another cooldown.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	notify    func(name string, from, to State)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New creates a breaker. threshold < 1 defaults to 5 consecutive
// failures; cooldown <= 0 defaults to 30 seconds.
func New(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{name: name, threshold: threshold, cooldown: cooldown}
}

// Notify registers a state change callback. Not safe to call after the
// breaker is in use.
func (b *Breaker) Notify(fn func(name string, from, to State)) {
	b.notify = fn
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.observe()
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Do runs fn if the circuit admits it. While open it returns ErrOpen
// without calling fn; in half-open it admits one probe at a time.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.settle(err == nil)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.observe() {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) settle(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.observe()
	b.probing = false

	if ok {
		b.failures = 0
		if state == StateHalfOpen {
			b.setState(StateClosed)
		}
		return
	}

	if state == StateHalfOpen {
		b.openedAt = time.Now()
		b.setState(StateOpen)
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.openedAt = time.Now()
		b.setState(StateOpen)
	}
}

// observe resolves open -> half-open once the cooldown has elapsed.
// Callers must hold b.mu.
func (b *Breaker) observe() State {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.cooldown {
		b.setState(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) setState(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if b.notify != nil {
		b.notify(b.name, from, to)
	}
}
