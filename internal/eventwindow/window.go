// Package eventwindow is the recorder's status surface contract.
//
// The original floating window is rendered by an external client; this
// package only carries the visual state. A Broadcaster fans session updates
// out to subscribers (the WebSocket stream handler among them) through a
// dedicated goroutine, so the listener thread never touches a subscriber
// directly. Publishing never blocks: under pressure, updates to a slow
// subscriber are dropped and the next update carries the current state.
package eventwindow

import (
	"sync"
	"time"

	"github.com/replaykit/recorderd/internal/shared/types"
)

// Notifier receives session status changes. Implementations own no
// business logic.
type Notifier interface {
	State(test string, state types.SessionState)
	Action(test string, rec types.ActionRecord)
	Close()
}

// Broadcaster fans updates out to any number of subscribers.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan types.Update]struct{}
	in     chan types.Update
	done   chan struct{}
	closed bool

	// published counts accepted updates, for tests and metrics.
	published func()
}

// subscriberBuffer bounds how far a slow subscriber may lag before
// updates are dropped for it.
const subscriberBuffer = 16

// NewBroadcaster creates a broadcaster and starts its fan-out goroutine.
func NewBroadcaster() *Broadcaster {
	b := &Broadcaster{
		subs: make(map[chan types.Update]struct{}),
		in:   make(chan types.Update, 64),
		done: make(chan struct{}),
	}
	go b.fanOut()
	return b
}

// OnPublish registers a hook invoked for every accepted update.
func (b *Broadcaster) OnPublish(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = fn
}

// State publishes a session state change.
func (b *Broadcaster) State(test string, state types.SessionState) {
	b.publish(types.Update{
		Type:  types.UpdateState,
		Test:  test,
		State: state,
		At:    time.Now(),
	})
}

// Action publishes a recorded action notification.
func (b *Broadcaster) Action(test string, rec types.ActionRecord) {
	b.publish(types.Update{
		Type:   types.UpdateAction,
		Test:   test,
		Action: &rec,
		At:     time.Now(),
	})
}

// publish hands the update to the fan-out goroutine without ever blocking
// the caller. If the intake buffer is full the update is dropped; status
// is latest-wins.
func (b *Broadcaster) publish(u types.Update) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	hook := b.published
	b.mu.Unlock()

	select {
	case b.in <- u:
		if hook != nil {
			hook()
		}
	default:
	}
}

// Subscribe returns a channel of updates and a cancel function. The channel
// is closed on cancel or when the broadcaster shuts down.
func (b *Broadcaster) Subscribe() (<-chan types.Update, func()) {
	ch := make(chan types.Update, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Close shuts the broadcaster down and closes all subscriber channels.
// Idempotent.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)
}

func (b *Broadcaster) fanOut() {
	for {
		select {
		case u := <-b.in:
			b.mu.Lock()
			for ch := range b.subs {
				select {
				case ch <- u:
				default: // slow subscriber, drop
				}
			}
			b.mu.Unlock()
		case <-b.done:
			b.mu.Lock()
			for ch := range b.subs {
				delete(b.subs, ch)
				close(ch)
			}
			b.mu.Unlock()
			return
		}
	}
}
