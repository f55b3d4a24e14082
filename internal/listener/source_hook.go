package listener

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	hook "github.com/robotn/gohook"
)

// HookSource subscribes to system-wide input through the OS hook. The hook
// is process-global, so at most one HookSource may be open at a time,
// consistent with the single-session guarantee the lock manager provides.
type HookSource struct {
	open atomic.Bool
}

// NewHookSource creates the production input source.
func NewHookSource() *HookSource {
	return &HookSource{}
}

// Open installs the global hook and adapts its events.
func (h *HookSource) Open() (<-chan RawEvent, error) {
	if !h.open.CompareAndSwap(false, true) {
		return nil, errors.New("global hook already installed")
	}

	events := hook.Start()
	out := make(chan RawEvent, 64)

	go func() {
		defer close(out)
		for ev := range events {
			switch ev.Kind {
			case hook.MouseDown:
				out <- RawEvent{Kind: RawClick, X: int(ev.X), Y: int(ev.Y), When: time.Now()}
			case hook.MouseMove, hook.MouseDrag:
				out <- RawEvent{Kind: RawMove, X: int(ev.X), Y: int(ev.Y), When: time.Now()}
			case hook.MouseWheel:
				out <- RawEvent{Kind: RawScroll, X: int(ev.X), Y: int(ev.Y), When: time.Now()}
			case hook.KeyDown:
				out <- RawEvent{Kind: RawKeyPress, Key: keyName(ev), When: time.Now()}
			}
		}
	}()
	return out, nil
}

// Close uninstalls the hook, which terminates the event stream.
func (h *HookSource) Close() error {
	if !h.open.CompareAndSwap(true, false) {
		return nil
	}
	hook.End()
	return nil
}

// keyName normalizes a key event to a lowercase key name. Named keys
// (function keys, enter, escape) resolve through the hook's rawcode table;
// printable keys fall back to their character.
func keyName(ev hook.Event) string {
	if name := hook.RawcodetoKeychar(ev.Rawcode); name != "" {
		return strings.ToLower(name)
	}
	if ev.Keychar != 0 && ev.Keychar != 65535 {
		return strings.ToLower(string(ev.Keychar))
	}
	return ""
}
