package tui

import (
	"sync"
	"time"

	"github.com/wricardo/mcp-training/roadracer/game/engine"
)

// DefaultHoldWindow covers the usual gap between a press and the first
// auto-repeat
const DefaultHoldWindow = 300 * time.Millisecond

// Key is one of the four driving keys
type Key int

const (
	KeyForward Key = iota
	KeyBackward
	KeyLeft
	KeyRight
)

// opposite keys cancel each other on press
var opposite = map[Key]Key{
	KeyForward:  KeyBackward,
	KeyBackward: KeyForward,
	KeyLeft:     KeyRight,
	KeyRight:    KeyLeft,
}

// HeldKeys turns press events into held flags
type HeldKeys struct {
	mu      sync.Mutex
	window  time.Duration
	pressed map[Key]time.Time
}

func NewHeldKeys(window time.Duration) *HeldKeys {
	if window <= 0 {
		window = DefaultHoldWindow
	}
	return &HeldKeys{window: window, pressed: make(map[Key]time.Time)}
}

// Press marks k as held from now
func (h *HeldKeys) Press(k Key, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pressed[k] = now
	delete(h.pressed, opposite[k])
}

// Release drops every held key
func (h *HeldKeys) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pressed = make(map[Key]time.Time)
}

// Held returns the keys pressed within the window before now
func (h *HeldKeys) Held(now time.Time) engine.InputFlags {
	h.mu.Lock()
	defer h.mu.Unlock()

	held := func(k Key) bool {
		at, ok := h.pressed[k]
		if !ok {
			return false
		}
		if now.Sub(at) > h.window {
			delete(h.pressed, k)
			return false
		}
		return true
	}
	return engine.InputFlags{
		Forward:  held(KeyForward),
		Backward: held(KeyBackward),
		Left:     held(KeyLeft),
		Right:    held(KeyRight),
	}
}
