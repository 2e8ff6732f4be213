package trigger

import (
	"sync"
	"time"
)

// DefaultDebounceWindow coalesces repeats of one physical gesture.
const DefaultDebounceWindow = 5000 * time.Millisecond

// DebounceGate suppresses duplicate triggers from a single physical gesture.
// One gate per detector instance, never shared, so independent detectors
// (keyboard vs. tap) do not interfere. The read-then-write on the last
// trigger time is serialized with a mutex.
type DebounceGate struct {
	mu              sync.Mutex
	window          time.Duration
	now             func() time.Time
	lastTriggerTime time.Time
}

// NewDebounceGate creates a gate with the given window. A zero or negative
// window falls back to the default. now is injectable for tests; nil means
// time.Now.
func NewDebounceGate(window time.Duration, now func() time.Time) *DebounceGate {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	if now == nil {
		now = time.Now
	}
	return &DebounceGate{
		window: window,
		now:    now,
	}
}

// RecordIfNotDebouncing returns false and leaves the gate untouched while a
// previous trigger is still inside the window; otherwise it records the new
// trigger time and returns true.
func (g *DebounceGate) RecordIfNotDebouncing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if !g.lastTriggerTime.IsZero() && now.Sub(g.lastTriggerTime) < g.window {
		return false
	}

	g.lastTriggerTime = now
	return true
}
