package trigger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"safesignal/internal/models"
)

// Defaults for the three gesture capabilities.
const (
	DefaultTapThreshold = 3
	DefaultTapWindow    = 2 * time.Second

	ChordKey = "h" // Ctrl+Shift+H
)

// DefaultSwipePattern is the swipe sequence that raises a signal.
var DefaultSwipePattern = []string{"down", "up", "down"}

// TapDetector raises a trigger after N logo taps inside the tap window.
type TapDetector struct {
	*Detector

	mu        sync.Mutex
	threshold int
	window    time.Duration
	taps      []time.Time
}

// NewTapDetector creates the logo-tap detector. threshold <= 0 and
// window <= 0 fall back to the defaults.
func NewTapDetector(
	childID, familyID string,
	deviceID *string,
	platform string,
	threshold int,
	window time.Duration,
	gate *DebounceGate,
	sink Sink,
	logger *zap.Logger,
) *TapDetector {
	if threshold <= 0 {
		threshold = DefaultTapThreshold
	}
	if window <= 0 {
		window = DefaultTapWindow
	}
	return &TapDetector{
		Detector:  NewDetector(childID, familyID, deviceID, models.TriggerLogoTap, platform, gate, sink, logger),
		threshold: threshold,
		window:    window,
	}
}

// HandleTap records one tap and fires once the threshold is reached inside
// the window. The tap count resets after a fire so the next signal needs a
// fresh gesture.
func (d *TapDetector) HandleTap(ctx context.Context, url string) {
	d.mu.Lock()

	now := d.now()
	cutoff := now.Add(-d.window)

	kept := d.taps[:0]
	for _, tap := range d.taps {
		if tap.After(cutoff) {
			kept = append(kept, tap)
		}
	}
	d.taps = append(kept, now)

	fire := len(d.taps) >= d.threshold
	if fire {
		d.taps = nil
	}
	d.mu.Unlock()

	if fire {
		d.fire(ctx, url)
	}
}

// KeyEvent is a raw keyboard event from the platform shim.
type KeyEvent struct {
	Key   string
	Ctrl  bool
	Shift bool
	Alt   bool
}

// ChordDetector raises a trigger on the help chord (default Ctrl+Shift+H).
type ChordDetector struct {
	*Detector
}

// NewChordDetector creates the keyboard-chord detector.
func NewChordDetector(
	childID, familyID string,
	deviceID *string,
	platform string,
	gate *DebounceGate,
	sink Sink,
	logger *zap.Logger,
) *ChordDetector {
	return &ChordDetector{
		Detector: NewDetector(childID, familyID, deviceID, models.TriggerKeyboardShortcut, platform, gate, sink, logger),
	}
}

// HandleKey fires when the event matches the chord; everything else is
// ignored without trace.
func (d *ChordDetector) HandleKey(ctx context.Context, ev KeyEvent, url string) {
	if !ev.Ctrl || !ev.Shift || ev.Alt {
		return
	}
	if !equalFoldASCII(ev.Key, ChordKey) {
		return
	}
	d.fire(ctx, url)
}

// SwipeDetector raises a trigger when the recent swipe directions end with
// the configured pattern.
type SwipeDetector struct {
	*Detector

	mu      sync.Mutex
	pattern []string
	recent  []string
}

// NewSwipeDetector creates the swipe-pattern detector. An empty pattern falls
// back to the default.
func NewSwipeDetector(
	childID, familyID string,
	deviceID *string,
	platform string,
	pattern []string,
	gate *DebounceGate,
	sink Sink,
	logger *zap.Logger,
) *SwipeDetector {
	if len(pattern) == 0 {
		pattern = DefaultSwipePattern
	}
	return &SwipeDetector{
		Detector: NewDetector(childID, familyID, deviceID, models.TriggerSwipePattern, platform, gate, sink, logger),
		pattern:  pattern,
	}
}

// HandleSwipe records one swipe direction and fires when the tail of the
// recorded sequence equals the pattern. The sequence resets after a fire.
func (d *SwipeDetector) HandleSwipe(ctx context.Context, direction string, url string) {
	d.mu.Lock()

	d.recent = append(d.recent, direction)
	if len(d.recent) > len(d.pattern) {
		d.recent = d.recent[len(d.recent)-len(d.pattern):]
	}

	fire := len(d.recent) == len(d.pattern)
	if fire {
		for i := range d.pattern {
			if d.recent[i] != d.pattern[i] {
				fire = false
				break
			}
		}
	}
	if fire {
		d.recent = nil
	}
	d.mu.Unlock()

	if fire {
		d.fire(ctx, url)
	}
}

// equalFoldASCII compares single-key names case-insensitively without
// allocating.
func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
