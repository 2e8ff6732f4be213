package trigger

import (
	"time"

	"go.uber.org/zap"
)

// DetectorFactory builds gesture detectors for one family with the
// configured debounce window. Every detector gets its own gate, so the
// keyboard chord, the logo tap, and the swipe pattern debounce
// independently.
type DetectorFactory struct {
	familyID string
	window   time.Duration
	sink     Sink
	logger   *zap.Logger
	now      func() time.Time
}

// NewDetectorFactory creates the factory. window is the per-detector
// debounce window; zero or negative falls back to the default.
func NewDetectorFactory(familyID string, window time.Duration, sink Sink, logger *zap.Logger) *DetectorFactory {
	return &DetectorFactory{
		familyID: familyID,
		window:   window,
		sink:     sink,
		logger:   logger,
	}
}

func (f *DetectorFactory) gate() *DebounceGate {
	return NewDebounceGate(f.window, f.now)
}

// Tap builds the logo-tap detector for one child device.
func (f *DetectorFactory) Tap(childID string, deviceID *string, platform string) *TapDetector {
	return NewTapDetector(childID, f.familyID, deviceID, platform, 0, 0, f.gate(), f.sink, f.logger)
}

// Chord builds the keyboard-chord detector for one child device.
func (f *DetectorFactory) Chord(childID string, deviceID *string, platform string) *ChordDetector {
	return NewChordDetector(childID, f.familyID, deviceID, platform, f.gate(), f.sink, f.logger)
}

// Swipe builds the swipe-pattern detector for one child device.
func (f *DetectorFactory) Swipe(childID string, deviceID *string, platform string) *SwipeDetector {
	return NewSwipeDetector(childID, f.familyID, deviceID, platform, nil, f.gate(), f.sink, f.logger)
}
