package trigger

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Request is the ambient context handed to the pipeline when a gesture is
// accepted.
type Request struct {
	ChildID       string
	FamilyID      string
	DeviceID      *string
	TriggerMethod string
	Platform      string
	URL           string // page the child was on, "" outside the browser
	Timestamp     time.Time
}

// Sink receives accepted triggers. Implemented by the signal pipeline.
type Sink interface {
	Trigger(ctx context.Context, req Request) error
}

// Detector is the shared core of every gesture detector: it owns one debounce
// gate and forwards accepted gestures to the sink. Detectors never surface
// confirmation, errors, or any visible state change to the device. The
// absence of feedback is part of the safety contract, so fire returns nothing
// and the sink error goes to the debug log only.
type Detector struct {
	childID       string
	familyID      string
	deviceID      *string
	triggerMethod string
	platform      string
	gate          *DebounceGate
	sink          Sink
	logger        *zap.Logger
	now           func() time.Time
}

// NewDetector wires a detector for one child device.
func NewDetector(
	childID string,
	familyID string,
	deviceID *string,
	triggerMethod string,
	platform string,
	gate *DebounceGate,
	sink Sink,
	logger *zap.Logger,
) *Detector {
	return &Detector{
		childID:       childID,
		familyID:      familyID,
		deviceID:      deviceID,
		triggerMethod: triggerMethod,
		platform:      platform,
		gate:          gate,
		sink:          sink,
		logger:        logger,
		now:           time.Now,
	}
}

// fire runs the debounce gate and, if the gesture is accepted, hands it to
// the pipeline. All outcomes are silent.
func (d *Detector) fire(ctx context.Context, url string) {
	if !d.gate.RecordIfNotDebouncing() {
		return
	}

	req := Request{
		ChildID:       d.childID,
		FamilyID:      d.familyID,
		DeviceID:      d.deviceID,
		TriggerMethod: d.triggerMethod,
		Platform:      d.platform,
		URL:           url,
		Timestamp:     d.now(),
	}

	if err := d.sink.Trigger(ctx, req); err != nil {
		// Debug only: nothing about a failed trigger may reach the device.
		d.logger.Debug("Trigger sink failed",
			zap.String("trigger_method", d.triggerMethod),
			zap.Error(err),
		)
	}
}
