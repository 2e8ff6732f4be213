package models

import (
	"time"
)

// Signal status values (one-hop forward-only, see pipeline.StatusTransitions).
const (
	StatusQueued       = "queued"
	StatusPending      = "pending"
	StatusSent         = "sent"
	StatusDelivered    = "delivered"
	StatusAcknowledged = "acknowledged"
)

// Trigger methods (how the child asked for help).
const (
	TriggerLogoTap          = "logo_tap"
	TriggerKeyboardShortcut = "keyboard_shortcut"
	TriggerSwipePattern     = "swipe_pattern"
)

// Platforms a trigger can originate from.
const (
	PlatformWeb             = "web"
	PlatformChromeExtension = "chrome_extension"
	PlatformAndroid         = "android"
)

// SafetySignal is a silent request for help raised from a monitored device
// (maps to the safety_signals table). Created by the pipeline on an accepted
// trigger; mutated only through one-hop status transitions; never deleted here.
type SafetySignal struct {
	SignalID      string     `json:"signal_id" db:"signal_id"`
	ChildID       string     `json:"child_id" db:"child_id"`
	FamilyID      string     `json:"family_id" db:"family_id"`
	DeviceID      *string    `json:"device_id,omitempty" db:"device_id"`
	TriggerMethod string     `json:"trigger_method" db:"trigger_method"` // logo_tap, keyboard_shortcut, swipe_pattern
	Platform      string     `json:"platform" db:"platform"`             // web, chrome_extension, android
	Status        string     `json:"status" db:"status"`                 // queued, pending, sent, delivered, acknowledged
	OfflineQueued bool       `json:"offline_queued" db:"offline_queued"`
	TriggeredAt   time.Time  `json:"triggered_at" db:"triggered_at"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	Version       int64      `json:"version" db:"version"` // optimistic check on status updates
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// TriggerEvent is one row per accepted (non-debounced) gesture (maps to the
// trigger_events table). Immutable once created.
type TriggerEvent struct {
	EventID       string    `json:"event_id" db:"event_id"`
	SignalID      string    `json:"signal_id" db:"signal_id"`
	ChildID       string    `json:"child_id" db:"child_id"`
	TriggerMethod string    `json:"trigger_method" db:"trigger_method"`
	Platform      string    `json:"platform" db:"platform"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
}

// OfflineQueueEntry is the retry bookkeeping for an undelivered signal. It
// lives in Redis while the signal is undelivered and is removed on success or
// abandonment.
type OfflineQueueEntry struct {
	Signal      SafetySignal `json:"signal"`
	RetryCount  int          `json:"retry_count"`
	LastRetryAt *time.Time   `json:"last_retry_at,omitempty"`
	QueuedAt    time.Time    `json:"queued_at"`
}
