package delivery

import (
	"context"
	"time"
)

// Message types on the wire.
const (
	TypeSafetySignalTriggered = "SAFETY_SIGNAL_TRIGGERED"
	TypeSignalDelivered       = "SAFETY_SIGNAL_DELIVERED"
	TypeSignalAcknowledged    = "SAFETY_SIGNAL_ACKNOWLEDGED"
	TypeLocationPaused        = "LOCATION_FEATURES_PAUSED"
)

// LocationPausedMessage is the only wording guardians see for a Safe Escape
// notification. Deliberately neutral: it must never imply emergency or danger.
const LocationPausedMessage = "Location features paused"

// Envelope is the message handed to the delivery transport for a triggered
// safety signal. Field names match the collaborator contract.
type Envelope struct {
	Type          string    `json:"type"`
	SignalID      string    `json:"signalId"`
	TriggerMethod string    `json:"triggerMethod"`
	Platform      string    `json:"platform"`
	Timestamp     time.Time `json:"timestamp"`
	URL           string    `json:"url,omitempty"`
}

// GuardianEvent is an outbound event for the guardian notification
// collaborator: status transitions and Safe Escape notices.
type GuardianEvent struct {
	Type      string    `json:"type"`
	FamilyID  string    `json:"familyId"`
	SignalID  string    `json:"signalId,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Confirmation types published by guardian apps.
const (
	ConfirmDelivered    = "DELIVERED"
	ConfirmAcknowledged = "ACKNOWLEDGED"
)

// Confirmation is the inbound event a guardian app publishes when a sent
// signal reaches it (delivered) or a guardian acts on it (acknowledged).
type Confirmation struct {
	Type     string `json:"type"`
	FamilyID string `json:"familyId"`
	SignalID string `json:"signalId"`
}

// Channel carries a signal envelope toward the guardians of a family. The
// transport behind it (MQTT, streams, push) is a collaborator concern.
type Channel interface {
	Send(ctx context.Context, familyID string, envelope Envelope) error
}

// GuardianNotifier publishes outbound guardian events.
type GuardianNotifier interface {
	Publish(ctx context.Context, event GuardianEvent) error
}
