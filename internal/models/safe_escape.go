package models

import (
	"time"
)

// SafeEscapeActivation records one activation of the Safe Escape feature
// (maps to the safe_escape_activations table). Location sharing is disabled
// the moment the row is created; the guardian notification is delayed by the
// configured silent window. ReenabledBy must equal ActivatedBy whenever set.
type SafeEscapeActivation struct {
	ActivationID           string     `json:"activation_id" db:"activation_id"`
	FamilyID               string     `json:"family_id" db:"family_id"`
	ActivatedBy            string     `json:"activated_by" db:"activated_by"`
	ActivatedAt            time.Time  `json:"activated_at" db:"activated_at"`
	NotificationSentAt     *time.Time `json:"notification_sent_at,omitempty" db:"notification_sent_at"`
	ClearedLocationHistory bool       `json:"cleared_location_history" db:"cleared_location_history"`
	ReenabledAt            *time.Time `json:"reenabled_at,omitempty" db:"reenabled_at"`
	ReenabledBy            *string    `json:"reenabled_by,omitempty" db:"reenabled_by"`
	CreatedAt              time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at" db:"updated_at"`
}

// Active reports whether location sharing is still disabled by this activation.
func (a *SafeEscapeActivation) Active() bool {
	return a.ReenabledAt == nil
}
