package pipeline

import (
	"safesignal/internal/models"
)

// statusSuccessor is the single source of truth for the signal state machine.
// A status moves only to its unique successor, one hop at a time, never
// backward, never skipping. acknowledged has no entry: it is terminal.
var statusSuccessor = map[string]string{
	models.StatusQueued:    models.StatusPending,
	models.StatusPending:   models.StatusSent,
	models.StatusSent:      models.StatusDelivered,
	models.StatusDelivered: models.StatusAcknowledged,
}

// IsValidStatusTransition reports whether to is the unique successor of from.
// False for from == to, for any backward pair, and for any skipped hop.
func IsValidStatusTransition(from, to string) bool {
	next, ok := statusSuccessor[from]
	return ok && next == to
}

// GetNextStatus returns the unique successor of from, or ("", false) at the
// terminal state or for an unknown status.
func GetNextStatus(from string) (string, bool) {
	next, ok := statusSuccessor[from]
	return next, ok
}

// IsTerminalStatus reports whether a signal can advance no further.
func IsTerminalStatus(status string) bool {
	return status == models.StatusAcknowledged
}
