package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"safesignal/internal/models"
)

// TriggerEventsRepository is the append-only store of accepted gestures. Rows
// are never updated or deleted here; retention is a collaborator concern.
type TriggerEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTriggerEventsRepository creates the repository.
func NewTriggerEventsRepository(db *sql.DB, logger *zap.Logger) *TriggerEventsRepository {
	return &TriggerEventsRepository{
		db:     db,
		logger: logger,
	}
}

// CreateTriggerEvent appends one accepted gesture.
func (r *TriggerEventsRepository) CreateTriggerEvent(ctx context.Context, event *models.TriggerEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if event.SignalID == "" {
		return fmt.Errorf("signal_id is required")
	}

	query := `
		INSERT INTO trigger_events (
			event_id,
			signal_id,
			child_id,
			trigger_method,
			platform,
			timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		event.EventID,
		event.SignalID,
		event.ChildID,
		event.TriggerMethod,
		event.Platform,
		event.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to create trigger event: %w", err)
	}

	return nil
}

// ListTriggerEventsBySignal returns the gestures recorded for one signal,
// oldest first.
func (r *TriggerEventsRepository) ListTriggerEventsBySignal(ctx context.Context, signalID string) ([]models.TriggerEvent, error) {
	if signalID == "" {
		return nil, fmt.Errorf("signal_id is required")
	}

	query := `
		SELECT
			event_id,
			signal_id,
			child_id,
			trigger_method,
			platform,
			timestamp
		FROM trigger_events
		WHERE signal_id = $1
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, query, signalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trigger events: %w", err)
	}
	defer rows.Close()

	var events []models.TriggerEvent
	for rows.Next() {
		var event models.TriggerEvent
		if err := rows.Scan(
			&event.EventID,
			&event.SignalID,
			&event.ChildID,
			&event.TriggerMethod,
			&event.Platform,
			&event.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trigger event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trigger events: %w", err)
	}

	return events, nil
}
