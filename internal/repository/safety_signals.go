package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"safesignal/internal/models"
)

// Sentinel errors callers branch on.
var (
	ErrSignalNotFound = fmt.Errorf("safety signal not found")
	ErrStaleVersion   = fmt.Errorf("safety signal version is stale")
)

// SafetySignalsRepository persists safety signals. All reads and writes are
// scoped by family_id so one family can never touch another family's signals.
type SafetySignalsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSafetySignalsRepository creates the repository.
func NewSafetySignalsRepository(db *sql.DB, logger *zap.Logger) *SafetySignalsRepository {
	return &SafetySignalsRepository{
		db:     db,
		logger: logger,
	}
}

// CreateSafetySignal inserts a new signal row.
func (r *SafetySignalsRepository) CreateSafetySignal(ctx context.Context, familyID string, signal *models.SafetySignal) error {
	if familyID == "" {
		return fmt.Errorf("family_id is required")
	}
	if signal == nil {
		return fmt.Errorf("signal is required")
	}
	if signal.FamilyID != familyID {
		return fmt.Errorf("signal.family_id must match family_id parameter")
	}

	query := `
		INSERT INTO safety_signals (
			signal_id,
			child_id,
			family_id,
			device_id,
			trigger_method,
			platform,
			status,
			offline_queued,
			triggered_at,
			delivered_at,
			version,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		signal.SignalID,
		signal.ChildID,
		signal.FamilyID,
		signal.DeviceID,
		signal.TriggerMethod,
		signal.Platform,
		signal.Status,
		signal.OfflineQueued,
		signal.TriggeredAt,
		signal.DeliveredAt,
		signal.Version,
		signal.CreatedAt,
		signal.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create safety signal: %w", err)
	}

	return nil
}

// GetSafetySignal fetches one signal by id within a family.
func (r *SafetySignalsRepository) GetSafetySignal(ctx context.Context, familyID, signalID string) (*models.SafetySignal, error) {
	if familyID == "" {
		return nil, fmt.Errorf("family_id is required")
	}
	if signalID == "" {
		return nil, fmt.Errorf("signal_id is required")
	}

	query := `
		SELECT
			signal_id,
			child_id,
			family_id,
			device_id,
			trigger_method,
			platform,
			status,
			offline_queued,
			triggered_at,
			delivered_at,
			version,
			created_at,
			updated_at
		FROM safety_signals
		WHERE signal_id = $1
		  AND family_id = $2
	`

	var signal models.SafetySignal
	var deviceID sql.NullString
	var deliveredAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, signalID, familyID).Scan(
		&signal.SignalID,
		&signal.ChildID,
		&signal.FamilyID,
		&deviceID,
		&signal.TriggerMethod,
		&signal.Platform,
		&signal.Status,
		&signal.OfflineQueued,
		&signal.TriggeredAt,
		&deliveredAt,
		&signal.Version,
		&signal.CreatedAt,
		&signal.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSignalNotFound
		}
		return nil, fmt.Errorf("failed to get safety signal: %w", err)
	}

	if deviceID.Valid {
		signal.DeviceID = &deviceID.String
	}
	if deliveredAt.Valid {
		signal.DeliveredAt = &deliveredAt.Time
	}

	return &signal, nil
}

// UpdateSignalStatus advances a signal one hop with an optimistic version
// check, serializing concurrent writers. The caller validates the hop against
// the transition table first; the WHERE clause re-asserts the expected status
// and version so a lost race surfaces as ErrStaleVersion instead of a
// skipped or repeated hop.
func (r *SafetySignalsRepository) UpdateSignalStatus(ctx context.Context, familyID, signalID, fromStatus, toStatus string, version int64) error {
	if familyID == "" {
		return fmt.Errorf("family_id is required")
	}
	if signalID == "" {
		return fmt.Errorf("signal_id is required")
	}
	if fromStatus == "" || toStatus == "" {
		return fmt.Errorf("from_status and to_status are required")
	}

	// delivered_at is stamped exactly once, on the hop into delivered.
	query := `
		UPDATE safety_signals
		SET status = $1,
		    version = version + 1,
		    delivered_at = CASE WHEN $1 = 'delivered' THEN CURRENT_TIMESTAMP ELSE delivered_at END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE signal_id = $2
		  AND family_id = $3
		  AND status = $4
		  AND version = $5
	`

	result, err := r.db.ExecContext(ctx, query, toStatus, signalID, familyID, fromStatus, version)
	if err != nil {
		return fmt.Errorf("failed to update signal status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrStaleVersion
	}

	r.logger.Debug("Signal status updated",
		zap.String("signal_id", signalID),
		zap.String("from", fromStatus),
		zap.String("to", toStatus),
	)

	return nil
}

// SetOfflineQueued flips the offline_queued flag (cleared on delivery or
// abandonment).
func (r *SafetySignalsRepository) SetOfflineQueued(ctx context.Context, familyID, signalID string, queued bool) error {
	if familyID == "" {
		return fmt.Errorf("family_id is required")
	}
	if signalID == "" {
		return fmt.Errorf("signal_id is required")
	}

	query := `
		UPDATE safety_signals
		SET offline_queued = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE signal_id = $2
		  AND family_id = $3
	`

	result, err := r.db.ExecContext(ctx, query, queued, signalID, familyID)
	if err != nil {
		return fmt.Errorf("failed to set offline_queued: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSignalNotFound
	}

	return nil
}

// ListUndeliveredSignals returns every undelivered signal flagged as needing
// retry-queue coverage, oldest first. Such signals must have a matching
// queue entry; the sweep uses this list to re-queue any that lost theirs.
// Abandoned signals have the flag cleared and stay out of the list.
func (r *SafetySignalsRepository) ListUndeliveredSignals(ctx context.Context) ([]models.SafetySignal, error) {
	query := `
		SELECT
			signal_id,
			child_id,
			family_id,
			device_id,
			trigger_method,
			platform,
			status,
			offline_queued,
			triggered_at,
			delivered_at,
			version,
			created_at,
			updated_at
		FROM safety_signals
		WHERE status IN ($1, $2)
		  AND offline_queued = TRUE
		ORDER BY triggered_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, models.StatusQueued, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list undelivered signals: %w", err)
	}
	defer rows.Close()

	var signals []models.SafetySignal
	for rows.Next() {
		var signal models.SafetySignal
		var deviceID sql.NullString
		var deliveredAt sql.NullTime

		err := rows.Scan(
			&signal.SignalID,
			&signal.ChildID,
			&signal.FamilyID,
			&deviceID,
			&signal.TriggerMethod,
			&signal.Platform,
			&signal.Status,
			&signal.OfflineQueued,
			&signal.TriggeredAt,
			&deliveredAt,
			&signal.Version,
			&signal.CreatedAt,
			&signal.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan undelivered signal: %w", err)
		}

		if deviceID.Valid {
			signal.DeviceID = &deviceID.String
		}
		if deliveredAt.Valid {
			signal.DeliveredAt = &deliveredAt.Time
		}

		signals = append(signals, signal)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate undelivered signals: %w", err)
	}

	return signals, nil
}
