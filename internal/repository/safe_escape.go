package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"safesignal/internal/models"
)

// Sentinel errors for Safe Escape persistence.
var (
	ErrActivationNotFound = fmt.Errorf("safe escape activation not found")
	ErrAlreadyReenabled   = fmt.Errorf("safe escape activation already reenabled")
)

// SafeEscapeRepository persists Safe Escape activations.
type SafeEscapeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSafeEscapeRepository creates the repository.
func NewSafeEscapeRepository(db *sql.DB, logger *zap.Logger) *SafeEscapeRepository {
	return &SafeEscapeRepository{
		db:     db,
		logger: logger,
	}
}

// CreateActivation inserts a new activation row.
func (r *SafeEscapeRepository) CreateActivation(ctx context.Context, activation *models.SafeEscapeActivation) error {
	if activation == nil {
		return fmt.Errorf("activation is required")
	}
	if activation.ActivationID == "" {
		return fmt.Errorf("activation_id is required")
	}
	if activation.FamilyID == "" {
		return fmt.Errorf("family_id is required")
	}
	if activation.ActivatedBy == "" {
		return fmt.Errorf("activated_by is required")
	}

	query := `
		INSERT INTO safe_escape_activations (
			activation_id,
			family_id,
			activated_by,
			activated_at,
			notification_sent_at,
			cleared_location_history,
			reenabled_at,
			reenabled_by,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		activation.ActivationID,
		activation.FamilyID,
		activation.ActivatedBy,
		activation.ActivatedAt,
		activation.NotificationSentAt,
		activation.ClearedLocationHistory,
		activation.ReenabledAt,
		activation.ReenabledBy,
		activation.CreatedAt,
		activation.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create activation: %w", err)
	}

	return nil
}

// GetActivation fetches one activation by id.
func (r *SafeEscapeRepository) GetActivation(ctx context.Context, activationID string) (*models.SafeEscapeActivation, error) {
	if activationID == "" {
		return nil, fmt.Errorf("activation_id is required")
	}

	query := activationSelect + `
		WHERE activation_id = $1
	`

	row := r.db.QueryRowContext(ctx, query, activationID)
	return scanActivation(row)
}

// GetActiveActivation returns the family's current activation (reenabled_at
// still null), or ErrActivationNotFound when location sharing is on.
func (r *SafeEscapeRepository) GetActiveActivation(ctx context.Context, familyID string) (*models.SafeEscapeActivation, error) {
	if familyID == "" {
		return nil, fmt.Errorf("family_id is required")
	}

	query := activationSelect + `
		WHERE family_id = $1
		  AND reenabled_at IS NULL
		ORDER BY activated_at DESC
		LIMIT 1
	`

	row := r.db.QueryRowContext(ctx, query, familyID)
	return scanActivation(row)
}

// Reenable stamps reenabled_at/reenabled_by on an activation that has not
// been reversed yet. The activator check happens in the controller; the WHERE
// clause only guards against double reversal.
func (r *SafeEscapeRepository) Reenable(ctx context.Context, activationID, reenabledBy string, at time.Time) error {
	if activationID == "" {
		return fmt.Errorf("activation_id is required")
	}
	if reenabledBy == "" {
		return fmt.Errorf("reenabled_by is required")
	}

	query := `
		UPDATE safe_escape_activations
		SET reenabled_at = $1,
		    reenabled_by = $2,
		    updated_at = CURRENT_TIMESTAMP
		WHERE activation_id = $3
		  AND reenabled_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, at, reenabledBy, activationID)
	if err != nil {
		return fmt.Errorf("failed to reenable activation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrAlreadyReenabled
	}

	r.logger.Info("Safe escape reenabled",
		zap.String("activation_id", activationID),
	)

	return nil
}

// ListDueNotifications returns activations whose silent window has elapsed
// and whose guardian notification has not gone out yet. cutoff is
// now - notification delay; the sweep fires anything activated at or before
// it, so a tick missed at the exact deadline still fires on the next pass.
func (r *SafeEscapeRepository) ListDueNotifications(ctx context.Context, cutoff time.Time) ([]models.SafeEscapeActivation, error) {
	query := activationSelect + `
		WHERE notification_sent_at IS NULL
		  AND reenabled_at IS NULL
		  AND activated_at <= $1
		ORDER BY activated_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list due notifications: %w", err)
	}
	defer rows.Close()

	var activations []models.SafeEscapeActivation
	for rows.Next() {
		activation, err := scanActivationRows(rows)
		if err != nil {
			return nil, err
		}
		activations = append(activations, *activation)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due notifications: %w", err)
	}

	return activations, nil
}

// MarkNotificationSent stamps notification_sent_at exactly once.
func (r *SafeEscapeRepository) MarkNotificationSent(ctx context.Context, activationID string, at time.Time) error {
	if activationID == "" {
		return fmt.Errorf("activation_id is required")
	}

	query := `
		UPDATE safe_escape_activations
		SET notification_sent_at = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE activation_id = $2
		  AND notification_sent_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, at, activationID)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		// Already stamped by a concurrent sweep; at-least-once makes this
		// a no-op, not an error.
		return nil
	}

	return nil
}

const activationSelect = `
	SELECT
		activation_id,
		family_id,
		activated_by,
		activated_at,
		notification_sent_at,
		cleared_location_history,
		reenabled_at,
		reenabled_by,
		created_at,
		updated_at
	FROM safe_escape_activations
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanActivation(row *sql.Row) (*models.SafeEscapeActivation, error) {
	activation, err := scanActivationFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrActivationNotFound
	}
	return activation, err
}

func scanActivationRows(rows *sql.Rows) (*models.SafeEscapeActivation, error) {
	return scanActivationFrom(rows)
}

func scanActivationFrom(scanner rowScanner) (*models.SafeEscapeActivation, error) {
	var activation models.SafeEscapeActivation
	var notificationSentAt, reenabledAt sql.NullTime
	var reenabledBy sql.NullString

	err := scanner.Scan(
		&activation.ActivationID,
		&activation.FamilyID,
		&activation.ActivatedBy,
		&activation.ActivatedAt,
		&notificationSentAt,
		&activation.ClearedLocationHistory,
		&reenabledAt,
		&reenabledBy,
		&activation.CreatedAt,
		&activation.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan activation: %w", err)
	}

	if notificationSentAt.Valid {
		activation.NotificationSentAt = &notificationSentAt.Time
	}
	if reenabledAt.Valid {
		activation.ReenabledAt = &reenabledAt.Time
	}
	if reenabledBy.Valid {
		activation.ReenabledBy = &reenabledBy.String
	}

	return &activation, nil
}
