package escape

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"safesignal/internal/repository"
)

type fakeClearer struct {
	cleared []string
	err     error
}

func (c *fakeClearer) ClearFamilyHistory(ctx context.Context, familyID string) error {
	if c.err != nil {
		return c.err
	}
	c.cleared = append(c.cleared, familyID)
	return nil
}

func setupController(t *testing.T) (sqlmock.Sqlmock, *fakeClearer, *Controller) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := repository.NewSafeEscapeRepository(db, zap.NewNop())
	clearer := &fakeClearer{}
	controller := NewController(repo, clearer, 72*time.Hour, zap.NewNop())

	return mock, clearer, controller
}

func activationRows(activationID, familyID, activatedBy string, activatedAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"activation_id", "family_id", "activated_by", "activated_at",
		"notification_sent_at", "cleared_location_history",
		"reenabled_at", "reenabled_by", "created_at", "updated_at",
	}).AddRow(
		activationID, familyID, activatedBy, activatedAt,
		nil, true,
		nil, nil, activatedAt, activatedAt,
	)
}

func TestActivate_CreatesActivationAndClearsHistory(t *testing.T) {
	mock, clearer, controller := setupController(t)
	ctx := context.Background()

	// No active escape yet.
	mock.ExpectQuery(`SELECT`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO safe_escape_activations`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	activation, err := controller.Activate(ctx, "family-1", "user-a")

	require.NoError(t, err)
	assert.NotEmpty(t, activation.ActivationID)
	assert.Equal(t, "family-1", activation.FamilyID)
	assert.Equal(t, "user-a", activation.ActivatedBy)
	assert.True(t, activation.ClearedLocationHistory)
	assert.Nil(t, activation.NotificationSentAt)
	assert.True(t, activation.Active())

	assert.Equal(t, []string{"family-1"}, clearer.cleared)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivate_IdempotentWhileActive(t *testing.T) {
	mock, clearer, controller := setupController(t)
	ctx := context.Background()

	existingID := uuid.New().String()
	mock.ExpectQuery(`SELECT`).
		WillReturnRows(activationRows(existingID, "family-1", "user-a", time.Now()))

	activation, err := controller.Activate(ctx, "family-1", "user-b")

	// Pressing the button again returns the existing activation unchanged;
	// no new row, no second wipe.
	require.NoError(t, err)
	assert.Equal(t, existingID, activation.ActivationID)
	assert.Equal(t, "user-a", activation.ActivatedBy)
	assert.Empty(t, clearer.cleared)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivate_ClearFailureDoesNotUndoActivation(t *testing.T) {
	mock, clearer, controller := setupController(t)
	clearer.err = assert.AnError
	ctx := context.Background()

	mock.ExpectQuery(`SELECT`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO safe_escape_activations`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	activation, err := controller.Activate(ctx, "family-1", "user-a")

	require.NoError(t, err)
	assert.NotNil(t, activation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReenable_ByActivatorSucceeds(t *testing.T) {
	mock, _, controller := setupController(t)
	ctx := context.Background()

	activationID := uuid.New().String()
	mock.ExpectQuery(`SELECT`).
		WithArgs(activationID).
		WillReturnRows(activationRows(activationID, "family-1", "user-a", time.Now()))
	mock.ExpectExec(`UPDATE safe_escape_activations`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	activation, err := controller.Reenable(ctx, activationID, "user-a")

	require.NoError(t, err)
	require.NotNil(t, activation.ReenabledAt)
	require.NotNil(t, activation.ReenabledBy)
	assert.Equal(t, "user-a", *activation.ReenabledBy)
	assert.Equal(t, activation.ActivatedBy, *activation.ReenabledBy)
	assert.False(t, activation.Active())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReenable_ByNonActivatorFailsWithoutStateChange(t *testing.T) {
	mock, _, controller := setupController(t)
	ctx := context.Background()

	activationID := uuid.New().String()
	mock.ExpectQuery(`SELECT`).
		WithArgs(activationID).
		WillReturnRows(activationRows(activationID, "family-1", "user-a", time.Now()))
	// No UPDATE expectation: the write must never happen.

	activation, err := controller.Reenable(ctx, activationID, "user-b")

	assert.ErrorIs(t, err, ErrNotActivator)
	assert.Nil(t, activation)
	// The message stays generic.
	assert.Equal(t, "not authorized", ErrNotActivator.Error())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusFor_ActivatorSeesCountdown(t *testing.T) {
	mock, _, controller := setupController(t)
	ctx := context.Background()

	activatedAt := time.Now().Add(-24 * time.Hour)
	mock.ExpectQuery(`SELECT`).
		WillReturnRows(activationRows(uuid.New().String(), "family-1", "user-a", activatedAt))

	view, err := controller.StatusFor(ctx, "family-1", "user-a")

	require.NoError(t, err)
	assert.True(t, view.SafeEscapeActive)
	require.NotNil(t, view.Activation)
	require.NotNil(t, view.HoursUntilNotification)
	assert.Equal(t, 48, *view.HoursUntilNotification)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusFor_NonActivatorViewOmitsEverything(t *testing.T) {
	mock, _, controller := setupController(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT`).
		WillReturnRows(activationRows(uuid.New().String(), "family-1", "user-a", time.Now()))

	view, err := controller.StatusFor(ctx, "family-1", "user-b")

	require.NoError(t, err)
	assert.True(t, view.SafeEscapeActive)
	assert.Nil(t, view.Activation)
	assert.Nil(t, view.HoursUntilNotification)

	// The serialized view must not even contain the keys.
	raw, err := json.Marshal(view)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.NotContains(t, decoded, "activation")
	assert.NotContains(t, decoded, "hoursUntilNotification")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusFor_NoActiveEscape(t *testing.T) {
	mock, _, controller := setupController(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT`).
		WillReturnError(sql.ErrNoRows)

	view, err := controller.StatusFor(ctx, "family-1", "user-a")

	require.NoError(t, err)
	assert.False(t, view.SafeEscapeActive)
	assert.Nil(t, view.Activation)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHoursUntilNotification(t *testing.T) {
	_, _, controller := setupController(t)

	activatedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 72},
		{24 * time.Hour, 48},
		{71 * time.Hour, 1},
		{71*time.Hour + 30*time.Minute, 1}, // partial hours round up
		{72 * time.Hour, 0},
		{100 * time.Hour, 0}, // floored at zero
	}

	for _, tc := range cases {
		got := controller.HoursUntilNotification(activatedAt, activatedAt.Add(tc.elapsed))
		assert.Equal(t, tc.want, got, "elapsed=%v", tc.elapsed)
	}
}

func TestShouldSendNotification(t *testing.T) {
	_, _, controller := setupController(t)

	activatedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, controller.ShouldSendNotification(activatedAt, activatedAt.Add(24*time.Hour)))
	assert.False(t, controller.ShouldSendNotification(activatedAt, activatedAt.Add(72*time.Hour-time.Second)))
	assert.True(t, controller.ShouldSendNotification(activatedAt, activatedAt.Add(72*time.Hour)))
	assert.True(t, controller.ShouldSendNotification(activatedAt, activatedAt.Add(96*time.Hour)))
}
