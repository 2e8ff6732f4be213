// Package escape implements Safe Escape: instant location-disable for a
// family with a silent 72-hour window before guardians are told, reversible
// only by the member who activated it.
package escape

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"safesignal/internal/models"
	"safesignal/internal/repository"
)

// ErrNotActivator is the handled authorization failure for a reenable attempt
// by anyone but the activator. The message is deliberately generic.
var ErrNotActivator = fmt.Errorf("not authorized")

// HistoryClearer wipes a family's location trail. Implemented by the cache
// layer; the upstream store's purge belongs to a storage collaborator.
type HistoryClearer interface {
	ClearFamilyHistory(ctx context.Context, familyID string) error
}

// StatusView is what a family member sees about Safe Escape. For anyone but
// the activator the activation, countdown, and every timestamp are omitted
// from the serialized form entirely, not masked.
type StatusView struct {
	SafeEscapeActive       bool                         `json:"safeEscapeActive"`
	Activation             *models.SafeEscapeActivation `json:"activation,omitempty"`
	HoursUntilNotification *int                         `json:"hoursUntilNotification,omitempty"`
}

// Controller owns Safe Escape activations.
type Controller struct {
	repo    *repository.SafeEscapeRepository
	clearer HistoryClearer
	delay   time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewController creates the controller. delay is the silent window before the
// guardian notification goes out.
func NewController(
	repo *repository.SafeEscapeRepository,
	clearer HistoryClearer,
	delay time.Duration,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		repo:    repo,
		clearer: clearer,
		delay:   delay,
		logger:  logger,
		now:     time.Now,
	}
}

// Activate disables location sharing for the family immediately, with no
// confirmation step. Calling it while an activation is already active is
// idempotent and returns the existing record: the button must always work
// instantly and must never raise a visible error.
func (c *Controller) Activate(ctx context.Context, familyID, activatedBy string) (*models.SafeEscapeActivation, error) {
	if familyID == "" {
		return nil, fmt.Errorf("family_id is required")
	}
	if activatedBy == "" {
		return nil, fmt.Errorf("activated_by is required")
	}

	existing, err := c.repo.GetActiveActivation(ctx, familyID)
	if err == nil {
		return existing, nil
	}
	if err != repository.ErrActivationNotFound {
		return nil, err
	}

	now := c.now()
	activation := &models.SafeEscapeActivation{
		ActivationID:           uuid.New().String(),
		FamilyID:               familyID,
		ActivatedBy:            activatedBy,
		ActivatedAt:            now,
		ClearedLocationHistory: true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := c.repo.CreateActivation(ctx, activation); err != nil {
		return nil, err
	}

	if err := c.clearer.ClearFamilyHistory(ctx, familyID); err != nil {
		// Location sharing is already off; a failed cache wipe must not undo
		// the activation. Flag it for the operator.
		c.logger.Error("Failed to clear location history",
			zap.String("family_id", familyID),
			zap.Error(err),
		)
	}

	c.logger.Info("Safe escape activated",
		zap.String("activation_id", activation.ActivationID),
		zap.String("family_id", familyID),
	)

	return activation, nil
}

// Reenable turns location sharing back on. Only the activator may reverse an
// activation; anyone else gets ErrNotActivator and no state changes.
func (c *Controller) Reenable(ctx context.Context, activationID, requestedBy string) (*models.SafeEscapeActivation, error) {
	if activationID == "" {
		return nil, fmt.Errorf("activation_id is required")
	}
	if requestedBy == "" {
		return nil, fmt.Errorf("requested_by is required")
	}

	activation, err := c.repo.GetActivation(ctx, activationID)
	if err != nil {
		return nil, err
	}

	if activation.ActivatedBy != requestedBy {
		return nil, ErrNotActivator
	}

	now := c.now()
	if err := c.repo.Reenable(ctx, activationID, requestedBy, now); err != nil {
		return nil, err
	}

	activation.ReenabledAt = &now
	activation.ReenabledBy = &requestedBy
	activation.UpdatedAt = now

	c.logger.Info("Safe escape reenabled",
		zap.String("activation_id", activationID),
	)

	return activation, nil
}

// StatusFor builds the Safe Escape view for one family member. The full
// record is only ever shown to the activator.
func (c *Controller) StatusFor(ctx context.Context, familyID, viewerID string) (*StatusView, error) {
	if familyID == "" {
		return nil, fmt.Errorf("family_id is required")
	}

	activation, err := c.repo.GetActiveActivation(ctx, familyID)
	if err != nil {
		if err == repository.ErrActivationNotFound {
			return &StatusView{SafeEscapeActive: false}, nil
		}
		return nil, err
	}

	view := &StatusView{SafeEscapeActive: true}
	if viewerID == activation.ActivatedBy {
		hours := c.HoursUntilNotification(activation.ActivatedAt, c.now())
		view.Activation = activation
		view.HoursUntilNotification = &hours
	}

	return view, nil
}

// HoursUntilNotification is the whole hours left in the silent window,
// rounded up, floored at zero.
func (c *Controller) HoursUntilNotification(activatedAt, now time.Time) int {
	remaining := c.delay - now.Sub(activatedAt)
	if remaining <= 0 {
		return 0
	}
	hours := int(remaining / time.Hour)
	if remaining%time.Hour != 0 {
		hours++
	}
	return hours
}

// ShouldSendNotification reports whether the silent window has elapsed.
func (c *Controller) ShouldSendNotification(activatedAt, now time.Time) bool {
	return now.Sub(activatedAt) >= c.delay
}
