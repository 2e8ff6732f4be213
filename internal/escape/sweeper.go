package escape

import (
	"context"
	"time"

	"go.uber.org/zap"

	"safesignal/internal/delivery"
	"safesignal/internal/repository"
)

// Sweeper fires due Safe Escape notifications. The 72-hour deadline spans
// process restarts, so it is re-evaluated from the database on every pass
// rather than held as an in-memory timer: a tick missed at the exact deadline
// fires on the next sweep (at-least-once).
type Sweeper struct {
	repo     *repository.SafeEscapeRepository
	notifier delivery.GuardianNotifier
	delay    time.Duration
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSweeper creates the sweeper.
func NewSweeper(
	repo *repository.SafeEscapeRepository,
	notifier delivery.GuardianNotifier,
	delay time.Duration,
	interval time.Duration,
	logger *zap.Logger,
) *Sweeper {
	return &Sweeper{
		repo:     repo,
		notifier: notifier,
		delay:    delay,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start runs the sweep loop until the context is canceled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info("Safe escape sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("delay", s.delay),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Sweep immediately so notifications missed during downtime go out on
	// startup.
	if err := s.SweepOnce(ctx); err != nil {
		s.logger.Error("Failed to sweep due notifications on startup",
			zap.Error(err),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Safe escape sweeper stopped")
			return nil
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("Failed to sweep due notifications",
					zap.Error(err),
				)
			}
		}
	}
}

// SweepOnce publishes the neutral notice for every activation whose silent
// window has elapsed, then stamps it so it is not repeated.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	now := s.now()
	cutoff := now.Add(-s.delay)

	due, err := s.repo.ListDueNotifications(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, activation := range due {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		event := delivery.GuardianEvent{
			Type:      delivery.TypeLocationPaused,
			FamilyID:  activation.FamilyID,
			Message:   delivery.LocationPausedMessage,
			Timestamp: now,
		}

		if err := s.notifier.Publish(ctx, event); err != nil {
			// Not stamped; the next sweep retries.
			s.logger.Error("Failed to publish safe escape notification",
				zap.String("activation_id", activation.ActivationID),
				zap.Error(err),
			)
			continue
		}

		if err := s.repo.MarkNotificationSent(ctx, activation.ActivationID, now); err != nil {
			s.logger.Error("Failed to mark notification sent",
				zap.String("activation_id", activation.ActivationID),
				zap.Error(err),
			)
			continue
		}

		s.logger.Info("Safe escape notification sent",
			zap.String("activation_id", activation.ActivationID),
			zap.String("family_id", activation.FamilyID),
		)
	}

	return nil
}
