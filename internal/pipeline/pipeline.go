// Package pipeline turns accepted triggers into safety signals and walks
// them through delivery. Everything on the child-facing path is silent:
// delivery failures are swallowed here, logged at debug, and converted into
// retry-queue updates. sendSilently is the single place that policy lives.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"safesignal/internal/cache"
	"safesignal/internal/config"
	"safesignal/internal/delivery"
	"safesignal/internal/models"
	"safesignal/internal/repository"
	"safesignal/internal/trigger"
)

// ErrInvalidTransition is returned when a caller asks for a status hop the
// transition table does not allow.
var ErrInvalidTransition = fmt.Errorf("invalid signal status transition")

// Pipeline creates safety signals from accepted triggers, delivers them, and
// owns the offline retry queue. Implements trigger.Sink.
type Pipeline struct {
	config      *config.Config
	signalsRepo *repository.SafetySignalsRepository
	triggerRepo *repository.TriggerEventsRepository
	queue       *cache.QueueManager
	channel     delivery.Channel
	notifier    delivery.GuardianNotifier
	logger      *zap.Logger

	// online reports transport connectivity; nil means always online.
	online func() bool
	now    func() time.Time
}

// NewPipeline wires the pipeline.
func NewPipeline(
	cfg *config.Config,
	signalsRepo *repository.SafetySignalsRepository,
	triggerRepo *repository.TriggerEventsRepository,
	queue *cache.QueueManager,
	channel delivery.Channel,
	notifier delivery.GuardianNotifier,
	online func() bool,
	logger *zap.Logger,
) *Pipeline {
	if online == nil {
		online = func() bool { return true }
	}
	return &Pipeline{
		config:      cfg,
		signalsRepo: signalsRepo,
		triggerRepo: triggerRepo,
		queue:       queue,
		channel:     channel,
		notifier:    notifier,
		logger:      logger,
		online:      online,
		now:         time.Now,
	}
}

// Trigger handles one accepted (non-debounced) gesture: it creates the
// signal and the trigger event, queues the signal, and attempts immediate
// delivery when the transport is up. Once a trigger clears the debounce gate
// it is never abandoned silently: the signal either completes delivery or
// stays queued for the retry sweep.
func (p *Pipeline) Trigger(ctx context.Context, req trigger.Request) error {
	if req.ChildID == "" || req.FamilyID == "" {
		return fmt.Errorf("child_id and family_id are required")
	}

	now := p.now()
	triggeredAt := req.Timestamp
	if triggeredAt.IsZero() {
		triggeredAt = now
	}

	offline := !p.online()
	status := models.StatusPending
	if offline {
		status = models.StatusQueued
	}

	signal := models.SafetySignal{
		SignalID:      uuid.New().String(),
		ChildID:       req.ChildID,
		FamilyID:      req.FamilyID,
		DeviceID:      req.DeviceID,
		TriggerMethod: req.TriggerMethod,
		Platform:      req.Platform,
		Status:        status,
		OfflineQueued: offline,
		TriggeredAt:   triggeredAt,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := p.signalsRepo.CreateSafetySignal(ctx, req.FamilyID, &signal); err != nil {
		return fmt.Errorf("failed to create signal: %w", err)
	}

	event := models.TriggerEvent{
		EventID:       uuid.New().String(),
		SignalID:      signal.SignalID,
		ChildID:       signal.ChildID,
		TriggerMethod: signal.TriggerMethod,
		Platform:      signal.Platform,
		Timestamp:     triggeredAt,
	}
	if err := p.triggerRepo.CreateTriggerEvent(ctx, &event); err != nil {
		// The signal exists and will be delivered; a lost audit row must not
		// stop it.
		p.logger.Error("Failed to create trigger event",
			zap.String("signal_id", signal.SignalID),
			zap.Error(err),
		)
	}

	entry := &models.OfflineQueueEntry{
		Signal:   signal,
		QueuedAt: now,
	}
	if err := p.queue.Put(ctx, entry); err != nil {
		// The Postgres row exists but has no queue entry. Flag the row so
		// the retry sweep's reconcile pass re-queues it.
		p.logger.Warn("Signal stored but not queued for retry",
			zap.String("signal_id", signal.SignalID),
			zap.Error(err),
		)
		if markErr := p.signalsRepo.SetOfflineQueued(ctx, signal.FamilyID, signal.SignalID, true); markErr != nil {
			p.logger.Error("Failed to flag stranded signal",
				zap.String("signal_id", signal.SignalID),
				zap.Error(markErr),
			)
		}
		return fmt.Errorf("failed to queue signal: %w", err)
	}

	p.logger.Info("Safety signal created",
		zap.String("signal_id", signal.SignalID),
		zap.String("trigger_method", signal.TriggerMethod),
		zap.String("platform", signal.Platform),
		zap.Bool("offline_queued", offline),
	)

	if !offline {
		p.sendSilently(ctx, entry, req.URL)
	}

	return nil
}

// sendSilently is the one boundary where delivery errors die. Nothing that
// happens in here may surface on the child-facing path: failures log at
// debug and become retry bookkeeping. A retried attempt for an already-sent
// signal id finalizes without producing a second send.
func (p *Pipeline) sendSilently(ctx context.Context, entry *models.OfflineQueueEntry, url string) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Debug("Recovered delivery panic",
				zap.String("signal_id", entry.Signal.SignalID),
				zap.Any("panic", r),
			)
		}
	}()

	signalID := entry.Signal.SignalID

	first, err := p.queue.MarkSent(ctx, signalID)
	if err != nil {
		p.recordFailure(ctx, entry, err)
		return
	}

	if first {
		envelope := delivery.Envelope{
			Type:          delivery.TypeSafetySignalTriggered,
			SignalID:      signalID,
			TriggerMethod: entry.Signal.TriggerMethod,
			Platform:      entry.Signal.Platform,
			Timestamp:     entry.Signal.TriggeredAt,
			URL:           url,
		}

		if err := p.channel.Send(ctx, entry.Signal.FamilyID, envelope); err != nil {
			// Clear the mark so the retry sweep may send again.
			if clearErr := p.queue.ClearSentMark(ctx, signalID); clearErr != nil {
				p.logger.Debug("Failed to clear sent mark",
					zap.String("signal_id", signalID),
					zap.Error(clearErr),
				)
			}
			p.recordFailure(ctx, entry, err)
			return
		}
	}

	p.finalizeSend(ctx, entry)
}

// recordFailure increments the retry bookkeeping for an undelivered signal.
func (p *Pipeline) recordFailure(ctx context.Context, entry *models.OfflineQueueEntry, cause error) {
	now := p.now()
	entry.RetryCount++
	entry.LastRetryAt = &now

	// Flag the row as queue-covered so a lost queue entry is found by the
	// reconcile pass.
	if !entry.Signal.OfflineQueued {
		if err := p.signalsRepo.SetOfflineQueued(ctx, entry.Signal.FamilyID, entry.Signal.SignalID, true); err != nil {
			p.logger.Debug("Failed to flag signal as queued",
				zap.String("signal_id", entry.Signal.SignalID),
				zap.Error(err),
			)
		} else {
			entry.Signal.OfflineQueued = true
		}
	}

	if err := p.queue.Put(ctx, entry); err != nil {
		p.logger.Debug("Failed to update queue entry",
			zap.String("signal_id", entry.Signal.SignalID),
			zap.Error(err),
		)
	}

	p.logger.Debug("Signal delivery failed, queued for retry",
		zap.String("signal_id", entry.Signal.SignalID),
		zap.Int("retry_count", entry.RetryCount),
		zap.Error(cause),
	)
}

// finalizeSend advances the signal to sent and removes the queue entry. Each
// hop goes through the transition table and the versioned update, so a
// concurrent writer can never push the signal backward or skip a state.
func (p *Pipeline) finalizeSend(ctx context.Context, entry *models.OfflineQueueEntry) {
	familyID := entry.Signal.FamilyID
	signalID := entry.Signal.SignalID

	signal, err := p.signalsRepo.GetSafetySignal(ctx, familyID, signalID)
	if err != nil {
		p.logger.Debug("Failed to load signal after send",
			zap.String("signal_id", signalID),
			zap.Error(err),
		)
		return
	}

	for signal.Status == models.StatusQueued || signal.Status == models.StatusPending {
		next, _ := GetNextStatus(signal.Status)
		err := p.signalsRepo.UpdateSignalStatus(ctx, familyID, signalID, signal.Status, next, signal.Version)
		if err != nil {
			p.logger.Debug("Failed to advance signal after send",
				zap.String("signal_id", signalID),
				zap.String("from", signal.Status),
				zap.Error(err),
			)
			return
		}
		signal.Status = next
		signal.Version++
	}

	if entry.Signal.OfflineQueued {
		if err := p.signalsRepo.SetOfflineQueued(ctx, familyID, signalID, false); err != nil {
			p.logger.Debug("Failed to clear offline_queued",
				zap.String("signal_id", signalID),
				zap.Error(err),
			)
		}
	}

	if err := p.queue.Remove(ctx, signalID); err != nil {
		p.logger.Debug("Failed to remove queue entry",
			zap.String("signal_id", signalID),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("Safety signal sent",
		zap.String("signal_id", signalID),
		zap.Int("retry_count", entry.RetryCount),
	)
}

// MarkDelivered advances sent → delivered on transport confirmation and
// publishes the transition to the guardian notifier.
func (p *Pipeline) MarkDelivered(ctx context.Context, familyID, signalID string) error {
	return p.advance(ctx, familyID, signalID, models.StatusDelivered, delivery.TypeSignalDelivered)
}

// MarkAcknowledged advances delivered → acknowledged when a guardian acts on
// the signal. acknowledged is terminal.
func (p *Pipeline) MarkAcknowledged(ctx context.Context, familyID, signalID string) error {
	return p.advance(ctx, familyID, signalID, models.StatusAcknowledged, delivery.TypeSignalAcknowledged)
}

func (p *Pipeline) advance(ctx context.Context, familyID, signalID, to, eventType string) error {
	signal, err := p.signalsRepo.GetSafetySignal(ctx, familyID, signalID)
	if err != nil {
		return err
	}

	if !IsValidStatusTransition(signal.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, signal.Status, to)
	}

	if err := p.signalsRepo.UpdateSignalStatus(ctx, familyID, signalID, signal.Status, to, signal.Version); err != nil {
		return err
	}

	if err := p.notifier.Publish(ctx, delivery.GuardianEvent{
		Type:      eventType,
		FamilyID:  familyID,
		SignalID:  signalID,
		Timestamp: p.now(),
	}); err != nil {
		// The transition is durable; a lost notifier event is retried by the
		// collaborator, not by rolling the status back.
		p.logger.Error("Failed to publish guardian event",
			zap.String("signal_id", signalID),
			zap.String("type", eventType),
			zap.Error(err),
		)
	}

	return nil
}
