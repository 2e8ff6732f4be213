package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"safesignal/internal/models"
)

// RetryConsumer sweeps the offline queue at a fixed interval and re-attempts
// delivery for every queued signal. Retries are bounded: past the configured
// cap an entry is abandoned with a warning, never retried unboundedly and
// never left to fail silently forever.
type RetryConsumer struct {
	pipeline *Pipeline
	logger   *zap.Logger
}

// NewRetryConsumer creates the consumer.
func NewRetryConsumer(pipeline *Pipeline, logger *zap.Logger) *RetryConsumer {
	return &RetryConsumer{
		pipeline: pipeline,
		logger:   logger,
	}
}

// Start runs the sweep loop until the context is canceled. A failed sweep is
// logged and the loop continues.
func (c *RetryConsumer) Start(ctx context.Context) error {
	interval := time.Duration(c.pipeline.config.Signal.RetryInterval) * time.Second

	c.logger.Info("Retry consumer started",
		zap.Duration("interval", interval),
		zap.Int("max_retries", c.pipeline.config.Signal.MaxRetries),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// One sweep right away so a restart picks up stranded signals.
	if err := c.SweepOnce(ctx); err != nil {
		c.logger.Error("Failed to sweep offline queue on startup",
			zap.Error(err),
		)
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Retry consumer stopped")
			return nil
		case <-ticker.C:
			if err := c.SweepOnce(ctx); err != nil {
				c.logger.Error("Failed to sweep offline queue",
					zap.Error(err),
				)
			}
		}
	}
}

// SweepOnce processes every queued signal a single time.
func (c *RetryConsumer) SweepOnce(ctx context.Context) error {
	if !c.pipeline.online() {
		c.logger.Debug("Transport offline, skipping sweep")
		return nil
	}

	signalIDs, err := c.pipeline.queue.PendingSignalIDs(ctx)
	if err != nil {
		return err
	}

	queued := make(map[string]bool, len(signalIDs))
	for _, signalID := range signalIDs {
		queued[signalID] = true
	}

	for _, signalID := range signalIDs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entry, err := c.pipeline.queue.Get(ctx, signalID)
		if err != nil {
			// Delivered or abandoned between scan and read.
			c.logger.Debug("Queue entry vanished during sweep",
				zap.String("signal_id", signalID),
				zap.Error(err),
			)
			continue
		}

		if entry.RetryCount >= c.pipeline.config.Signal.MaxRetries {
			c.abandon(ctx, entry)
			continue
		}

		// Retries rebuild the envelope from the signal alone; the page URL
		// from the original gesture is not persisted with the queue entry.
		c.pipeline.sendSilently(ctx, entry, "")
	}

	return c.reconcileStranded(ctx, queued)
}

// reconcileStranded re-queues undelivered signals whose retry-queue entry is
// missing, e.g. when the queue write failed right after the signal row was
// created. Queued and pending signals must always be covered by a queue
// entry; a stranded row would otherwise never be retried.
func (c *RetryConsumer) reconcileStranded(ctx context.Context, queued map[string]bool) error {
	signals, err := c.pipeline.signalsRepo.ListUndeliveredSignals(ctx)
	if err != nil {
		return err
	}

	for _, signal := range signals {
		if queued[signal.SignalID] {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entry := &models.OfflineQueueEntry{
			Signal:   signal,
			QueuedAt: c.pipeline.now(),
		}
		if err := c.pipeline.queue.Put(ctx, entry); err != nil {
			c.logger.Error("Failed to re-queue stranded signal",
				zap.String("signal_id", signal.SignalID),
				zap.Error(err),
			)
			continue
		}

		c.logger.Warn("Re-queued stranded signal",
			zap.String("signal_id", signal.SignalID),
			zap.String("status", signal.Status),
		)

		c.pipeline.sendSilently(ctx, entry, "")
	}

	return nil
}

// abandon removes an entry past the retry cap. The child still sees nothing;
// the operator sees a warning.
func (c *RetryConsumer) abandon(ctx context.Context, entry *models.OfflineQueueEntry) {
	signalID := entry.Signal.SignalID

	if err := c.pipeline.queue.Remove(ctx, signalID); err != nil {
		c.logger.Error("Failed to remove abandoned queue entry",
			zap.String("signal_id", signalID),
			zap.Error(err),
		)
		return
	}

	if err := c.pipeline.signalsRepo.SetOfflineQueued(ctx, entry.Signal.FamilyID, signalID, false); err != nil {
		c.logger.Debug("Failed to clear offline_queued on abandonment",
			zap.String("signal_id", signalID),
			zap.Error(err),
		)
	}

	c.logger.Warn("Safety signal abandoned after max retries",
		zap.String("signal_id", signalID),
		zap.Int("retry_count", entry.RetryCount),
	)
}
