package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"safesignal/internal/cache"
	"safesignal/internal/delivery"
)

const (
	ackReadBatch = 16
	ackReadBlock = 5 * time.Second
)

// AckConsumer reads delivery confirmations published by guardian apps from a
// Redis stream and advances the confirmed signals (sent -> delivered,
// delivered -> acknowledged). Consumer-group reads give each confirmation
// at-least-once handling across restarts; the versioned status update makes
// a redelivered confirmation a no-op instead of a double hop.
type AckConsumer struct {
	pipeline    *Pipeline
	redisClient *redis.Client
	consumer    string
	block       time.Duration
	logger      *zap.Logger
}

// NewAckConsumer creates the consumer. consumer names this instance within
// the group.
func NewAckConsumer(pipeline *Pipeline, redisClient *redis.Client, consumer string, logger *zap.Logger) *AckConsumer {
	return &AckConsumer{
		pipeline:    pipeline,
		redisClient: redisClient,
		consumer:    consumer,
		block:       ackReadBlock,
		logger:      logger,
	}
}

// Start creates the consumer group and reads confirmations until the context
// is canceled. Read errors are logged and retried after a short pause.
func (c *AckConsumer) Start(ctx context.Context) error {
	stream := c.pipeline.config.Signal.AckStream
	group := c.pipeline.config.Signal.AckGroup

	if err := cache.CreateConsumerGroup(ctx, c.redisClient, stream, group); err != nil {
		return fmt.Errorf("failed to create ack consumer group: %w", err)
	}

	c.logger.Info("Ack consumer started",
		zap.String("stream", stream),
		zap.String("group", group),
		zap.String("consumer", c.consumer),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Ack consumer stopped")
			return nil
		default:
		}

		if err := c.ConsumeOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			c.logger.Error("Failed to consume confirmations",
				zap.Error(err),
			)
			time.Sleep(time.Second)
		}
	}
}

// ConsumeOnce reads one batch of confirmations and applies each. Malformed
// or stale confirmations are logged and acked so they cannot wedge the
// stream; the signal they point at is unchanged.
func (c *AckConsumer) ConsumeOnce(ctx context.Context) error {
	stream := c.pipeline.config.Signal.AckStream
	group := c.pipeline.config.Signal.AckGroup

	messages, err := cache.ReadFromStream(ctx, c.redisClient, stream, group, c.consumer, ackReadBatch, c.block)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		c.apply(ctx, msg)

		if err := cache.AckMessages(ctx, c.redisClient, stream, group, msg.ID); err != nil {
			c.logger.Error("Failed to ack confirmation",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

func (c *AckConsumer) apply(ctx context.Context, msg cache.StreamMessage) {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		c.logger.Warn("Confirmation message has no data field",
			zap.String("message_id", msg.ID),
		)
		return
	}

	var confirmation delivery.Confirmation
	if err := json.Unmarshal([]byte(raw), &confirmation); err != nil {
		c.logger.Warn("Failed to decode confirmation",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return
	}

	if confirmation.FamilyID == "" || confirmation.SignalID == "" {
		c.logger.Warn("Confirmation missing family or signal id",
			zap.String("message_id", msg.ID),
		)
		return
	}

	var err error
	switch confirmation.Type {
	case delivery.ConfirmDelivered:
		err = c.pipeline.MarkDelivered(ctx, confirmation.FamilyID, confirmation.SignalID)
	case delivery.ConfirmAcknowledged:
		err = c.pipeline.MarkAcknowledged(ctx, confirmation.FamilyID, confirmation.SignalID)
	default:
		c.logger.Warn("Unknown confirmation type",
			zap.String("message_id", msg.ID),
			zap.String("type", confirmation.Type),
		)
		return
	}

	if err != nil {
		// A stale or out-of-order confirmation; the transition table and
		// version check already protected the signal.
		c.logger.Warn("Failed to apply confirmation",
			zap.String("signal_id", confirmation.SignalID),
			zap.String("type", confirmation.Type),
			zap.Error(err),
		)
	}
}
