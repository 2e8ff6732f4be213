package delivery

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"safesignal/internal/cache"
)

// StreamNotifier publishes guardian events onto a Redis stream consumed by
// the notification collaborator.
type StreamNotifier struct {
	redisClient *redis.Client
	stream      string
	logger      *zap.Logger
}

// NewStreamNotifier creates the notifier for one stream.
func NewStreamNotifier(redisClient *redis.Client, stream string, logger *zap.Logger) *StreamNotifier {
	return &StreamNotifier{
		redisClient: redisClient,
		stream:      stream,
		logger:      logger,
	}
}

// Publish appends the event to the stream.
func (n *StreamNotifier) Publish(ctx context.Context, event GuardianEvent) error {
	if event.FamilyID == "" {
		return fmt.Errorf("family_id is required")
	}

	id, err := cache.PublishJSONToStream(ctx, n.redisClient, n.stream, event)
	if err != nil {
		return err
	}

	n.logger.Debug("Guardian event published",
		zap.String("type", event.Type),
		zap.String("stream_id", id),
	)

	return nil
}
