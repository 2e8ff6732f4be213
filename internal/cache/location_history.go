package cache

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// LocationHistory clears a family's cached location trail. Safe Escape calls
// this the instant it activates; the upstream store's purge is a collaborator
// concern, but the hot cache must go immediately.
type LocationHistory struct {
	redisClient *redis.Client
	keyPrefix   string
	logger      *zap.Logger
}

// NewLocationHistory creates the clearer. Keys look like
// <prefix><family_id>:<entry>.
func NewLocationHistory(redisClient *redis.Client, keyPrefix string, logger *zap.Logger) *LocationHistory {
	return &LocationHistory{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
		logger:      logger,
	}
}

// ClearFamilyHistory deletes every cached location entry for a family.
func (h *LocationHistory) ClearFamilyHistory(ctx context.Context, familyID string) error {
	if familyID == "" {
		return fmt.Errorf("family_id is required")
	}

	pattern := h.keyPrefix + familyID + ":*"

	var deleted int
	iter := h.redisClient.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := h.redisClient.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete location key: %w", err)
		}
		deleted++
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan location keys: %w", err)
	}

	h.logger.Info("Location history cleared",
		zap.String("family_id", familyID),
		zap.Int("deleted", deleted),
	)

	return nil
}
