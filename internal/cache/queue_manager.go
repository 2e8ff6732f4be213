package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"safesignal/internal/config"
	"safesignal/internal/models"
)

// ErrEntryNotFound is returned when no offline queue entry exists for a
// signal id.
var ErrEntryNotFound = fmt.Errorf("offline queue entry not found")

// QueueManager keeps the offline retry queue in Redis: one entry per
// undelivered signal, keyed by signal id, plus SETNX idempotency marks so a
// retried delivery never creates a second signal.
type QueueManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewQueueManager creates the queue manager.
func NewQueueManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *QueueManager {
	return &QueueManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

func (m *QueueManager) queueKey(signalID string) string {
	return m.config.Signal.Cache.QueueKeyPrefix + signalID
}

func (m *QueueManager) sentKey(signalID string) string {
	return m.config.Signal.Cache.SentKeyPrefix + signalID
}

// Put writes (or overwrites) the queue entry for a signal. Entries carry no
// TTL: a queued signal is never silently dropped, only delivered or
// explicitly abandoned after the retry cap.
func (m *QueueManager) Put(ctx context.Context, entry *models.OfflineQueueEntry) error {
	if entry == nil {
		return fmt.Errorf("entry is required")
	}
	if entry.Signal.SignalID == "" {
		return fmt.Errorf("entry.signal.signal_id is required")
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal queue entry: %w", err)
	}

	if err := m.redisClient.Set(ctx, m.queueKey(entry.Signal.SignalID), jsonData, 0).Err(); err != nil {
		return fmt.Errorf("failed to set queue entry: %w", err)
	}

	m.logger.Debug("Offline queue entry stored",
		zap.String("signal_id", entry.Signal.SignalID),
		zap.Int("retry_count", entry.RetryCount),
	)

	return nil
}

// Get reads the queue entry for a signal. Returns ErrEntryNotFound when the
// signal is no longer queued.
func (m *QueueManager) Get(ctx context.Context, signalID string) (*models.OfflineQueueEntry, error) {
	if signalID == "" {
		return nil, fmt.Errorf("signal_id is required")
	}

	val, err := m.redisClient.Get(ctx, m.queueKey(signalID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	var entry models.OfflineQueueEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue entry: %w", err)
	}

	return &entry, nil
}

// Remove deletes the queue entry after delivery or abandonment.
func (m *QueueManager) Remove(ctx context.Context, signalID string) error {
	if signalID == "" {
		return fmt.Errorf("signal_id is required")
	}

	if err := m.redisClient.Del(ctx, m.queueKey(signalID)).Err(); err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	return nil
}

// PendingSignalIDs scans the queue key space and returns the ids of every
// queued signal.
func (m *QueueManager) PendingSignalIDs(ctx context.Context) ([]string, error) {
	pattern := m.config.Signal.Cache.QueueKeyPrefix + "*"

	var signalIDs []string
	iter := m.redisClient.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		signalIDs = append(signalIDs, key[len(m.config.Signal.Cache.QueueKeyPrefix):])
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan queue keys: %w", err)
	}

	return signalIDs, nil
}

// MarkSent sets the idempotency mark for a signal. Returns true when this
// caller is the first to send the signal; false when a previous attempt
// already went out, in which case the retry must not produce a duplicate.
func (m *QueueManager) MarkSent(ctx context.Context, signalID string) (bool, error) {
	if signalID == "" {
		return false, fmt.Errorf("signal_id is required")
	}

	ttl := time.Duration(m.config.Signal.Cache.SentTTL) * time.Second
	first, err := m.redisClient.SetNX(ctx, m.sentKey(signalID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set sent mark: %w", err)
	}
	return first, nil
}

// ClearSentMark removes the idempotency mark so a failed send can be retried.
func (m *QueueManager) ClearSentMark(ctx context.Context, signalID string) error {
	if signalID == "" {
		return fmt.Errorf("signal_id is required")
	}

	if err := m.redisClient.Del(ctx, m.sentKey(signalID)).Err(); err != nil {
		return fmt.Errorf("failed to clear sent mark: %w", err)
	}
	return nil
}
