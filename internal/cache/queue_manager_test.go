package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"safesignal/internal/config"
	"safesignal/internal/models"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client, *QueueManager) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cfg := &config.Config{}
	cfg.Signal.Cache.QueueKeyPrefix = "safesignal:queue:"
	cfg.Signal.Cache.SentKeyPrefix = "safesignal:sent:"
	cfg.Signal.Cache.SentTTL = 3600

	logger := zap.NewNop()
	manager := NewQueueManager(cfg, redisClient, logger)

	return mr, redisClient, manager
}

func queuedSignal(signalID string) models.SafetySignal {
	return models.SafetySignal{
		SignalID:      signalID,
		ChildID:       "child-1",
		FamilyID:      "family-1",
		TriggerMethod: models.TriggerLogoTap,
		Platform:      models.PlatformWeb,
		Status:        models.StatusQueued,
		OfflineQueued: true,
		TriggeredAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestQueueManager_PutAndGet(t *testing.T) {
	_, _, manager := setupTestRedis(t)
	ctx := context.Background()

	entry := &models.OfflineQueueEntry{
		Signal:   queuedSignal("signal-1"),
		QueuedAt: time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, manager.Put(ctx, entry))

	got, err := manager.Get(ctx, "signal-1")
	require.NoError(t, err)
	assert.Equal(t, "signal-1", got.Signal.SignalID)
	assert.Equal(t, models.StatusQueued, got.Signal.Status)
	assert.True(t, got.Signal.OfflineQueued)
	assert.Equal(t, 0, got.RetryCount)
	assert.Nil(t, got.LastRetryAt)
}

func TestQueueManager_GetNotFound(t *testing.T) {
	_, _, manager := setupTestRedis(t)

	_, err := manager.Get(context.Background(), "signal-missing")

	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestQueueManager_PutValidation(t *testing.T) {
	_, _, manager := setupTestRedis(t)
	ctx := context.Background()

	err := manager.Put(ctx, nil)
	assert.Error(t, err)

	err = manager.Put(ctx, &models.OfflineQueueEntry{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "signal_id is required")
}

func TestQueueManager_RetryBookkeeping(t *testing.T) {
	_, _, manager := setupTestRedis(t)
	ctx := context.Background()

	entry := &models.OfflineQueueEntry{
		Signal:   queuedSignal("signal-2"),
		QueuedAt: time.Now().UTC(),
	}
	require.NoError(t, manager.Put(ctx, entry))

	lastRetry := time.Now().UTC().Truncate(time.Second)
	entry.RetryCount = 3
	entry.LastRetryAt = &lastRetry
	require.NoError(t, manager.Put(ctx, entry))

	got, err := manager.Get(ctx, "signal-2")
	require.NoError(t, err)
	assert.Equal(t, 3, got.RetryCount)
	require.NotNil(t, got.LastRetryAt)
	assert.True(t, got.LastRetryAt.Equal(lastRetry))
}

func TestQueueManager_Remove(t *testing.T) {
	_, _, manager := setupTestRedis(t)
	ctx := context.Background()

	entry := &models.OfflineQueueEntry{
		Signal:   queuedSignal("signal-3"),
		QueuedAt: time.Now().UTC(),
	}
	require.NoError(t, manager.Put(ctx, entry))
	require.NoError(t, manager.Remove(ctx, "signal-3"))

	_, err := manager.Get(ctx, "signal-3")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestQueueManager_PendingSignalIDs(t *testing.T) {
	mr, _, manager := setupTestRedis(t)
	ctx := context.Background()

	for _, id := range []string{"signal-a", "signal-b", "signal-c"} {
		require.NoError(t, manager.Put(ctx, &models.OfflineQueueEntry{
			Signal:   queuedSignal(id),
			QueuedAt: time.Now().UTC(),
		}))
	}
	// Unrelated keys must not leak into the result.
	mr.Set("other:key", "x")

	ids, err := manager.PendingSignalIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"signal-a", "signal-b", "signal-c"}, ids)
}

func TestQueueManager_MarkSentIsFirstWriterWins(t *testing.T) {
	_, _, manager := setupTestRedis(t)
	ctx := context.Background()

	first, err := manager.MarkSent(ctx, "signal-4")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := manager.MarkSent(ctx, "signal-4")
	require.NoError(t, err)
	assert.False(t, second)
}

func TestQueueManager_ClearSentMarkAllowsResend(t *testing.T) {
	_, _, manager := setupTestRedis(t)
	ctx := context.Background()

	first, err := manager.MarkSent(ctx, "signal-5")
	require.NoError(t, err)
	require.True(t, first)

	require.NoError(t, manager.ClearSentMark(ctx, "signal-5"))

	again, err := manager.MarkSent(ctx, "signal-5")
	require.NoError(t, err)
	assert.True(t, again)
}
