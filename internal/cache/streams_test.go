package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreams_ConsumerGroupRoundTrip(t *testing.T) {
	_, redisClient, _ := setupTestRedis(t)
	ctx := context.Background()

	const stream = "safesignal:test:stream"
	const group = "safesignal-test"

	require.NoError(t, CreateConsumerGroup(ctx, redisClient, stream, group))
	// Recreating the group must be tolerated.
	require.NoError(t, CreateConsumerGroup(ctx, redisClient, stream, group))

	payload := map[string]string{"signalId": "signal-1"}
	id, err := PublishJSONToStream(ctx, redisClient, stream, payload)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	messages, err := ReadFromStream(ctx, redisClient, stream, group, "consumer-1", 10, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, id, messages[0].ID)

	var decoded map[string]string
	raw, ok := messages[0].Values["data"].(string)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Equal(t, "signal-1", decoded["signalId"])

	require.NoError(t, AckMessages(ctx, redisClient, stream, group, id))

	// Acked and consumed: a fresh read returns nothing new.
	messages, err = ReadFromStream(ctx, redisClient, stream, group, "consumer-1", 10, time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, messages)
}
