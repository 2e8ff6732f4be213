package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"safesignal/internal/models"
)

type fakePublisher struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return nil
}

func TestMQTTChannel_SendPublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	ch := NewMQTTChannel(pub, "safesignal/family/", 1, zap.NewNop())

	envelope := Envelope{
		Type:          TypeSafetySignalTriggered,
		SignalID:      "signal-1",
		TriggerMethod: models.TriggerKeyboardShortcut,
		Platform:      models.PlatformChromeExtension,
		Timestamp:     time.Now().UTC(),
		URL:           "https://school.example/homework",
	}

	err := ch.Send(context.Background(), "family-1", envelope)
	require.NoError(t, err)

	require.Len(t, pub.topics, 1)
	assert.Equal(t, "safesignal/family/family-1", pub.topics[0])

	var decoded Envelope
	require.NoError(t, json.Unmarshal(pub.payloads[0], &decoded))
	assert.Equal(t, TypeSafetySignalTriggered, decoded.Type)
	assert.Equal(t, "signal-1", decoded.SignalID)
	assert.Equal(t, models.TriggerKeyboardShortcut, decoded.TriggerMethod)
}

func TestMQTTChannel_SendValidatesFamilyID(t *testing.T) {
	ch := NewMQTTChannel(&fakePublisher{}, "safesignal/family/", 1, zap.NewNop())

	err := ch.Send(context.Background(), "", Envelope{Type: TypeSafetySignalTriggered})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "family_id is required")
}

func TestMQTTChannel_SendPropagatesPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unreachable")}
	ch := NewMQTTChannel(pub, "safesignal/family/", 1, zap.NewNop())

	err := ch.Send(context.Background(), "family-1", Envelope{Type: TypeSafetySignalTriggered})

	assert.Error(t, err)
}

func TestStreamNotifier_PublishAppendsToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	notifier := NewStreamNotifier(redisClient, "safesignal:guardian:events", zap.NewNop())

	event := GuardianEvent{
		Type:      TypeLocationPaused,
		FamilyID:  "family-1",
		Message:   LocationPausedMessage,
		Timestamp: time.Now().UTC(),
	}

	require.NoError(t, notifier.Publish(context.Background(), event))

	ctx := context.Background()
	entries, err := redisClient.XRange(ctx, "safesignal:guardian:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	raw, ok := entries[0].Values["data"].(string)
	require.True(t, ok)

	var decoded GuardianEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Equal(t, TypeLocationPaused, decoded.Type)
	assert.Equal(t, "family-1", decoded.FamilyID)
	assert.Equal(t, LocationPausedMessage, decoded.Message)
}

func TestStreamNotifier_PublishValidatesFamilyID(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	notifier := NewStreamNotifier(redisClient, "safesignal:guardian:events", zap.NewNop())

	err := notifier.Publish(context.Background(), GuardianEvent{Type: TypeLocationPaused})

	assert.Error(t, err)
}

func TestLocationPausedMessageStaysNeutral(t *testing.T) {
	// Guardians must never receive wording that implies emergency or danger.
	assert.Equal(t, "Location features paused", LocationPausedMessage)
}
