package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"safesignal/internal/cache"
	"safesignal/internal/delivery"
	"safesignal/internal/models"
)

func setupAckConsumer(t *testing.T, f *pipelineFixture) *AckConsumer {
	ctx := context.Background()
	require.NoError(t, cache.CreateConsumerGroup(ctx, f.redisClient,
		f.pipeline.config.Signal.AckStream, f.pipeline.config.Signal.AckGroup))

	consumer := NewAckConsumer(f.pipeline, f.redisClient, "consumer-1", zap.NewNop())
	consumer.block = time.Millisecond
	return consumer
}

func publishConfirmation(t *testing.T, f *pipelineFixture, confirmation delivery.Confirmation) {
	ctx := context.Background()
	_, err := cache.PublishJSONToStream(ctx, f.redisClient,
		f.pipeline.config.Signal.AckStream, confirmation)
	require.NoError(t, err)
}

func TestAckConsumer_DeliveredConfirmationAdvancesSignal(t *testing.T) {
	f := setupPipeline(t, true)
	consumer := setupAckConsumer(t, f)
	ctx := context.Background()

	publishConfirmation(t, f, delivery.Confirmation{
		Type:     delivery.ConfirmDelivered,
		FamilyID: "family-1",
		SignalID: "signal-1",
	})

	f.mock.ExpectQuery(`SELECT`).
		WillReturnRows(signalRow("signal-1", "family-1", models.StatusSent, false, 3))
	f.mock.ExpectExec(`UPDATE safety_signals`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, consumer.ConsumeOnce(ctx))

	// The transition went out to the guardian notifier.
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, delivery.TypeSignalDelivered, f.notifier.events[0].Type)
	assert.Equal(t, "signal-1", f.notifier.events[0].SignalID)

	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAckConsumer_AcknowledgedConfirmation(t *testing.T) {
	f := setupPipeline(t, true)
	consumer := setupAckConsumer(t, f)
	ctx := context.Background()

	publishConfirmation(t, f, delivery.Confirmation{
		Type:     delivery.ConfirmAcknowledged,
		FamilyID: "family-1",
		SignalID: "signal-1",
	})

	f.mock.ExpectQuery(`SELECT`).
		WillReturnRows(signalRow("signal-1", "family-1", models.StatusDelivered, false, 4))
	f.mock.ExpectExec(`UPDATE safety_signals`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, consumer.ConsumeOnce(ctx))

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, delivery.TypeSignalAcknowledged, f.notifier.events[0].Type)

	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAckConsumer_StaleConfirmationIsAckedWithoutTransition(t *testing.T) {
	f := setupPipeline(t, true)
	consumer := setupAckConsumer(t, f)
	ctx := context.Background()

	// The signal is already delivered; a redelivered DELIVERED confirmation
	// must not produce a second hop or wedge the stream.
	publishConfirmation(t, f, delivery.Confirmation{
		Type:     delivery.ConfirmDelivered,
		FamilyID: "family-1",
		SignalID: "signal-1",
	})

	f.mock.ExpectQuery(`SELECT`).
		WillReturnRows(signalRow("signal-1", "family-1", models.StatusDelivered, false, 4))
	// No UPDATE expectation: the transition table rejects delivered -> delivered.

	require.NoError(t, consumer.ConsumeOnce(ctx))

	assert.Empty(t, f.notifier.events)

	// The message was acked: a second pass reads nothing and touches no state.
	require.NoError(t, consumer.ConsumeOnce(ctx))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAckConsumer_MalformedConfirmationIsSkipped(t *testing.T) {
	f := setupPipeline(t, true)
	consumer := setupAckConsumer(t, f)
	ctx := context.Background()

	publishConfirmation(t, f, delivery.Confirmation{
		Type: delivery.ConfirmDelivered,
		// no family or signal id
	})
	publishConfirmation(t, f, delivery.Confirmation{
		Type:     "UNKNOWN",
		FamilyID: "family-1",
		SignalID: "signal-1",
	})

	// Neither message reaches the repository.
	require.NoError(t, consumer.ConsumeOnce(ctx))

	assert.Empty(t, f.notifier.events)
	require.NoError(t, f.mock.ExpectationsWereMet())
}
