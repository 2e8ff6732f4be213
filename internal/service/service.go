package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"safesignal/internal/allowlist"
	"safesignal/internal/cache"
	"safesignal/internal/config"
	"safesignal/internal/database"
	"safesignal/internal/delivery"
	"safesignal/internal/escape"
	"safesignal/internal/guard"
	"safesignal/internal/pipeline"
	"safesignal/internal/repository"
	"safesignal/internal/trigger"
)

// SafeSignalService wires the signal pipeline, the crisis guard, and the
// safe escape controller for one family.
type SafeSignalService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *delivery.MQTTClient
	logger      *zap.Logger
	familyID    string

	signalsRepo *repository.SafetySignalsRepository
	triggerRepo *repository.TriggerEventsRepository
	escapeRepo  *repository.SafeEscapeRepository

	queue    *cache.QueueManager
	history  *cache.LocationHistory
	channel  *delivery.MQTTChannel
	notifier *delivery.StreamNotifier

	guard         *guard.CrisisGuard
	pipeline      *pipeline.Pipeline
	retryConsumer *pipeline.RetryConsumer
	ackConsumer   *pipeline.AckConsumer
	detectors     *trigger.DetectorFactory
	controller    *escape.Controller
	sweeper       *escape.Sweeper
}

// NewSafeSignalService connects Postgres, Redis, and the MQTT broker and
// builds every layer on top of them.
func NewSafeSignalService(cfg *config.Config, logger *zap.Logger, familyID string) (*SafeSignalService, error) {
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	mqttClient, err := delivery.NewMQTTClient(&cfg.MQTT)
	if err != nil {
		db.Close()
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect mqtt broker: %w", err)
	}

	signalsRepo := repository.NewSafetySignalsRepository(db, logger)
	triggerRepo := repository.NewTriggerEventsRepository(db, logger)
	escapeRepo := repository.NewSafeEscapeRepository(db, logger)

	queue := cache.NewQueueManager(cfg, redisClient, logger)
	history := cache.NewLocationHistory(redisClient, cfg.Escape.LocationKeyPrefix, logger)

	channel := delivery.NewMQTTChannel(mqttClient, cfg.Signal.DeviceTopic, cfg.MQTT.QoS, logger)
	notifier := delivery.NewStreamNotifier(redisClient, cfg.Signal.GuardianStream, logger)

	provider, err := allowlist.NewStaticProvider()
	if err != nil {
		db.Close()
		redisClient.Close()
		mqttClient.Disconnect()
		return nil, fmt.Errorf("failed to load crisis allowlist: %w", err)
	}
	crisisGuard := guard.NewCrisisGuard(allowlist.NewMatcher(provider))

	// Transport connectivity drives the online/offline branch of the
	// pipeline; the retry sweep picks up anything queued while disconnected.
	online := mqttClient.IsConnected

	signalPipeline := pipeline.NewPipeline(
		cfg,
		signalsRepo,
		triggerRepo,
		queue,
		channel,
		notifier,
		online,
		logger,
	)
	retryConsumer := pipeline.NewRetryConsumer(signalPipeline, logger)
	ackConsumer := pipeline.NewAckConsumer(signalPipeline, redisClient, "safesignal-"+familyID, logger)

	detectors := trigger.NewDetectorFactory(
		familyID,
		time.Duration(cfg.Signal.DebounceWindowMs)*time.Millisecond,
		signalPipeline,
		logger,
	)

	controller := escape.NewController(escapeRepo, history, cfg.Escape.NotificationDelay, logger)
	sweeper := escape.NewSweeper(
		escapeRepo,
		notifier,
		cfg.Escape.NotificationDelay,
		time.Duration(cfg.Escape.SweepInterval)*time.Second,
		logger,
	)

	return &SafeSignalService{
		config:        cfg,
		db:            db,
		redisClient:   redisClient,
		mqttClient:    mqttClient,
		logger:        logger,
		familyID:      familyID,
		signalsRepo:   signalsRepo,
		triggerRepo:   triggerRepo,
		escapeRepo:    escapeRepo,
		queue:         queue,
		history:       history,
		channel:       channel,
		notifier:      notifier,
		guard:         crisisGuard,
		pipeline:      signalPipeline,
		retryConsumer: retryConsumer,
		ackConsumer:   ackConsumer,
		detectors:     detectors,
		controller:    controller,
		sweeper:       sweeper,
	}, nil
}

// Guard exposes the crisis-site exemption checks.
func (s *SafeSignalService) Guard() *guard.CrisisGuard {
	return s.guard
}

// Pipeline exposes the signal pipeline, the sink the gesture detectors feed.
func (s *SafeSignalService) Pipeline() *pipeline.Pipeline {
	return s.pipeline
}

// Detectors exposes the gesture detector factory, carrying the configured
// debounce window into every detector it builds.
func (s *SafeSignalService) Detectors() *trigger.DetectorFactory {
	return s.detectors
}

// Escape exposes the safe escape controller.
func (s *SafeSignalService) Escape() *escape.Controller {
	return s.controller
}

// Start runs the retry consumer and the safe escape sweeper until the
// context is canceled.
func (s *SafeSignalService) Start(ctx context.Context) error {
	s.logger.Info("Starting safesignal service",
		zap.String("family_id", s.familyID),
	)

	errChan := make(chan error, 3)
	go func() {
		errChan <- s.retryConsumer.Start(ctx)
	}()
	go func() {
		errChan <- s.ackConsumer.Start(ctx)
	}()
	go func() {
		errChan <- s.sweeper.Start(ctx)
	}()

	for i := 0; i < 3; i++ {
		if err := <-errChan; err != nil {
			return err
		}
	}
	return nil
}

// Stop releases the backing connections.
func (s *SafeSignalService) Stop() error {
	s.logger.Info("Stopping safesignal service")

	s.mqttClient.Disconnect()

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	return nil
}
