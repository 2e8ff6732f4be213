package config

import (
	"fmt"
	"os"
	"time"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN builds the lib/pq connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig holds MQTT broker settings for the device-facing channel.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Config is the safesignal service configuration.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// Signal pipeline settings
	Signal struct {
		// Redis key layout
		Cache struct {
			QueueKeyPrefix string // offline queue entries, e.g. "safesignal:queue:"
			SentKeyPrefix  string // delivery idempotency marks, e.g. "safesignal:sent:"
			SentTTL        int    // idempotency mark TTL (seconds)
		}

		DebounceWindowMs int // per-detector debounce window (milliseconds)
		MaxRetries       int // delivery attempts before a queued signal is abandoned
		RetryInterval    int // offline queue sweep interval (seconds)

		GuardianStream string // Redis stream consumed by the guardian notifier
		DeviceTopic    string // MQTT topic prefix, family id appended

		AckStream string // Redis stream where guardian apps confirm delivery
		AckGroup  string // consumer group reading the confirmation stream
	}

	// Safe Escape settings
	Escape struct {
		NotificationDelay time.Duration // silent window before guardians are told
		SweepInterval     int           // due-notification sweep interval (seconds)
		LocationKeyPrefix string        // cached location trail keys, e.g. "safesignal:location:"
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load builds the configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "safesignal")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 5

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "safesignal")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1 // at-least-once toward devices

	cfg.Signal.Cache.QueueKeyPrefix = getEnv("CACHE_QUEUE_PREFIX", "safesignal:queue:")
	cfg.Signal.Cache.SentKeyPrefix = getEnv("CACHE_SENT_PREFIX", "safesignal:sent:")
	cfg.Signal.Cache.SentTTL = 24 * 3600

	cfg.Signal.DebounceWindowMs = 5000
	cfg.Signal.MaxRetries = 10
	cfg.Signal.RetryInterval = 30

	cfg.Signal.GuardianStream = getEnv("GUARDIAN_STREAM", "safesignal:guardian:events")
	cfg.Signal.DeviceTopic = getEnv("DEVICE_TOPIC", "safesignal/family/")

	cfg.Signal.AckStream = getEnv("ACK_STREAM", "safesignal:guardian:acks")
	cfg.Signal.AckGroup = getEnv("ACK_GROUP", "safesignal-pipeline")

	cfg.Escape.NotificationDelay = 72 * time.Hour
	cfg.Escape.SweepInterval = 300
	cfg.Escape.LocationKeyPrefix = getEnv("CACHE_LOCATION_PREFIX", "safesignal:location:")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
