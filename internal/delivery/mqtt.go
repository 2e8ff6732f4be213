package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"safesignal/internal/config"
)

// MQTTClient wraps the paho client with the connection options this service
// needs.
type MQTTClient struct {
	client mqtt.Client
	config *config.MQTTConfig
}

// NewMQTTClient connects to the broker.
func NewMQTTClient(cfg *config.MQTTConfig) (*MQTTClient, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTClient{
		client: client,
		config: cfg,
	}, nil
}

// Publish sends a payload to a topic and waits for the token.
func (c *MQTTClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	return nil
}

// Disconnect closes the broker connection.
func (c *MQTTClient) Disconnect() {
	c.client.Disconnect(250)
}

// IsConnected reports the connection state.
func (c *MQTTClient) IsConnected() bool {
	return c.client.IsConnected()
}

// publisher is the slice of MQTTClient the channel needs; kept as an
// interface so tests run without a broker.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTChannel delivers signal envelopes over MQTT, one topic per family.
type MQTTChannel struct {
	client      publisher
	topicPrefix string
	qos         byte
	logger      *zap.Logger
}

// NewMQTTChannel creates the channel. The family id is appended to
// topicPrefix to form the publish topic.
func NewMQTTChannel(client publisher, topicPrefix string, qos byte, logger *zap.Logger) *MQTTChannel {
	return &MQTTChannel{
		client:      client,
		topicPrefix: topicPrefix,
		qos:         qos,
		logger:      logger,
	}
}

// Send publishes the envelope to the family topic.
func (c *MQTTChannel) Send(ctx context.Context, familyID string, envelope Envelope) error {
	if familyID == "" {
		return fmt.Errorf("family_id is required")
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := c.client.Publish(c.topicPrefix+familyID, c.qos, false, payload); err != nil {
		return err
	}

	c.logger.Debug("Envelope published",
		zap.String("signal_id", envelope.SignalID),
		zap.String("type", envelope.Type),
	)

	return nil
}
