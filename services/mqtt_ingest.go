package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"roadside-monitor/be/config"
	"roadside-monitor/be/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// ReadingRecorder is the part of DeviceService the MQTT ingestor needs.
type ReadingRecorder interface {
	RecordReading(ctx context.Context, deviceID uint, in models.ReadingInput) (*models.ReadingResult, error)
}

// MQTTIngestor subscribes to device reading topics and feeds every message
// through RecordReading. Payloads use the same JSON body as the HTTP endpoint.
type MQTTIngestor struct {
	config   config.MQTTConfig
	recorder ReadingRecorder
	logger   *zap.Logger
	client   mqtt.Client
	timeout  time.Duration
}

func NewMQTTIngestor(cfg config.MQTTConfig, recorder ReadingRecorder, logger *zap.Logger) *MQTTIngestor {
	return &MQTTIngestor{
		config:   cfg,
		recorder: recorder,
		logger:   logger,
		timeout:  10 * time.Second,
	}
}

// Start connects to the broker and subscribes. The subscription is renewed
// on every reconnect.
func (m *MQTTIngestor) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.config.Broker)
	opts.SetClientID(m.config.ClientID)
	if m.config.Username != "" {
		opts.SetUsername(m.config.Username)
	}
	if m.config.Password != "" {
		opts.SetPassword(m.config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.OnConnect = func(client mqtt.Client) {
		m.logger.Info("Connected to MQTT broker", zap.String("broker", m.config.Broker))
		token := client.Subscribe(m.config.Topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			if err := m.HandleMessage(msg.Topic(), msg.Payload()); err != nil {
				m.logger.Warn("Dropped MQTT reading",
					zap.String("topic", msg.Topic()),
					zap.Error(err))
			}
		})
		if token.Wait() && token.Error() != nil {
			m.logger.Error("Failed to subscribe", zap.String("topic", m.config.Topic), zap.Error(token.Error()))
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		m.logger.Warn("MQTT connection lost", zap.Error(err))
	}

	m.client = mqtt.NewClient(opts)
	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

func (m *MQTTIngestor) Stop() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}

// HandleMessage records one reading published on topic.
func (m *MQTTIngestor) HandleMessage(topic string, payload []byte) error {
	deviceID, err := DeviceIDFromTopic(topic)
	if err != nil {
		return err
	}

	var in models.ReadingInput
	if err := json.Unmarshal(payload, &in); err != nil {
		return models.NewValidationError("invalid reading payload: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	result, err := m.recorder.RecordReading(ctx, deviceID, in)
	if err != nil {
		return err
	}
	m.logger.Debug("MQTT reading recorded",
		zap.Uint("device_id", deviceID),
		zap.Uint("environment_id", result.EnvironmentData.ID))
	return nil
}

// DeviceIDFromTopic extracts the id from topics shaped like
// ".../devices/{id}/environment".
func DeviceIDFromTopic(topic string) (uint, error) {
	parts := strings.Split(topic, "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] != "devices" {
			continue
		}
		id, err := strconv.ParseUint(parts[i+1], 10, 32)
		if err != nil || id == 0 {
			return 0, models.NewValidationError("invalid device id in topic %q", topic)
		}
		return uint(id), nil
	}
	return 0, models.NewValidationError("no device id in topic %q", topic)
}
