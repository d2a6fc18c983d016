package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"heartlung/config"
	"heartlung/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// publishFunc sends one MQTT message and waits for the broker's acknowledgement
type publishFunc func(topic string, qos byte, retained bool, payload []byte) error

// snapshotMessage is the JSON document published on <prefix>/snapshot
type snapshotMessage struct {
	models.Snapshot
	LinkStatus models.LinkStatus `json:"link_status"`
}

// MQTTSnapshotPublisher periodically publishes the monitoring state for
// remote dashboards. The broker keeps <prefix>/status at "online" while the
// monitor runs and flips it to "offline" through the last will.
type MQTTSnapshotPublisher struct {
	client           mqtt.Client
	publish          publishFunc
	state            *MonitoringState
	logger           *zap.Logger
	interval         time.Duration
	heartbeatTimeout time.Duration
	snapshotTopic    string
	statusTopic      string
}

// NewMQTTSnapshotPublisher connects to the configured broker
func NewMQTTSnapshotPublisher(cfg *config.Config, state *MonitoringState, logger *zap.Logger) (*MQTTSnapshotPublisher, error) {
	p := newSnapshotPublisher(cfg, state, logger)

	broker := cfg.MQTTBroker
	if !strings.Contains(broker, "://") {
		broker = fmt.Sprintf("tcp://%s", broker)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.MQTTClientID)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
	}
	if cfg.MQTTPassword != "" {
		opts.SetPassword(cfg.MQTTPassword)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetWill(p.statusTopic, "offline", 1, true)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", broker))
		client.Publish(p.statusTopic, 1, true, "online")
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	p.client = client
	p.publish = func(topic string, qos byte, retained bool, payload []byte) error {
		token := client.Publish(topic, qos, retained, payload)
		if !token.WaitTimeout(p.interval) {
			return fmt.Errorf("publish to %s timed out", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
		}
		return nil
	}
	return p, nil
}

func newSnapshotPublisher(cfg *config.Config, state *MonitoringState, logger *zap.Logger) *MQTTSnapshotPublisher {
	prefix := strings.TrimSuffix(cfg.MQTTTopicPrefix, "/")
	return &MQTTSnapshotPublisher{
		state:            state,
		logger:           logger,
		interval:         cfg.SnapshotInterval,
		heartbeatTimeout: cfg.HeartbeatTimeout,
		snapshotTopic:    prefix + "/snapshot",
		statusTopic:      prefix + "/status",
	}
}

// Start publishes a snapshot every interval until ctx is cancelled
func (p *MQTTSnapshotPublisher) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Snapshot publisher started",
		zap.String("topic", p.snapshotTopic),
		zap.Duration("interval", p.interval))

	published := 0
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Snapshot publisher stopped", zap.Int("published", published))
			return
		case <-ticker.C:
			if err := p.PublishSnapshot(); err != nil {
				p.logger.Warn("Failed to publish snapshot", zap.Error(err))
				continue
			}
			published++
		}
	}
}

// PublishSnapshot sends the current state once
func (p *MQTTSnapshotPublisher) PublishSnapshot() error {
	snap := p.state.Snapshot()
	msg := snapshotMessage{
		Snapshot:   snap,
		LinkStatus: snap.Telemetry.LinkStatus(snap.TakenAt, p.heartbeatTimeout),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return p.publish(p.snapshotTopic, 0, false, payload)
}

// Close marks the monitor offline and disconnects
func (p *MQTTSnapshotPublisher) Close() {
	if p.client == nil {
		return
	}
	if err := p.publish(p.statusTopic, 1, true, []byte("offline")); err != nil {
		p.logger.Warn("Failed to publish offline status", zap.Error(err))
	}
	p.client.Disconnect(250)
	p.logger.Info("Disconnected from MQTT broker")
}
