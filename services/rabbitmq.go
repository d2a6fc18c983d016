package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"heartlung/config"
	"heartlung/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQPublisher forwards event log entries to a topic exchange. The
// routing key is the configured key suffixed with the lowercase severity, so
// consumers can bind to "monitor.events.alarm" or "monitor.events.#".
type RabbitMQPublisher struct {
	url        string
	exchange   string
	routingKey string
	logger     *zap.Logger

	mu        sync.Mutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	isClosing bool
}

// NewRabbitMQPublisher connects and declares the exchange
func NewRabbitMQPublisher(cfg *config.Config, logger *zap.Logger) (*RabbitMQPublisher, error) {
	p := &RabbitMQPublisher{
		url:        cfg.RabbitMQURL,
		exchange:   cfg.RabbitMQExchange,
		routingKey: cfg.RabbitMQRoutingKey,
		logger:     logger,
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	return p, nil
}

// connect establishes the connection and channel and declares the exchange
func (p *RabbitMQPublisher) connect() error {
	p.logger.Info("Connecting to RabbitMQ", zap.String("exchange", p.exchange))

	var (
		conn *amqp.Connection
		err  error
	)
	maxRetries := 3
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err = amqp.Dial(p.url)
		if err == nil {
			break
		}

		p.logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = ch
	p.mu.Unlock()

	p.logger.Info("Connected to RabbitMQ", zap.String("exchange", p.exchange))

	go p.handleReconnect(conn)

	return nil
}

// handleReconnect re-establishes the connection after the broker drops it
func (p *RabbitMQPublisher) handleReconnect(conn *amqp.Connection) {
	closeErr := <-conn.NotifyClose(make(chan *amqp.Error, 1))

	p.mu.Lock()
	closing := p.isClosing
	p.channel = nil
	p.mu.Unlock()

	if closing {
		p.logger.Info("RabbitMQ connection closed gracefully")
		return
	}

	p.logger.Error("RabbitMQ connection lost", zap.Error(closeErr))

	for {
		p.mu.Lock()
		closing = p.isClosing
		p.mu.Unlock()
		if closing {
			return
		}

		p.logger.Info("Attempting to reconnect to RabbitMQ...")
		err := p.connect()
		if err == nil {
			p.logger.Info("Successfully reconnected to RabbitMQ")
			return
		}

		p.logger.Error("Failed to reconnect", zap.Error(err))
		time.Sleep(5 * time.Second)
	}
}

// PublishBatch publishes every event as its own persistent message
func (p *RabbitMQPublisher) PublishBatch(ctx context.Context, events []models.Event) error {
	p.mu.Lock()
	ch := p.channel
	p.mu.Unlock()

	if ch == nil {
		return fmt.Errorf("rabbitmq channel not available")
	}

	for _, event := range events {
		body, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		err = ch.PublishWithContext(ctx,
			p.exchange,                           // exchange
			eventRoutingKey(p.routingKey, event), // routing key
			false,                                // mandatory
			false,                                // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				MessageId:    event.ID,
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    event.Timestamp,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
		}
	}

	p.logger.Debug("Published events to RabbitMQ", zap.Int("count", len(events)))
	return nil
}

func eventRoutingKey(base string, event models.Event) string {
	return base + "." + strings.ToLower(string(event.Severity))
}

// Close gracefully closes the RabbitMQ connection
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	p.isClosing = true
	ch, conn := p.channel, p.conn
	p.mu.Unlock()

	p.logger.Info("Closing RabbitMQ connection")

	if ch != nil {
		if err := ch.Close(); err != nil {
			p.logger.Error("Error closing channel", zap.Error(err))
		}
	}

	if conn != nil {
		if err := conn.Close(); err != nil {
			p.logger.Error("Error closing connection", zap.Error(err))
			return err
		}
	}

	p.logger.Info("RabbitMQ connection closed")
	return nil
}
