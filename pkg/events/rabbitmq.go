// Package events publishes vault audit events to a RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is implemented by types that can publish events
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
	Close()
}

// LogPublisher logs events instead of publishing them. Used when AMQP is not
// configured or the broker is unreachable at startup.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a fallback publisher
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, routingKey string, body interface{}) error {
	p.logger.DebugContext(ctx, "event not published (no broker)",
		slog.String("routing_key", routingKey),
		slog.Any("body", body),
	)
	return nil
}

func (p *LogPublisher) Close() {}

// AMQPPublisher publishes JSON events to a durable topic exchange
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
}

// SanitizeAMQPURL strips quotes and stray prefixes and checks the scheme
func SanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}

	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewAMQPPublisher dials the broker and declares the exchange
func NewAMQPPublisher(amqpURL, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	cleanURL, err := SanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	p := &AMQPPublisher{conn: conn, exchange: exchange, logger: logger}
	if err := p.openChannel(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// NewPublisher returns an AMQP publisher, or the log fallback when amqpURL is
// empty or the broker cannot be reached
func NewPublisher(amqpURL, exchange string, logger *slog.Logger) Publisher {
	if strings.TrimSpace(amqpURL) == "" {
		logger.Info("AMQP_URL not set, audit events will only be logged")
		return NewLogPublisher(logger)
	}

	p, err := NewAMQPPublisher(amqpURL, exchange, logger)
	if err != nil {
		logger.Warn("audit event broker unavailable, falling back to log publisher", slog.Any("error", err))
		return NewLogPublisher(logger)
	}

	logger.Info("audit event publisher connected", slog.String("exchange", exchange))
	return p
}

// openChannel must be called with mu held (or before the publisher is shared)
func (p *AMQPPublisher) openChannel() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("declare exchange %q: %w", p.exchange, err)
	}
	p.channel = ch
	return nil
}

// Publish sends body as JSON with the given routing key, reopening the channel once on failure
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}

	p.logger.Warn("publish failed, reopening channel",
		slog.String("routing_key", routingKey),
		slog.Any("error", err),
	)
	if reopenErr := p.openChannel(); reopenErr != nil {
		return errors.Join(err, reopenErr)
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

// Close closes the channel and connection
func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
