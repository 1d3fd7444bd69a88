package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flatwatch/internal/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQConfig names the broker and where reports are routed.
type RabbitMQConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// RabbitMQNotifier publishes persistent JSON messages to an exchange.
type RabbitMQNotifier struct {
	cfg     RabbitMQConfig
	channel amqpPublisher
	conn    *amqp.Connection
	logger  logger.Logger
	now     func() time.Time
}

// NewRabbitMQNotifier dials the broker and declares a durable topic exchange.
func NewRabbitMQNotifier(cfg RabbitMQConfig, logger logger.Logger) (*RabbitMQNotifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("RABBITMQ_URL is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("failed to declare exchange '%s': %w", cfg.Exchange, err)
		}
	}

	logger.Infof("RabbitMQ publisher connected, exchange %q", cfg.Exchange)
	n := newRabbitMQNotifier(cfg, ch, logger)
	n.conn = conn
	return n, nil
}

func newRabbitMQNotifier(cfg RabbitMQConfig, ch amqpPublisher, logger logger.Logger) *RabbitMQNotifier {
	return &RabbitMQNotifier{
		cfg:     cfg,
		channel: ch,
		logger:  logger,
		now:     time.Now,
	}
}

func (r *RabbitMQNotifier) Notify(ctx context.Context, subject, body string) error {
	now := r.now()
	data, err := encodeMessage(subject, body, now)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	err = r.channel.PublishWithContext(ctx, r.cfg.Exchange, r.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Body:         data,
	})
	if err != nil {
		r.logger.Errorf("Failed to publish report to %q: %v", r.cfg.Exchange, err)
		return fmt.Errorf("publish report: %w", err)
	}

	r.logger.Infof("Report published to exchange %q with key %q", r.cfg.Exchange, r.cfg.RoutingKey)
	return nil
}

func (r *RabbitMQNotifier) Close() error {
	var err error
	if c, ok := r.channel.(*amqp.Channel); ok && c != nil {
		err = c.Close()
	}
	if r.conn != nil {
		if cerr := r.conn.Close(); err == nil {
			err = cerr
		}
		r.conn = nil
	}
	return err
}
