package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

var _ Mailer = (*AMQPMailer)(nil)

const defaultPublishTimeout = 10 * time.Second

// Channel is the publishing side of *amqp.Channel.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
	From       string
	To         string
	Timeout    time.Duration
}

// AMQPMailer publishes notifications as persistent JSON messages.
type AMQPMailer struct {
	cfg    AMQPConfig
	ch     Channel
	conn   *amqp.Connection
	logger *slog.Logger
}

func NewAMQPMailer(ch Channel, cfg AMQPConfig, logger *slog.Logger) *AMQPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultPublishTimeout
	}
	return &AMQPMailer{cfg: cfg, ch: ch, logger: logger}
}

// DialAMQP connects to the broker and declares a durable queue named after the
// routing key when publishing to the default exchange.
func DialAMQP(cfg AMQPConfig, logger *slog.Logger) (*AMQPMailer, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp mailer: broker url is required")
	}
	if cfg.RoutingKey == "" {
		return nil, errors.New("amqp mailer: routing key is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp mailer: failed to dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp mailer: failed to open channel: %w", err)
	}

	if cfg.Exchange == "" {
		if _, err := ch.QueueDeclare(cfg.RoutingKey, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("amqp mailer: failed to declare queue %q: %w", cfg.RoutingKey, err)
		}
	}

	m := NewAMQPMailer(ch, cfg, logger)
	m.conn = conn
	logger.Info("AMQP mailer connected",
		slog.String("exchange", cfg.Exchange),
		slog.String("routing_key", cfg.RoutingKey))
	return m, nil
}

func (m *AMQPMailer) Send(ctx context.Context, subject, message string) error {
	msg := Message{
		ID:      uuid.NewString(),
		From:    m.cfg.From,
		To:      m.cfg.To,
		Subject: subject,
		Body:    message,
		SentAt:  time.Now().UTC(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("amqp mailer: failed to encode message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	err = m.ch.PublishWithContext(ctx, m.cfg.Exchange, m.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.SentAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp mailer: failed to publish message: %w", err)
	}

	m.logger.DebugContext(ctx, "Notification published",
		slog.String("message_id", msg.ID),
		slog.String("subject", subject))
	return nil
}

func (m *AMQPMailer) Close() error {
	var errs []error
	if m.ch != nil {
		errs = append(errs, m.ch.Close())
	}
	if m.conn != nil && !m.conn.IsClosed() {
		errs = append(errs, m.conn.Close())
	}
	return errors.Join(errs...)
}
