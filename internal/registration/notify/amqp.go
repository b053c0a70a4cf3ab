package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"onboarding/internal/registration/models"
	"onboarding/pkg/requestcontext"
)

// RoutingKeyWelcome routes welcome messages on the topic exchange.
const RoutingKeyWelcome = "registration.welcome"

// Channel is the subset of *amqp.Channel used by AMQPSender.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSender publishes welcome messages to a durable topic exchange.
type AMQPSender struct {
	conn     *amqp.Connection
	channel  Channel
	exchange string
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(rawURL, exchange string) (*AMQPSender, error) {
	clean, err := sanitizeAMQPURL(rawURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	sender, err := NewAMQP(ch, exchange)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	sender.conn = conn
	return sender, nil
}

// NewAMQP wraps an open channel and declares the exchange on it.
func NewAMQP(ch Channel, exchange string) (*AMQPSender, error) {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPSender{channel: ch, exchange: exchange}, nil
}

func (a *AMQPSender) SendWelcome(ctx context.Context, summary models.ProfileSummary) error {
	now := requestcontext.Now(ctx)
	body, err := encode(summary, now)
	if err != nil {
		return fmt.Errorf("encode welcome: %w", err)
	}
	err = a.channel.PublishWithContext(ctx, a.exchange, RoutingKeyWelcome, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Type:         EventWelcome,
		MessageId:    summary.IdentityID.String(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish welcome: %w", err)
	}
	return nil
}

func (a *AMQPSender) Close() error {
	err := a.channel.Close()
	if a.conn != nil {
		err = errors.Join(err, a.conn.Close())
	}
	return err
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("parse amqp url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("amqp url scheme must be amqp:// or amqps://")
	}
	return clean, nil
}
