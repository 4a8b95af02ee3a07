// Package service holds adapters that deliver domain notifications to the
// message broker.  Failures are logged and returned so callers may ignore
// them without interrupting the request flow.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/gate-presence/internal/queue"
	"github.com/iliyamo/gate-presence/internal/token"
)

// fingerprintPrefix is how much of a device key an alert may carry.
const fingerprintPrefix = 12

// dialTimeout bounds connect and handshake when ctx carries no deadline.
const dialTimeout = 3 * time.Second

// AlertPublisher publishes security alerts to a durable queue.  It dials
// per message; alerts are rare and a long-lived channel would need its own
// reconnect handling.
type AlertPublisher struct {
	url   string
	queue string
	log   *log.Logger
}

func NewAlertPublisher(url, queueName string, logger *log.Logger) *AlertPublisher {
	if logger == nil {
		logger = log.New("alerts")
	}
	return &AlertPublisher{url: url, queue: queueName, log: logger}
}

var _ token.Notifier = (*AlertPublisher)(nil)

// DeviceMismatch implements token.Notifier.
func (p *AlertPublisher) DeviceMismatch(ctx context.Context, a token.MismatchAlert) error {
	env, err := queue.NewEnvelope(queue.TopicDeviceMismatch, queue.DeviceMismatchEvent{
		TicketID:     a.TicketID,
		EventID:      a.EventID,
		BoundKey:     truncate(a.BoundKey),
		PresentedKey: truncate(a.PresentedKey),
		DetectedAt:   a.At.UTC(),
	}, a.At)
	if err != nil {
		return err
	}
	return p.publish(ctx, env)
}

func (p *AlertPublisher) publish(ctx context.Context, env queue.Envelope) error {
	timeout := dialTimeout
	if dl, ok := ctx.Deadline(); ok {
		left := time.Until(dl)
		if left <= 0 {
			return ctx.Err()
		}
		if left < timeout {
			timeout = left
		}
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		p.log.Errorf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Errorf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		p.log.Errorf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    env.At,
		Type:         env.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.log.Errorf("rabbitmq: publish failed: %v", err)
		return err
	}
	return nil
}

func truncate(key string) string {
	if len(key) <= fingerprintPrefix {
		return key
	}
	return key[:fingerprintPrefix]
}
