package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"chatlink-service/internal/logger"
	"chatlink-service/internal/observability"
	"chatlink-service/internal/telemetry"
)

// ErrNacked is returned when the broker refuses a message.
var ErrNacked = errors.New("rabbitmq: message nacked by broker")

// Publisher publishes notification, audit and session events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher builds a RabbitMQ publisher or a noop publisher when AMQP is disabled.
// The channel runs in confirm mode, so a nil error from Publish means the
// broker accepted the message; the notification outbox relies on that.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		logger.Infof("rabbitmq disabled, using noop: empty amqp url")
		return noopPublisher{reason: "empty amqp url"}
	}

	p := &amqpPublisher{url: amqpURL, exchange: exchange}
	if err := p.connect(); err != nil {
		logger.Errorf("rabbitmq disabled, using noop: %v", err)
		return noopPublisher{reason: err.Error()}
	}
	logger.Infof("rabbitmq connected exchange=%s", exchange)
	return p
}

type amqpPublisher struct {
	url      string
	exchange string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed chan *amqp.Error
}

// connect dials and declares the topic exchange. Callers hold mu or own p.
func (p *amqpPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("confirm mode: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.conn, p.ch = conn, ch
	p.closed = ch.NotifyClose(make(chan *amqp.Error, 1))
	return nil
}

// healthy reports whether the channel is still open. Callers hold mu.
func (p *amqpPublisher) healthy() bool {
	if p.ch == nil {
		return false
	}
	select {
	case <-p.closed:
		return false
	default:
		return true
	}
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	headers := amqp.Table{}
	for key, value := range observability.HeadersFromContext(ctx) {
		headers[key] = value
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.healthy() {
		p.closeLocked()
		if err := p.connect(); err != nil {
			observability.IncAMQPPublishError()
			return fmt.Errorf("rabbitmq reconnect: %w", err)
		}
		logger.Infof("rabbitmq reconnected exchange=%s", p.exchange)
	}

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         messageType(event),
		Timestamp:    time.Now(),
		Headers:      headers,
		Body:         body,
	})
	if err == nil && confirm != nil {
		var acked bool
		acked, err = confirm.WaitContext(ctx)
		if err == nil && !acked {
			err = ErrNacked
		}
	}
	if err != nil {
		observability.IncAMQPPublishError()
		logger.Errorf("rabbitmq publish failed routing_key=%s: %v", routingKey, err)
	}
	return err
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *amqpPublisher) closeLocked() error {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		if err != nil && !errors.Is(err, amqp.ErrClosed) {
			return err
		}
	}
	return nil
}

// messageType names the event in the AMQP type property.
func messageType(event any) string {
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		return envelope.EventType + "." + envelope.Payload.Action
	case observability.EventEnvelope:
		return envelope.EventType + "." + envelope.EventName
	default:
		return ""
	}
}

type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	logger.Debugf("rabbitmq noop publish routing_key=%s type=%s request_id=%s",
		routingKey, messageType(event), observability.RequestIDFromContext(ctx))
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}
