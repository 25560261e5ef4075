package broker

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smallbiznis/opsledger/internal/events/domain"
)

// Publisher sends outbox events to a durable RabbitMQ queue on the default exchange.
type Publisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewPublisher(uri, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	_, err = ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Name() string { return "rabbitmq" }

func (p *Publisher) Publish(ctx context.Context, event domain.DomainEvent) error {
	body, err := json.Marshal(envelope{
		ID:        event.ID.String(),
		CompanyID: event.CompanyID.String(),
		Type:      event.EventType,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(
		ctx,
		"",      // default exchange
		p.queue, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     ulid.MustNew(ulid.Timestamp(event.CreatedAt), rand.Reader).String(),
			CorrelationId: event.ID.String(),
			Type:          event.EventType,
			Timestamp:     time.Now().UTC(),
			Body:          body,
			Headers:       amqp.Table{"company_id": event.CompanyID.String()},
		},
	)
}

func (p *Publisher) Close() error {
	var errCh, errConn error
	if p.ch != nil {
		errCh = p.ch.Close()
	}
	if p.conn != nil {
		errConn = p.conn.Close()
	}
	return errors.Join(errCh, errConn)
}

type envelope struct {
	ID        string         `json:"id"`
	CompanyID string         `json:"company_id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}
