//go:build integration

package broker

// Run with: go test -tags=integration ./internal/events/broker -count=1

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smallbiznis/opsledger/internal/events/domain"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRabbitMQPublishesOutboxEvent(t *testing.T) {
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "rabbitmq:3.13",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForListeningPort("5672/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("start rabbit: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5672/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	uri := fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
	queue := "opsledger_events_test"

	pub, err := NewPublisher(uri, queue)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	t.Cleanup(func() { _ = pub.Close() })

	conn, err := amqp.Dial(uri)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	ch, err := conn.Channel()
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	t.Cleanup(func() { _ = ch.Close() })

	msgs, err := ch.Consume(queue, "", true, false, false, false, nil)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	event := domain.DomainEvent{
		ID:        snowflake.ID(11),
		CompanyID: snowflake.ID(22),
		EventType: domain.TypeRevenueConfirmed,
		Payload:   map[string]any{"total_amount": float64(70000)},
		CreatedAt: time.Now().UTC(),
	}
	if err := pub.Publish(ctx, event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case m := <-msgs:
		if m.Type != domain.TypeRevenueConfirmed {
			t.Fatalf("type mismatch: %q", m.Type)
		}
		if m.Headers["company_id"] != "22" {
			t.Fatalf("header mismatch: %#v", m.Headers)
		}
		var got envelope
		if err := json.Unmarshal(m.Body, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Payload["total_amount"] != float64(70000) {
			t.Fatalf("payload mismatch: %#v", got.Payload)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}
