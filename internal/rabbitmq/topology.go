// Package rabbitmq owns the broker topology for the consultation intake
// pipeline and the thin publish/consume plumbing around it. The producer
// (api-server) and the consumer (intake-worker) both declare the same
// exchange/queue/binding so either side can start first.
package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Topology names the exchange, queue and routing key shared by the intake
// producer and consumer. It is passed explicitly to both sides at startup.
type Topology struct {
	Exchange   string
	Queue      string
	RoutingKey string
}

// IntakeTopology is the single queue pair used for consultation requests.
func IntakeTopology() Topology {
	return Topology{
		Exchange:   "usafa.direct",
		Queue:      "consultation_requests",
		RoutingKey: "consultation.request",
	}
}

func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	return conn, nil
}

// Declare creates the durable exchange/queue pair and binds them. Safe to
// call from every process; declarations are idempotent on the broker.
func Declare(ch *amqp.Channel, t Topology) error {
	if err := ch.ExchangeDeclare(
		t.Exchange,
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}

	if _, err := ch.QueueDeclare(
		t.Queue,
		true,  // durable, survives broker restart
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}

	if err := ch.QueueBind(t.Queue, t.RoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", t.Queue, t.Exchange, err)
	}

	return nil
}

// Publisher sends JSON messages to the topology's exchange/routing key.
type Publisher struct {
	ch  *amqp.Channel
	top Topology
}

// NewPublisher opens a channel on conn and declares the topology.
func NewPublisher(conn *amqp.Connection, top Topology) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if err := Declare(ch, top); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return &Publisher{ch: ch, top: top}, nil
}

// Publish sends an already-serialized JSON body as a persistent message.
func (p *Publisher) Publish(ctx context.Context, body []byte) error {
	err := p.ch.PublishWithContext(ctx,
		p.top.Exchange,
		p.top.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", p.top.Exchange, p.top.RoutingKey, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
