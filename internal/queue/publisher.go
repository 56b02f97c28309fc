package queue

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends domain events to RabbitMQ.  Errors are logged and
// returned so callers can ignore them: a failed notification must never
// roll back or block the state transition it describes.
type Publisher struct {
	url string
}

// NewPublisher returns a Publisher that dials the given AMQP URL on each
// publish.  Connections are short-lived on purpose; publish volume here is
// a handful of messages per booking operation.
func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

func (p *Publisher) publish(ctx context.Context, queueName string, payload interface{}) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent).  Durable so messages survive
	// broker restarts.
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		log.Printf("rabbitmq: publish failed: %v", err)
		return err
	}
	return nil
}

// SpaceUpdate publishes a space status change to the space.events queue.
func (p *Publisher) SpaceUpdate(ctx context.Context, ev SpaceUpdateEvent) error {
	return p.publish(ctx, SpaceEventsQueue, ev)
}

// Reservation publishes a reservation lifecycle event to the
// reservation.events queue.
func (p *Publisher) Reservation(ctx context.Context, ev ReservationEvent) error {
	return p.publish(ctx, ReservationEventsQueue, ev)
}
