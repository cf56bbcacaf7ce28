package queue

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const bookingQueueName = "booking.confirmed"

// Publisher writes booking events to RabbitMQ.  Publishing is best-effort
// from the caller's point of view: errors are logged and returned so the
// confirm flow can ignore them without failing an already-recorded booking.
type Publisher struct {
	url string
}

// NewPublisher returns a Publisher that dials the broker at url per
// publish.  Connections are short-lived on purpose; confirm volume is low
// and a cached channel would need its own reconnect handling.
func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

// BookingConfirmed publishes the event to the durable booking.confirmed
// queue.  Messages are marked persistent so they survive broker restarts.
func (p *Publisher) BookingConfirmed(ctx context.Context, event BookingConfirmedEvent) error {
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

	// Idempotent declare so publisher and consumer can start in any order.
	if _, err := ch.QueueDeclare(bookingQueueName, true, false, false, false, nil); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(event)
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
	if err := ch.PublishWithContext(ctx, "", bookingQueueName, false, false, pub); err != nil {
		log.Printf("rabbitmq: publish failed: %v", err)
		return err
	}
	return nil
}
