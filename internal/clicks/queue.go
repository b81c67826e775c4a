package clicks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rabbitmq/amqp091-go"
)

// Publisher is the part of *amqp091.Channel the recorder needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// QueueRecorder publishes click events to a durable queue on the default
// exchange; the analytics worker turns them into counter updates.
type QueueRecorder struct {
	mu    sync.Mutex
	ch    Publisher
	queue string
}

func NewQueueRecorder(ch Publisher, queue string) *QueueRecorder {
	return &QueueRecorder{ch: ch, queue: queue}
}

func (r *QueueRecorder) Record(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal click event: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.ch.PublishWithContext(ctx, "", r.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    ev.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish click event: %w", err)
	}
	return nil
}

// Broker is an open RabbitMQ connection with one channel and the declared
// click queue.
type Broker struct {
	Conn    *amqp091.Connection
	Channel *amqp091.Channel
	Queue   amqp091.Queue
}

// Dial connects to RabbitMQ and declares the durable click queue.
func Dial(url, queue string) (*Broker, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("unable to open RabbitMQ channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare RabbitMQ queue %q: %w", queue, err)
	}

	return &Broker{Conn: conn, Channel: ch, Queue: q}, nil
}

func (b *Broker) Close() error {
	chErr := b.Channel.Close()
	connErr := b.Conn.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}
