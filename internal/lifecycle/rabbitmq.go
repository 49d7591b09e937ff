package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "QDataServer/internal/errors"
)

// RabbitMQConfig holds the connection parameters of the rabbitmq driver.
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// RabbitMQPublisher delivers events to a RabbitMQ queue as JSON messages.
type RabbitMQPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewRabbitMQPublisher dials the broker and declares the queue.
func NewRabbitMQPublisher(cfg RabbitMQConfig) (*RabbitMQPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("lifecycle: RabbitMQ URL cannot be empty")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "qdataserver.lifecycle"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open RabbitMQ channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare RabbitMQ queue: %w", err)
	}
	return &RabbitMQPublisher{conn: conn, ch: ch, queue: queue}, nil
}

// Publish implements Publisher.
func (p *RabbitMQPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.ch == nil {
		return errors.New("lifecycle: RabbitMQ publisher not initialised")
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "encode lifecycle event")
	}
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   event.ID,
		Body:        encoded,
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "publish lifecycle event")
	}
	return nil
}

// Close implements Publisher.
func (p *RabbitMQPublisher) Close() error {
	if p == nil {
		return nil
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
