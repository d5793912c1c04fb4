package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"chatpdf/internal/model"
)

// IngestJob asks the ingest worker to run the pipeline for one document.
type IngestJob struct {
	DocumentID uint      `json:"document_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type publishChannel interface {
	queueDeclarer
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// jsonPublisher opens a short-lived channel per publish, the same way for
// every queue.
type jsonPublisher struct {
	open      func() (publishChannel, error)
	queueName string
}

func newJSONPublisher(conn *amqp.Connection, queueName string) jsonPublisher {
	return jsonPublisher{
		open: func() (publishChannel, error) {
			return conn.Channel()
		},
		queueName: queueName,
	}
}

func (p jsonPublisher) publish(ctx context.Context, v any) error {
	ch, err := p.open()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if _, err := declareQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message payload failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish message failed: %w", err)
	}
	return nil
}

type MessagePublisher struct {
	jsonPublisher
}

func NewMessagePublisher(conn *amqp.Connection, queueName string) *MessagePublisher {
	return &MessagePublisher{jsonPublisher: newJSONPublisher(conn, queueName)}
}

func (p *MessagePublisher) Publish(ctx context.Context, msg model.Message) error {
	return p.publish(ctx, msg)
}

type IngestPublisher struct {
	jsonPublisher
}

func NewIngestPublisher(conn *amqp.Connection, queueName string) *IngestPublisher {
	return &IngestPublisher{jsonPublisher: newJSONPublisher(conn, queueName)}
}

func (p *IngestPublisher) EnqueueIngest(ctx context.Context, documentID uint) error {
	return p.publish(ctx, IngestJob{DocumentID: documentID, EnqueuedAt: time.Now()})
}
