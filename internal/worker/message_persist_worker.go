package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"chatpdf/internal/logger"
	"chatpdf/internal/model"
)

type MessageWriter interface {
	Create(ctx context.Context, message *model.Message) error
}

type MessagePersistWorker struct {
	consumer
	repo MessageWriter
}

func NewMessagePersistWorker(conn *amqp.Connection, repo MessageWriter, queueName string, log *slog.Logger) *MessagePersistWorker {
	if log == nil {
		log = logger.Nop()
	}
	w := &MessagePersistWorker{repo: repo}
	w.consumer = consumer{
		conn:        conn,
		queueName:   queueName,
		concurrency: 1,
		handle:      w.handle,
		logger:      log.With("worker", "message_persist"),
	}
	return w
}

func (w *MessagePersistWorker) handle(ctx context.Context, d amqp.Delivery) {
	var msg model.Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		w.logger.Error("worker decode message failed", "error", err)
		_ = d.Nack(false, false)
		return
	}
	if msg.DocumentID == 0 || strings.TrimSpace(msg.Content) == "" {
		w.logger.Error("worker drop invalid message", "document_id", msg.DocumentID, "role", msg.Role)
		_ = d.Nack(false, false)
		return
	}

	msg.ID = 0
	if err := w.repo.Create(ctx, &msg); err != nil {
		w.logger.Error("worker persist message failed", "document_id", msg.DocumentID, "error", err)
		_ = d.Nack(false, false)
		return
	}

	_ = d.Ack(false)
}
