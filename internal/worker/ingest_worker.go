package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"chatpdf/internal/app"
	"chatpdf/internal/logger"
	"chatpdf/internal/platform/rabbitmq"
)

type Ingester interface {
	Ingest(ctx context.Context, documentID uint) error
	FailInterrupted(ctx context.Context, documentID uint) error
}

// IngestWorker consumes ingest jobs and runs the pipeline for each.
type IngestWorker struct {
	consumer
	ingester   Ingester
	jobTimeout time.Duration
}

func NewIngestWorker(
	conn *amqp.Connection,
	ingester Ingester,
	queueName string,
	concurrency int,
	jobTimeout time.Duration,
	log *slog.Logger,
) *IngestWorker {
	if log == nil {
		log = logger.Nop()
	}
	if jobTimeout <= 0 {
		jobTimeout = 10 * time.Minute
	}
	w := &IngestWorker{ingester: ingester, jobTimeout: jobTimeout}
	w.consumer = consumer{
		conn:        conn,
		queueName:   queueName,
		concurrency: concurrency,
		handle:      w.handle,
		logger:      log.With("worker", "ingest"),
	}
	return w
}

// handle acks every job whose outcome is recorded on the document. Only a
// job that could not load its document is requeued, and only once. A
// redelivered job that finds its document mid-pipeline means the previous
// consumer died, so the document is failed instead of left stuck.
func (w *IngestWorker) handle(ctx context.Context, d amqp.Delivery) {
	var job rabbitmq.IngestJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.DocumentID == 0 {
		w.logger.Error("worker decode ingest job failed", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	err := w.ingester.Ingest(jobCtx, job.DocumentID)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, app.ErrIngestNotStarted):
		requeue := !d.Redelivered
		w.logger.Warn("ingest job could not start", "document_id", job.DocumentID, "requeue", requeue, "error", err)
		_ = d.Nack(false, requeue)
	case errors.Is(err, app.ErrDocumentBusy) && d.Redelivered:
		if failErr := w.ingester.FailInterrupted(jobCtx, job.DocumentID); failErr != nil {
			w.logger.Error("fail interrupted ingestion failed", "document_id", job.DocumentID, "error", failErr)
		} else {
			w.logger.Warn("interrupted ingestion marked failed", "document_id", job.DocumentID)
		}
		_ = d.Ack(false)
	case errors.Is(err, app.ErrDocumentNotFound), errors.Is(err, app.ErrDocumentBusy):
		w.logger.Info("skip stale ingest job", "document_id", job.DocumentID, "reason", err.Error())
		_ = d.Ack(false)
	default:
		// The pipeline already marked the document failed.
		_ = d.Ack(false)
	}
}
