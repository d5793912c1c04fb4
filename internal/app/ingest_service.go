package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"chatpdf/internal/chunker"
	"chatpdf/internal/logger"
	"chatpdf/internal/model"
	"chatpdf/internal/pkg/pdfextract"
	"chatpdf/internal/telemetry"
	"chatpdf/internal/vectorstore"
)

const maxFailureReasonBytes = 1024

type ObjectReader interface {
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
}

type PageExtractor interface {
	ExtractPages(r io.Reader) ([]pdfextract.Page, error)
}

type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// IngestDocumentStore is the part of the document registry the pipeline needs.
type IngestDocumentStore interface {
	GetByID(ctx context.Context, id uint) (*model.Document, error)
	Transition(ctx context.Context, id uint, from, to model.DocumentStatus, reason string) error
	SetContent(ctx context.Context, id uint, content string) error
	SetChunkCount(ctx context.Context, id uint, n int) error
}

// IngestService runs the extraction, chunking, embedding and upsert pipeline
// for one document at a time. A run either ends Ready with every chunk
// upserted or Failed with the namespace cleared.
type IngestService struct {
	docs      IngestDocumentStore
	objects   ObjectReader
	extractor PageExtractor
	chunker   *chunker.Chunker
	embedder  BatchEmbedder
	store     vectorstore.Store
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

func NewIngestService(
	docs IngestDocumentStore,
	objects ObjectReader,
	extractor PageExtractor,
	chk *chunker.Chunker,
	embedder BatchEmbedder,
	store vectorstore.Store,
	log *slog.Logger,
	metrics *telemetry.Metrics,
) *IngestService {
	if log == nil {
		log = logger.Nop()
	}
	return &IngestService{
		docs:      docs,
		objects:   objects,
		extractor: extractor,
		chunker:   chk,
		embedder:  embedder,
		store:     store,
		logger:    log,
		metrics:   metrics,
	}
}

// Ingest processes a document that is in the Uploaded status.
func (s *IngestService) Ingest(ctx context.Context, documentID uint) error {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIngestNotStarted, err)
	}
	if doc == nil {
		return ErrDocumentNotFound
	}
	if doc.Status != model.DocumentStatusUploaded {
		return fmt.Errorf("%w: document %d is %s", ErrDocumentBusy, doc.ID, doc.Status)
	}

	start := time.Now()
	run := &ingestRun{svc: s, doc: doc, status: doc.Status}
	if err := run.execute(ctx); err != nil {
		run.fail(ctx, err)
		s.metrics.RecordIngestion(ctx, time.Since(start).Seconds(), "failed")
		return err
	}

	s.metrics.RecordIngestion(ctx, time.Since(start).Seconds(), "ready")
	s.logger.Info("document ingested",
		"document_id", doc.ID,
		"namespace", run.namespace,
		"chunks", run.chunks,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// FailInterrupted marks a document that a previous run left in an
// intermediate status as Failed and clears its namespace, so it can be
// deleted or reprocessed. Uploaded and terminal documents are left alone.
func (s *IngestService) FailInterrupted(ctx context.Context, documentID uint) error {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}
	if doc.Status == model.DocumentStatusUploaded || doc.Status.IsTerminal() {
		return nil
	}

	run := &ingestRun{svc: s, doc: doc, status: doc.Status}
	run.namespace, _ = vectorstore.Namespace(doc.FileKey)
	run.fail(ctx, ErrIngestInterrupted)
	if run.status != model.DocumentStatusFailed {
		return fmt.Errorf("%w: document %d could not be marked failed", ErrDocumentBusy, doc.ID)
	}
	return nil
}

type ingestRun struct {
	svc       *IngestService
	doc       *model.Document
	status    model.DocumentStatus
	namespace string
	chunks    int
}

func (r *ingestRun) advance(ctx context.Context, to model.DocumentStatus) error {
	if !model.CanTransition(r.status, to) {
		return fmt.Errorf("illegal status transition %s -> %s", r.status, to)
	}
	if err := r.svc.docs.Transition(ctx, r.doc.ID, r.status, to, ""); err != nil {
		return err
	}
	r.svc.metrics.RecordTransition(ctx, string(r.status), string(to))
	r.status = to
	return nil
}

func (r *ingestRun) execute(ctx context.Context) error {
	s := r.svc

	namespace, err := vectorstore.Namespace(r.doc.FileKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	r.namespace = namespace

	if err := r.advance(ctx, model.DocumentStatusExtracting); err != nil {
		return err
	}
	pages, err := r.extract(ctx)
	if err != nil {
		return err
	}
	content := pdfextract.JoinText(pages)
	if strings.TrimSpace(content) == "" {
		return ErrEmptyDocument
	}
	if err := s.docs.SetContent(ctx, r.doc.ID, content); err != nil {
		return err
	}

	if err := r.advance(ctx, model.DocumentStatusChunking); err != nil {
		return err
	}
	chunks := s.chunker.ChunkPages(pages)
	if len(chunks) == 0 {
		return ErrEmptyDocument
	}
	r.chunks = len(chunks)
	if err := s.docs.SetChunkCount(ctx, r.doc.ID, len(chunks)); err != nil {
		return err
	}

	if err := r.advance(ctx, model.DocumentStatusEmbedding); err != nil {
		return err
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks failed: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embed chunks failed: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	if err := r.advance(ctx, model.DocumentStatusUpserting); err != nil {
		return err
	}
	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.Record{
			ID:       c.ID,
			Values:   vectors[i],
			Metadata: vectorstore.Metadata{Text: c.Text, PageNumber: c.PageNumber},
		}
	}
	if err := s.store.Upsert(ctx, namespace, records); err != nil {
		return err
	}

	return r.advance(ctx, model.DocumentStatusReady)
}

func (r *ingestRun) extract(ctx context.Context) ([]pdfextract.Page, error) {
	body, err := r.svc.objects.GetObject(ctx, r.doc.FileKey)
	if err != nil {
		return nil, fmt.Errorf("fetch object failed: %w", err)
	}
	defer body.Close()

	pages, err := r.svc.extractor.ExtractPages(body)
	if err != nil {
		if errors.Is(err, pdfextract.ErrNotPDF) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFileType, err)
		}
		return nil, fmt.Errorf("extract pdf text failed: %w", err)
	}
	return pages, nil
}

// fail marks the document Failed and drops whatever reached the vector store.
// It runs on a fresh context so a canceled run still records its outcome.
func (r *ingestRun) fail(ctx context.Context, cause error) {
	s := r.svc
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	log := s.logger.With("document_id", r.doc.ID, "status", string(r.status))
	log.Error("document ingestion failed", "error", cause)

	if r.namespace != "" && r.status != model.DocumentStatusUploaded {
		if err := s.store.DeleteNamespace(cleanupCtx, r.namespace); err != nil {
			log.Warn("clear namespace after failure failed", "namespace", r.namespace, "error", err)
		}
	}

	reason := chunker.TruncateBytes(cause.Error(), maxFailureReasonBytes)
	if err := s.docs.Transition(cleanupCtx, r.doc.ID, r.status, model.DocumentStatusFailed, reason); err != nil {
		log.Error("mark document failed failed", "error", err)
		return
	}
	s.metrics.RecordTransition(cleanupCtx, string(r.status), string(model.DocumentStatusFailed))
	r.status = model.DocumentStatusFailed
}
