package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatpdf/internal/logger"
	"chatpdf/internal/model"
	"chatpdf/internal/pkg/pdfextract"
	"chatpdf/internal/repository"
	"chatpdf/internal/vectorstore"
)

const DefaultMaxUploadBytes = 10 << 20

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByIDAndOwner(ctx context.Context, id, ownerID uint) (*model.Document, error)
	GetByFileKey(ctx context.Context, fileKey string) (*model.Document, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]model.Document, error)
	Transition(ctx context.Context, id uint, from, to model.DocumentStatus, reason string) error
	Delete(ctx context.Context, id uint) error
}

type MessageStore interface {
	ListByDocumentID(ctx context.Context, documentID uint, limit int) ([]model.Message, error)
	DeleteByDocumentID(ctx context.Context, documentID uint) error
}

type ObjectWriter interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	DeleteObject(ctx context.Context, key string) error
	PublicURL(key string) string
}

type IngestQueue interface {
	EnqueueIngest(ctx context.Context, documentID uint) error
}

type RegisterInput struct {
	OwnerID  uint
	FileKey  string
	FileName string
}

type UploadInput struct {
	OwnerID  uint
	FileName string
	Size     int64
	Body     io.Reader
}

type DocumentService struct {
	docs           DocumentStore
	messages       MessageStore
	objects        ObjectWriter
	store          vectorstore.Store
	queue          IngestQueue
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewDocumentService(
	docs DocumentStore,
	messages MessageStore,
	objects ObjectWriter,
	store vectorstore.Store,
	queue IngestQueue,
	maxUploadBytes int64,
	log *slog.Logger,
) *DocumentService {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	if log == nil {
		log = logger.Nop()
	}
	return &DocumentService{
		docs:           docs,
		messages:       messages,
		objects:        objects,
		store:          store,
		queue:          queue,
		maxUploadBytes: maxUploadBytes,
		logger:         log,
	}
}

// Register records a PDF that is already in object storage and queues it for
// ingestion.
func (s *DocumentService) Register(ctx context.Context, input RegisterInput) (*model.Document, error) {
	fileKey := strings.TrimSpace(input.FileKey)
	if input.OwnerID == 0 || fileKey == "" {
		return nil, ErrInvalidInput
	}
	namespace, err := vectorstore.Namespace(fileKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	// The namespace drops non-ASCII bytes, so only ASCII keys map one to one.
	if namespace != fileKey {
		return nil, fmt.Errorf("%w: file key %q must be ASCII", ErrInvalidInput, fileKey)
	}

	existing, err := s.docs.GetByFileKey(ctx, fileKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDocumentExists
	}

	name := strings.TrimSpace(input.FileName)
	if name == "" {
		name = path.Base(fileKey)
	}
	doc := &model.Document{
		FileKey: fileKey,
		Name:    name,
		OwnerID: input.OwnerID,
		Status:  model.DocumentStatusUploaded,
	}
	if s.objects != nil {
		doc.URL = s.objects.PublicURL(fileKey)
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}

	if err := s.enqueue(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Upload stores a PDF under a fresh object key and registers it.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*model.Document, error) {
	if input.OwnerID == 0 || input.Body == nil {
		return nil, ErrInvalidInput
	}
	if input.Size > s.maxUploadBytes {
		return nil, ErrFileTooLarge
	}
	if s.objects == nil {
		return nil, errors.New("object storage is not configured")
	}

	br := bufio.NewReader(io.LimitReader(input.Body, s.maxUploadBytes+1))
	head, err := br.Peek(5)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload failed: %w", err)
	}
	if !pdfextract.IsPDF(head) {
		return nil, ErrUnsupportedFileType
	}

	key := uploadKey(input.OwnerID, input.FileName, time.Now())
	body := &countingReader{r: br}
	if err := s.objects.Upload(ctx, key, body, "application/pdf"); err != nil {
		return nil, fmt.Errorf("upload object failed: %w", err)
	}
	if body.n > s.maxUploadBytes {
		s.deleteObject(ctx, key)
		return nil, ErrFileTooLarge
	}

	doc, err := s.Register(ctx, RegisterInput{
		OwnerID:  input.OwnerID,
		FileKey:  key,
		FileName: input.FileName,
	})
	if err != nil && !errors.Is(err, ErrIngestEnqueue) {
		s.deleteObject(ctx, key)
	}
	return doc, err
}

func (s *DocumentService) List(ctx context.Context, ownerID uint) ([]model.Document, error) {
	if ownerID == 0 {
		return nil, ErrInvalidInput
	}
	return s.docs.ListByOwner(ctx, ownerID)
}

func (s *DocumentService) Get(ctx context.Context, ownerID, documentID uint) (*model.Document, error) {
	if ownerID == 0 || documentID == 0 {
		return nil, ErrInvalidInput
	}
	doc, err := s.docs.GetByIDAndOwner(ctx, documentID, ownerID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete removes the document together with its namespace and messages. The
// stored object is removed on a best-effort basis.
func (s *DocumentService) Delete(ctx context.Context, ownerID, documentID uint) error {
	doc, err := s.Get(ctx, ownerID, documentID)
	if err != nil {
		return err
	}
	if !doc.Status.IsTerminal() {
		return ErrDocumentBusy
	}

	if err := s.deleteNamespace(ctx, doc.FileKey); err != nil {
		return err
	}
	if err := s.messages.DeleteByDocumentID(ctx, doc.ID); err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, doc.ID); err != nil {
		return err
	}
	s.deleteObject(ctx, doc.FileKey)
	return nil
}

// Reprocess clears a finished document's vectors and queues it again.
func (s *DocumentService) Reprocess(ctx context.Context, ownerID, documentID uint) (*model.Document, error) {
	doc, err := s.Get(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.Status.IsTerminal() {
		return nil, ErrDocumentBusy
	}

	if err := s.deleteNamespace(ctx, doc.FileKey); err != nil {
		return nil, err
	}
	if err := s.docs.Transition(ctx, doc.ID, doc.Status, model.DocumentStatusUploaded, ""); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, ErrDocumentBusy
		}
		return nil, err
	}
	doc.Status = model.DocumentStatusUploaded
	doc.FailureReason = ""

	if err := s.enqueue(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) Messages(ctx context.Context, ownerID, documentID uint, limit int) ([]model.Message, error) {
	doc, err := s.Get(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	return s.messages.ListByDocumentID(ctx, doc.ID, limit)
}

// enqueue hands the document to the ingest worker. When the queue is
// unavailable the document is marked Failed so it can be reprocessed later.
func (s *DocumentService) enqueue(ctx context.Context, doc *model.Document) error {
	if s.queue != nil {
		err := s.queue.EnqueueIngest(ctx, doc.ID)
		if err == nil {
			return nil
		}
		s.logger.Error("enqueue ingest job failed", "document_id", doc.ID, "error", err)
	}

	reason := ErrIngestEnqueue.Error()
	if err := s.docs.Transition(ctx, doc.ID, model.DocumentStatusUploaded, model.DocumentStatusFailed, reason); err != nil {
		s.logger.Error("mark document failed failed", "document_id", doc.ID, "error", err)
	} else {
		doc.Status = model.DocumentStatusFailed
		doc.FailureReason = reason
	}
	return ErrIngestEnqueue
}

func (s *DocumentService) deleteNamespace(ctx context.Context, fileKey string) error {
	namespace, err := vectorstore.Namespace(fileKey)
	if err != nil {
		return nil
	}
	if err := s.store.DeleteNamespace(ctx, namespace); err != nil {
		return fmt.Errorf("delete document vectors failed: %w", err)
	}
	return nil
}

func (s *DocumentService) deleteObject(ctx context.Context, key string) {
	if s.objects == nil {
		return
	}
	if err := s.objects.DeleteObject(ctx, key); err != nil {
		s.logger.Warn("delete stored object failed", "key", key, "error", err)
	}
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// uploadKey builds uploads/<owner>/<unix-ms>-<short uuid>-<name> with the name
// reduced to ASCII letters, digits, dot, dash and underscore.
func uploadKey(ownerID uint, fileName string, now time.Time) string {
	name := unsafeKeyChars.ReplaceAllString(path.Base(strings.ReplaceAll(fileName, "\\", "/")), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "document.pdf"
	}
	if len(name) > 128 {
		name = name[len(name)-128:]
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("uploads/%d/%d-%s-%s", ownerID, now.UnixMilli(), id, name)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
