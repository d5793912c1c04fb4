package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"chatpdf/internal/ai"
	"chatpdf/internal/model"
	"chatpdf/internal/pkg/pdfextract"
	"chatpdf/internal/repository"
)

type fakeDocs struct {
	mu     sync.Mutex
	nextID uint
	docs   map[uint]*model.Document
	// history records every status a document moved through.
	history map[uint][]model.DocumentStatus
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: map[uint]*model.Document{}, history: map[uint][]model.DocumentStatus{}}
}

func (f *fakeDocs) Create(_ context.Context, doc *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	doc.ID = f.nextID
	doc.CreatedAt = time.Now()
	cp := *doc
	f.docs[doc.ID] = &cp
	f.history[doc.ID] = []model.DocumentStatus{doc.Status}
	return nil
}

func (f *fakeDocs) get(id uint) *model.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil
	}
	cp := *d
	return &cp
}

func (f *fakeDocs) GetByID(_ context.Context, id uint) (*model.Document, error) {
	return f.get(id), nil
}

func (f *fakeDocs) GetByIDAndOwner(_ context.Context, id, ownerID uint) (*model.Document, error) {
	d := f.get(id)
	if d == nil || d.OwnerID != ownerID {
		return nil, nil
	}
	return d, nil
}

func (f *fakeDocs) GetByFileKey(_ context.Context, fileKey string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.FileKey == fileKey {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeDocs) ListByOwner(_ context.Context, ownerID uint) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Document
	for _, d := range f.docs {
		if d.OwnerID == ownerID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeDocs) Transition(_ context.Context, id uint, from, to model.DocumentStatus, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok || d.Status != from {
		return fmt.Errorf("%w: document %d is not %s", repository.ErrStatusConflict, id, from)
	}
	d.Status = to
	d.FailureReason = reason
	f.history[id] = append(f.history[id], to)
	return nil
}

func (f *fakeDocs) SetContent(_ context.Context, id uint, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[id].Content = content
	return nil
}

func (f *fakeDocs) SetChunkCount(_ context.Context, id uint, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[id].ChunkCount = n
	return nil
}

func (f *fakeDocs) Delete(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	return nil
}

func (f *fakeDocs) statuses(id uint) []model.DocumentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.DocumentStatus(nil), f.history[id]...)
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (f *fakeObjects) put(key string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = body
}

func (f *fakeObjects) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeObjects) Upload(_ context.Context, key string, body io.Reader, _ string) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.put(key, b)
	return nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeObjects) PublicURL(key string) string {
	return "https://bucket.example/" + key
}

// pageExtractor ignores the bytes and returns fixed pages.
type pageExtractor struct {
	pages []pdfextract.Page
}

func (p pageExtractor) ExtractPages(r io.Reader) ([]pdfextract.Page, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, err
	}
	return p.pages, nil
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []uint
	err error
}

func (q *fakeQueue) EnqueueIngest(_ context.Context, id uint) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, id)
	return nil
}

type fakeMessages struct {
	mu       sync.Mutex
	messages []model.Message
}

func (f *fakeMessages) Publish(_ context.Context, msg model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeMessages) ListByDocumentID(_ context.Context, documentID uint, _ int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.messages {
		if m.DocumentID == documentID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMessages) DeleteByDocumentID(_ context.Context, documentID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.messages[:0]
	for _, m := range f.messages {
		if m.DocumentID != documentID {
			kept = append(kept, m)
		}
	}
	f.messages = kept
	return nil
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, model.Message) error {
	return errors.New("broker down")
}

// vocabProvider embeds text as word counts over a fixed vocabulary, so
// similarity follows shared words. fail, when set, is consulted per text.
type vocabProvider struct {
	mu     sync.Mutex
	vocab  []string
	calls  int
	inputs []string
	fail   func(text string) error
}

func newVocabProvider() *vocabProvider {
	return &vocabProvider{vocab: []string{
		"invoice", "total", "450", "shipping", "address", "payment", "terms", "days",
	}}
}

func (p *vocabProvider) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls++
	p.inputs = append(p.inputs, texts...)
	fail := p.fail
	p.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if fail != nil {
			if err := fail(text); err != nil {
				return nil, err
			}
		}
		out[i] = p.vector(text)
	}
	return out, nil
}

func (p *vocabProvider) vector(text string) []float32 {
	vec := make([]float32, len(p.vocab))
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		for i, v := range p.vocab {
			if v == word {
				vec[i]++
			}
		}
	}
	return vec
}

func (p *vocabProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordingLLM struct {
	prompt []ai.ChatMessage
	deltas []string
	err    error
}

func (l *recordingLLM) StreamComplete(_ context.Context, messages []ai.ChatMessage, onChunk func(string) error) (string, error) {
	l.prompt = messages
	if l.err != nil {
		return "", l.err
	}
	var b strings.Builder
	for _, d := range l.deltas {
		if err := onChunk(d); err != nil {
			return "", err
		}
		b.WriteString(d)
	}
	return b.String(), nil
}

func cosineOf(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
