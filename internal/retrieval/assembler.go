package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"chatpdf/internal/logger"
	"chatpdf/internal/telemetry"
	"chatpdf/internal/vectorstore"
)

const (
	DefaultTopK             = 5
	DefaultScoreThreshold   = 0.7
	DefaultMaxContextLength = 3000
)

type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Options tune a single retrieval. Non-positive TopK and MaxContextLength fall
// back to the defaults; ScoreThreshold is used as given.
type Options struct {
	TopK             int
	ScoreThreshold   float64
	MaxContextLength int
}

func DefaultOptions() Options {
	return Options{
		TopK:             DefaultTopK,
		ScoreThreshold:   DefaultScoreThreshold,
		MaxContextLength: DefaultMaxContextLength,
	}
}

// Result is the assembled context plus the matches it was built from.
type Result struct {
	Namespace string
	Context   string
	Matches   []vectorstore.Match
}

type Assembler struct {
	embedder QueryEmbedder
	store    vectorstore.Store
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

type Option func(*Assembler)

func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Assembler) { a.metrics = m }
}

func New(embedder QueryEmbedder, store vectorstore.Store, opts ...Option) *Assembler {
	a := &Assembler{embedder: embedder, store: store, logger: logger.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetContext returns the text of the best matching chunks of the document
// identified by fileKey, joined by newlines and cut to MaxContextLength
// characters. No match above the threshold yields "" and a nil error.
func (a *Assembler) GetContext(ctx context.Context, query, fileKey string, opts Options) (string, error) {
	res, err := a.Retrieve(ctx, query, fileKey, opts)
	if err != nil {
		return "", err
	}
	return res.Context, nil
}

func (a *Assembler) Retrieve(ctx context.Context, query, fileKey string, opts Options) (*Result, error) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.MaxContextLength <= 0 {
		opts.MaxContextLength = DefaultMaxContextLength
	}

	namespace, err := vectorstore.Namespace(fileKey)
	if err != nil {
		return nil, err
	}

	vector, err := a.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}

	matches, err := a.store.Search(ctx, namespace, vector, opts.TopK, opts.ScoreThreshold)
	if err != nil {
		return nil, err
	}
	a.metrics.RecordRetrieval(ctx, len(matches))

	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		texts = append(texts, m.Metadata.Text)
	}
	assembled := truncateRunes(strings.Join(texts, "\n"), opts.MaxContextLength)

	a.logger.Debug("context assembled",
		"namespace", namespace,
		"matches", len(matches),
		"context_length", utf8.RuneCountInString(assembled),
	)
	return &Result{Namespace: namespace, Context: assembled, Matches: matches}, nil
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
