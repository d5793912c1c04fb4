package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"chatpdf/internal/logger"
	"chatpdf/internal/telemetry"
)

const (
	DefaultDimension        = 1536
	DefaultBatchSize        = 64
	DefaultConcurrency      = 4
	DefaultMaxRetries       = 3
	DefaultInitialInterval  = 500 * time.Millisecond
	DefaultMaxInterval      = 10 * time.Second
	DefaultBreakerThreshold = 5
	DefaultBreakerTimeout   = 30 * time.Second
)

// Provider turns texts into vectors. Implementations classify failures with
// ErrRateLimited, ErrTransient or ErrInvalidInput.
type Provider interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryCache stores query vectors by model and normalized query text.
type QueryCache interface {
	Get(ctx context.Context, model, text string) ([]float32, bool, error)
	Set(ctx context.Context, model, text string, vector []float32) error
}

type Config struct {
	Model             string
	Dimension         int
	BatchSize         int
	Concurrency       int
	RequestsPerSecond float64
	MaxRetries        int
	InitialInterval   time.Duration
	MaxInterval       time.Duration
	// BreakerThreshold is the number of consecutive transient failures that opens the breaker.
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Dimension <= 0 {
		c.Dimension = DefaultDimension
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = DefaultInitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = DefaultMaxInterval
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = DefaultBreakerThreshold
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = DefaultBreakerTimeout
	}
	return c
}

type Option func(*Embedder)

func WithQueryCache(cache QueryCache) Option {
	return func(e *Embedder) { e.cache = cache }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Embedder) { e.logger = l }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Embedder) { e.metrics = m }
}

// Embedder wraps a Provider with batching, bounded fan-out, retries, rate
// limiting and a circuit breaker. It is safe for concurrent use.
type Embedder struct {
	provider Provider
	cfg      Config
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	cache    QueryCache
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

func New(provider Provider, cfg Config, opts ...Option) *Embedder {
	cfg = cfg.withDefaults()
	e := &Embedder{
		provider: provider,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Inf, 0),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	threshold := cfg.BreakerThreshold
	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Caller mistakes must not open the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			e.metrics.RecordCircuitBreakerState(name, to.String())
		},
	})
	return e
}

func (e *Embedder) Model() string  { return e.cfg.Model }
func (e *Embedder) Dimension() int { return e.cfg.Dimension }

// EmbedBatch embeds texts so that the i-th vector belongs to texts[i]. Either
// every text is embedded or an error is returned.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: text %d is empty", ErrInvalidInput, i)
		}
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		start := start
		end := min(start+e.cfg.BatchSize, len(texts))
		g.Go(func() error {
			vectors, err := e.embedWithRetry(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed texts %d-%d: %w", start, end-1, err)
			}
			copy(out[start:end], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedQuery embeds a user question. Newlines are collapsed to spaces first
// and the result is cached when a QueryCache is configured.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	query = strings.TrimSpace(strings.ReplaceAll(query, "\n", " "))
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidInput)
	}

	if e.cache != nil {
		vec, ok, err := e.cache.Get(ctx, e.cfg.Model, query)
		if err != nil {
			e.logger.Warn("query embedding cache read failed", "error", err)
		} else if ok && len(vec) == e.cfg.Dimension {
			return vec, nil
		}
	}

	vec, err := e.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		if err := e.cache.Set(ctx, e.cfg.Model, query, vec); err != nil {
			e.logger.Warn("query embedding cache write failed", "error", err)
		}
	}
	return vec, nil
}

// CheckDimension verifies that the configured and provider dimensions both
// equal want. Call it once at startup.
func (e *Embedder) CheckDimension(ctx context.Context, want int) error {
	if e.cfg.Dimension != want {
		return fmt.Errorf("%w: embedder configured for %d, vector store expects %d", ErrDimensionMismatch, e.cfg.Dimension, want)
	}
	if _, err := e.EmbedOne(ctx, "dimension probe"); err != nil {
		return fmt.Errorf("dimension probe failed: %w", err)
	}
	return nil
}

func (e *Embedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.InitialInterval
	b.MaxInterval = e.cfg.MaxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.cfg.MaxRetries)), ctx)

	var (
		vectors [][]float32
		attempt int
	)
	operation := func() error {
		attempt++
		out, err := e.call(ctx, texts)
		if err != nil {
			if !IsRetryable(err) {
				return backoff.Permanent(err)
			}
			e.logger.Warn("embedding call failed, retrying",
				"attempt", attempt,
				"max_retries", e.cfg.MaxRetries,
				"texts", len(texts),
				"error", err,
			)
			return err
		}
		vectors = out
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		if IsRetryable(err) {
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrEmbeddingFailed, attempt, err)
		}
		return nil, err
	}
	return vectors, nil
}

func (e *Embedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	res, err := e.breaker.Execute(func() (interface{}, error) {
		return e.provider.CreateEmbeddings(ctx, texts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			e.metrics.RecordEmbeddingCall(ctx, e.cfg.Model, "circuit_open", len(texts))
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		e.metrics.RecordEmbeddingCall(ctx, e.cfg.Model, outcome(err), len(texts))
		return nil, err
	}

	vectors, _ := res.([][]float32)
	if len(vectors) != len(texts) {
		e.metrics.RecordEmbeddingCall(ctx, e.cfg.Model, "bad_response", len(texts))
		return nil, fmt.Errorf("%w: provider returned %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != e.cfg.Dimension {
			e.metrics.RecordEmbeddingCall(ctx, e.cfg.Model, "bad_response", len(texts))
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), e.cfg.Dimension)
		}
	}
	e.metrics.RecordEmbeddingCall(ctx, e.cfg.Model, "ok", len(texts))
	return vectors, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}
