package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "chatpdf"

// Metrics holds the pipeline instruments. A nil *Metrics records nothing.
type Metrics struct {
	IngestionDuration   metric.Float64Histogram
	DocumentTransitions metric.Int64Counter
	EmbeddingCalls      metric.Int64Counter
	EmbeddedTexts       metric.Int64Counter
	RetrievalMatches    metric.Int64Histogram
	CircuitBreakerState metric.Int64Counter
}

// InitMetrics creates all instruments on the global meter provider. Without an
// SDK installed the instruments are no-ops.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	ingestionDuration, err := meter.Float64Histogram(
		"ingestion.duration",
		metric.WithDescription("Document ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	documentTransitions, err := meter.Int64Counter(
		"document.status.transitions",
		metric.WithDescription("Document ingestion status transitions"),
	)
	if err != nil {
		return nil, err
	}

	embeddingCalls, err := meter.Int64Counter(
		"embedding.provider.calls",
		metric.WithDescription("Embedding provider calls by outcome"),
	)
	if err != nil {
		return nil, err
	}

	embeddedTexts, err := meter.Int64Counter(
		"embedding.texts",
		metric.WithDescription("Texts embedded"),
	)
	if err != nil {
		return nil, err
	}

	retrievalMatches, err := meter.Int64Histogram(
		"retrieval.matches",
		metric.WithDescription("Matches above threshold per context query"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		IngestionDuration:   ingestionDuration,
		DocumentTransitions: documentTransitions,
		EmbeddingCalls:      embeddingCalls,
		EmbeddedTexts:       embeddedTexts,
		RetrievalMatches:    retrievalMatches,
		CircuitBreakerState: circuitBreakerState,
	}, nil
}

// RecordIngestion records a finished pipeline run. Outcome is "ready" or "failed".
func (m *Metrics) RecordIngestion(ctx context.Context, seconds float64, outcome string) {
	if m == nil {
		return
	}
	m.IngestionDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.DocumentTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordEmbeddingCall counts one provider request and, on success, the texts it embedded.
func (m *Metrics) RecordEmbeddingCall(ctx context.Context, model, outcome string, texts int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("outcome", outcome),
	)
	m.EmbeddingCalls.Add(ctx, 1, attrs)
	if outcome == "ok" {
		m.EmbeddedTexts.Add(ctx, int64(texts), attrs)
	}
}

func (m *Metrics) RecordRetrieval(ctx context.Context, matches int) {
	if m == nil {
		return
	}
	m.RetrievalMatches.Record(ctx, int64(matches))
}

func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("state", state),
	))
}
