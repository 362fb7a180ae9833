package observability

import (
	"context"
	"time"

	"imagegen/internal/models"
	"imagegen/internal/storage"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const storageScope = "imagegen/storage"

// InstrumentedStorage wraps a storage.Storage implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	recorded metric.Int64Counter
}

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
// Saved generations are also counted by status.
func NewInstrumentedStorage(inner storage.Storage, opts ...Option) (*InstrumentedStorage, error) {
	o := newOptions(opts)
	tracer := o.tracerProvider.Tracer(storageScope)
	meter := o.meterProvider.Meter(storageScope)

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	recorded, err := meter.Int64Counter(
		"generations.recorded",
		metric.WithDescription("Generation attempts written to history, by outcome"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
		recorded: recorded,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStorage) SaveGeneration(ctx context.Context, g *models.Generation) error {
	ctx, span := s.startSpan(ctx, "SaveGeneration",
		attribute.String("generation.id", g.ID),
		attribute.String("generation.status", g.Status),
	)
	start := time.Now()
	err := s.inner.SaveGeneration(ctx, g)
	s.record(ctx, span, "SaveGeneration", start, err)
	if err == nil {
		s.recorded.Add(ctx, 1, metric.WithAttributes(attribute.String("status", g.Status)))
	}
	return err
}

func (s *InstrumentedStorage) GetGeneration(ctx context.Context, id string) (*models.Generation, error) {
	ctx, span := s.startSpan(ctx, "GetGeneration", attribute.String("generation.id", id))
	start := time.Now()
	result, err := s.inner.GetGeneration(ctx, id)
	s.record(ctx, span, "GetGeneration", start, err)
	return result, err
}

func (s *InstrumentedStorage) RecentGenerations(ctx context.Context, limit int, status string) ([]*models.Generation, error) {
	ctx, span := s.startSpan(ctx, "RecentGenerations",
		attribute.Int("limit", limit),
		attribute.String("status", status),
	)
	start := time.Now()
	result, err := s.inner.RecentGenerations(ctx, limit, status)
	span.SetAttributes(attribute.Int("result.count", len(result)))
	s.record(ctx, span, "RecentGenerations", start, err)
	return result, err
}

func (s *InstrumentedStorage) DeleteGenerationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, span := s.startSpan(ctx, "DeleteGenerationsBefore",
		attribute.String("cutoff", cutoff.UTC().Format(time.RFC3339)),
	)
	start := time.Now()
	n, err := s.inner.DeleteGenerationsBefore(ctx, cutoff)
	span.SetAttributes(attribute.Int("result.removed", n))
	s.record(ctx, span, "DeleteGenerationsBefore", start, err)
	return n, err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}

var _ storage.Storage = (*InstrumentedStorage)(nil)
