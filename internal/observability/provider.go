package observability

import (
	"context"
	"time"

	"imagegen/internal/models"
	"imagegen/internal/provider"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const providerScope = "imagegen/provider"

// InstrumentedProvider wraps a provider.Provider with a span per call, a
// latency histogram, an error counter keyed by failure kind and whether a
// retry could succeed, and a byte counter for returned images.
type InstrumentedProvider struct {
	inner    provider.Provider
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	bytes    metric.Int64Counter
}

func NewInstrumentedProvider(inner provider.Provider, opts ...Option) (*InstrumentedProvider, error) {
	o := newOptions(opts)
	meter := o.meterProvider.Meter(providerScope)

	duration, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of image generation calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"provider.request.errors",
		metric.WithDescription("Failed image generation calls, by failure kind"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	bytes, err := meter.Int64Counter(
		"provider.image.bytes",
		metric.WithDescription("Bytes of image data received from the provider"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedProvider{
		inner:    inner,
		tracer:   o.tracerProvider.Tracer(providerScope),
		duration: duration,
		errors:   errCounter,
		bytes:    bytes,
	}, nil
}

func (p *InstrumentedProvider) Generate(ctx context.Context, req *models.GenerateRequest) (*provider.Image, error) {
	ctx, span := p.tracer.Start(ctx, "provider.Generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider.name", p.inner.Name()),
			attribute.String("image.model", req.Model),
			attribute.Int("image.width", req.Width),
			attribute.Int("image.height", req.Height),
			attribute.Int("image.steps", req.Steps),
		),
	)
	defer span.End()

	start := time.Now()
	img, err := p.inner.Generate(ctx, req)
	elapsed := time.Since(start).Seconds()

	providerAttr := attribute.String("provider", p.inner.Name())
	if err != nil {
		kind := string(provider.KindOf(err))
		if kind == "" {
			kind = "unknown"
		}
		p.duration.Record(ctx, elapsed, metric.WithAttributes(providerAttr, attribute.String("outcome", "error")))
		p.errors.Add(ctx, 1, metric.WithAttributes(
			providerAttr,
			attribute.String("kind", kind),
			attribute.Bool("retryable", provider.IsRetryable(err)),
		))
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("error.retryable", provider.IsRetryable(err)))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	p.duration.Record(ctx, elapsed, metric.WithAttributes(providerAttr, attribute.String("outcome", "success")))
	p.bytes.Add(ctx, int64(len(img.Data)), metric.WithAttributes(providerAttr))
	span.SetAttributes(
		attribute.String("image.source_format", img.SourceFormat),
		attribute.Int("image.bytes", len(img.Data)),
	)
	span.SetStatus(codes.Ok, "")
	return img, nil
}

func (p *InstrumentedProvider) Name() string {
	return p.inner.Name()
}

func (p *InstrumentedProvider) Configured() bool {
	return p.inner.Configured()
}

var _ provider.Provider = (*InstrumentedProvider)(nil)
