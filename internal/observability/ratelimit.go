package observability

import (
	"context"

	"imagegen/internal/ratelimit"

	"go.opentelemetry.io/otel/metric"
)

// ObserveWindow publishes the outbound window's capacity and remaining slots
// as gauges read at collection time. Unregister the returned registration to
// stop observing.
func ObserveWindow(w *ratelimit.Window, opts ...Option) (metric.Registration, error) {
	o := newOptions(opts)
	meter := o.meterProvider.Meter("imagegen/ratelimit")

	capacity, err := meter.Int64ObservableGauge(
		"ratelimit.window.capacity",
		metric.WithDescription("Provider calls allowed per window"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	remaining, err := meter.Int64ObservableGauge(
		"ratelimit.window.remaining",
		metric.WithDescription("Provider calls left in the current window"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		info := w.Status()
		obs.ObserveInt64(capacity, int64(info.Limit))
		obs.ObserveInt64(remaining, int64(info.Remaining))
		return nil
	}, capacity, remaining)
}
