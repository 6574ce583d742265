// internal/common/observability/metrics.go
package observability

import (
	"context"
	"log"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	tracer         trace.Tracer
	tickCounter    otelmetric.Int64Counter
	tickDuration   otelmetric.Float64Histogram
	postCounter    otelmetric.Int64Counter
}

type options struct {
	registerer     promclient.Registerer
	spanProcessors []sdktrace.SpanProcessor
	global         bool
}

// Option customizes New.
type Option func(*options)

// WithRegisterer sends exported metrics to reg instead of the default registry.
func WithRegisterer(reg promclient.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithSpanProcessor attaches sp to the tracer provider.
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *options) { o.spanProcessors = append(o.spanProcessors, sp) }
}

// WithoutGlobal keeps the providers out of the otel globals.
func WithoutGlobal() Option {
	return func(o *options) { o.global = false }
}

func New(serviceName string, opts ...Option) *Observability {
	o := options{global: true}
	for _, opt := range opts {
		opt(&o)
	}

	obs := &Observability{
		tracerProvider: newTracerProvider(o.spanProcessors),
	}
	obs.tracer = obs.tracerProvider.Tracer(serviceName)
	if o.global {
		otel.SetTracerProvider(obs.tracerProvider)
	}

	var exporterOpts []prometheus.Option
	if o.registerer != nil {
		exporterOpts = append(exporterOpts, prometheus.WithRegisterer(o.registerer))
	}
	exporter, err := prometheus.New(exporterOpts...)
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return obs
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	if o.global {
		otel.SetMeterProvider(provider)
	}

	meter := provider.Meter(serviceName)

	tickCounter, _ := meter.Int64Counter(
		"ticks.processed",
		otelmetric.WithDescription("Number of pipeline ticks processed"),
	)

	tickDuration, _ := meter.Float64Histogram(
		"ticks.duration",
		otelmetric.WithDescription("Pipeline tick duration"),
		otelmetric.WithUnit("ms"),
	)

	postCounter, _ := meter.Int64Counter(
		"posts.scored",
		otelmetric.WithDescription("Number of posts scored"),
	)

	obs.meterProvider = provider
	obs.meter = meter
	obs.tickCounter = tickCounter
	obs.tickDuration = tickDuration
	obs.postCounter = postCounter
	return obs
}

func (o *Observability) RecordTickProcessed(ctx context.Context, status string) {
	if o.tickCounter != nil {
		o.tickCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordTickDuration(ctx context.Context, duration time.Duration, status string) {
	if o.tickDuration != nil {
		o.tickDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordPostsScored(ctx context.Context, queryID string, n int) {
	if o.postCounter != nil && n > 0 {
		o.postCounter.Add(ctx, int64(n), otelmetric.WithAttributes(
			attribute.String("query.id", queryID),
		))
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
