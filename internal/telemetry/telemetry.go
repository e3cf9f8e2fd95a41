// Package telemetry wires OpenTelemetry tracing for the decision API,
// grounded on the pack's observability-provider idiom (resource + sampler +
// batch span processor) but scoped down to the teacher's OSS posture: a
// stdout exporter rather than an OTLP collector, since the PDP has no
// bundled tracing backend to ship to.
package telemetry

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config controls tracer/meter provider construction.
type Config struct {
	ServiceName    string
	ServiceVersion string
	SamplingRatio  float64       // 0 disables tracing; 1 samples every span
	MetricInterval time.Duration // periodic-reader export interval; 0 uses the SDK default
	Writer         io.Writer     // defaults to io.Discard if nil
}

// Provider owns the process tracer/meter providers and their shutdown hook.
// Traces give per-evaluation detail (spec 4.4's "trace" concept mirrored
// into distributed tracing); the meter complements internal/metrics'
// Prometheus counters with the same periodic-export shape the pack's
// observability packages use for their stdout exporter path.
type Provider struct {
	tp     *sdktrace.TracerProvider
	mp     *sdkmetric.MeterProvider
	tracer trace.Tracer
	meter  metric.Meter
}

// NewProvider builds tracer and meter providers exporting to cfg.Writer (or
// discarding them if nil) and installs both as the global providers.
func NewProvider(cfg Config) (*Provider, error) {
	writer := cfg.Writer
	if writer == nil {
		writer = io.Discard
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(writer), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, err
	}

	ratio := cfg.SamplingRatio
	if ratio <= 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(writer), stdoutmetric.WithoutTimestamps())
	if err != nil {
		return nil, err
	}
	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if cfg.MetricInterval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.MetricInterval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, readerOpts...)),
	)
	otel.SetMeterProvider(mp)

	name := cfg.ServiceName
	if name == "" {
		name = "policy-engine"
	}
	return &Provider{
		tp:     tp,
		mp:     mp,
		tracer: tp.Tracer(name, trace.WithInstrumentationVersion(cfg.ServiceVersion)),
		meter:  mp.Meter(name),
	}, nil
}

// Tracer returns the tracer evaluation spans should be started from.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Meter returns the OpenTelemetry meter paired with this provider.
func (p *Provider) Meter() metric.Meter {
	return p.meter
}

// Shutdown flushes buffered spans/metrics and releases exporter resources.
// Call during graceful shutdown alongside store/cache close.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tp.Shutdown(ctx); err != nil {
		return err
	}
	return p.mp.Shutdown(ctx)
}

// StartEvaluationSpan starts a span for one decision-API evaluation call.
func StartEvaluationSpan(ctx context.Context, tracer trace.Tracer, requestID string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "policy.evaluate")
	if requestID != "" {
		span.SetAttributes(attribute.String("request.id", requestID))
	}
	return ctx, span
}
