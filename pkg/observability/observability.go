// Package observability provides OpenTelemetry tracing and gate metrics.
//
// A disabled provider hands out the global no-op tracer and records nothing,
// so callers never need to branch on whether telemetry is configured.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/cuilabs/aios/pkg/gate"
)

const instrumentationName = "releasegate"

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string  // e.g., "localhost:4317" for gRPC
	SampleRate     float64 // 0.0 to 1.0
	Enabled        bool
	Insecure       bool // Use insecure connection (dev only)
}

// DefaultConfig returns a disabled configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "releasegate",
		ServiceVersion: "0.1.0",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
	}
}

// Provider manages OpenTelemetry trace and metric providers.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	logger         *slog.Logger

	evaluations metric.Int64Counter
	failures    metric.Int64Counter
	duration    metric.Float64Histogram
	runs        metric.Int64Counter
}

// New creates a provider. When config.Enabled is false nothing is exported.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if !config.Enabled {
		p.logger.DebugContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to init metric provider: %w", err)
	}

	p.tracer = p.tracerProvider.Tracer(instrumentationName,
		trace.WithInstrumentationVersion(config.ServiceVersion))
	if err := p.initGateMetrics(p.meterProvider.Meter(instrumentationName)); err != nil {
		return nil, fmt.Errorf("failed to init gate metrics: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
		"insecure", config.Insecure,
	)
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create metric exporter: %w", err)
	}

	// A CLI run is short-lived; Shutdown flushes whatever the reader holds.
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

// initGateMetrics creates Rate, Errors, Duration instruments for gates.
func (p *Provider) initGateMetrics(meter metric.Meter) error {
	var err error

	p.evaluations, err = meter.Int64Counter("releasegate.gate.evaluations",
		metric.WithDescription("Gate evaluations performed"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return err
	}

	p.failures, err = meter.Int64Counter("releasegate.gate.failures",
		metric.WithDescription("Gate evaluations that did not pass"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return err
	}

	p.duration, err = meter.Float64Histogram("releasegate.gate.duration",
		metric.WithDescription("Gate evaluation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0),
	)
	if err != nil {
		return err
	}

	p.runs, err = meter.Int64Counter("releasegate.runs",
		metric.WithDescription("Release gate runs by overall verdict"),
		metric.WithUnit("{run}"),
	)
	return err
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown trace provider", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown metric provider", "error", err)
		}
	}
	return nil
}

// Tracer returns the configured tracer, or the global one when disabled.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return p.tracer
}

// RecordVerdict implements gate.Recorder.
func (p *Provider) RecordVerdict(ctx context.Context, v gate.Verdict, kind string, d time.Duration) {
	if p.evaluations == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("gate.name", v.Name),
		attribute.String("gate.kind", kind),
		attribute.Bool("gate.passed", v.Passed),
	)
	p.evaluations.Add(ctx, 1, attrs)
	if !v.Passed {
		p.failures.Add(ctx, 1, attrs)
	}
	p.duration.Record(ctx, d.Seconds(), attrs)
}

// RecordRun counts a finished run by overall verdict.
func (p *Provider) RecordRun(ctx context.Context, r *gate.Report) {
	if p.runs == nil {
		return
	}
	p.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("release.passed", r.OverallPassed()),
		attribute.Int("gate.count", len(r.Verdicts())),
	))
}
