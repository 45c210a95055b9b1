// Package observability wires tracing, metrics and logging for builds.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name of every span a build starts.
const TracerName = "github.com/rocketlyz/rspack"

// TracingConfig selects where build spans are exported.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// OTLPEndpoint is a gRPC collector address such as "localhost:4317".
	// Empty keeps the global no-op provider.
	OTLPEndpoint string
	// SampleRate applies to root spans; children follow their parent.
	SampleRate float64
	// ExportTimeout bounds each batch export. Zero uses the SDK default.
	ExportTimeout time.Duration
}

// DefaultTracingConfig samples every build and exports nowhere.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "rspack",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// TracerProvider owns the SDK provider when one was installed.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing installs a global OTLP tracer provider for cfg. Without an
// endpoint nothing is installed and spans stay no-ops, which is what a
// one-shot CLI build wants by default.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}
	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{tracer: otel.Tracer(TracerName)}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := buildResource(cfg)
	if err != nil {
		return nil, err
	}

	var batch []sdktrace.BatchSpanProcessorOption
	if cfg.ExportTimeout > 0 {
		batch = append(batch, sdktrace.WithExportTimeout(cfg.ExportTimeout))
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, batch...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: provider, tracer: provider.Tracer(TracerName)}, nil
}

func buildResource(cfg *TracingConfig) (*resource.Resource, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

// samplerFor samples root spans at rate; a child is sampled whenever its
// compilation span is.
func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case rate <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Shutdown flushes pending spans. It is a no-op without an exporter.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

// Tracer returns the build tracer.
func (tp *TracerProvider) Tracer() trace.Tracer { return tp.tracer }

// Values of the rspack.span.kind attribute.
const (
	SpanKindCompilation = "compilation"
	SpanKindLoader      = "loader"
	SpanKindCodegen     = "codegen"
)

func start(ctx context.Context, name, kind string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("rspack.span.kind", kind))
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartCompilationSpan opens the root span of one build.
func StartCompilationSpan(ctx context.Context, compilationID string, entries int) (context.Context, trace.Span) {
	return start(ctx, "compilation", SpanKindCompilation,
		attribute.String("compilation.id", compilationID),
		attribute.Int("compilation.entry_count", entries))
}

// StartPhaseSpan opens make, seal or emit under the compilation span.
func StartPhaseSpan(ctx context.Context, phase string) (context.Context, trace.Span) {
	return start(ctx, "compilation."+phase, SpanKindCompilation)
}

func StartLoaderSpan(ctx context.Context, resource string, loaders int) (context.Context, trace.Span) {
	return start(ctx, "loader.run", SpanKindLoader,
		attribute.String("loader.resource", resource),
		attribute.Int("loader.count", loaders))
}

func RecordLoaderResult(span trace.Span, shortCircuited bool, fileDeps int) {
	span.SetAttributes(
		attribute.Bool("loader.short_circuited", shortCircuited),
		attribute.Int("loader.file_dependencies", fileDeps))
}

func StartCodegenSpan(ctx context.Context, module string, deps int) (context.Context, trace.Span) {
	return start(ctx, "codegen.module", SpanKindCodegen,
		attribute.String("codegen.module", module),
		attribute.Int("codegen.dependency_count", deps))
}

func RecordCodegenResult(span trace.Span, visitors int) {
	span.SetAttributes(attribute.Int("codegen.visitor_count", visitors))
}

// RecordError marks span failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
