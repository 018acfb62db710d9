package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentation = "github.com/florinutz/binsync"

// Config holds OpenTelemetry tracing configuration.
type Config struct {
	Exporter       string  // "none", "stdout", "otlp"
	Endpoint       string  // OTLP endpoint override (empty = use OTEL_EXPORTER_OTLP_ENDPOINT env)
	SampleRatio    float64 // 0.0-1.0, wrapped in ParentBased sampler
	ServiceVersion string
	Sink           string // sink kind, recorded as a resource attribute
}

// Setup installs a global TracerProvider for cfg and returns it with a
// shutdown func the caller must run on exit. Exporter "none" (the default)
// yields a noop provider.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (trace.TracerProvider, func(), error) {
	if cfg.Exporter == "" || cfg.Exporter == "none" {
		return noop.NewTracerProvider(), func() {}, nil
	}

	if logger == nil {
		logger = slog.Default()
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName("binsync"),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Sink != "" {
		attrs = append(attrs, attribute.String("binsync.sink", cfg.Sink))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, nil, fmt.Errorf("create otel resource: %w", err)
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 {
		ratio = 1.0
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTextMapPropagator(propagation.TraceContext{})
	otel.SetTracerProvider(tp)

	shutdown := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("otel tracer provider shutdown error", "error", err)
		}
	}

	logger.Info("otel tracing enabled", "exporter", cfg.Exporter, "sample_ratio", ratio)
	return tp, shutdown, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		return exp, nil
	case "otlp":
		var opts []otlptracegrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unknown otel exporter: %q (expected none, stdout, or otlp)", cfg.Exporter)
	}
}

// StartCommit opens a span around one batch commit. The returned func ends
// the span, recording err when non-nil. Records logged under the returned
// context through LogHandler carry the sink and position.
func StartCommit(ctx context.Context, sink string, ops int, position string) (context.Context, func(error)) {
	ctx, span := otel.Tracer(instrumentation).Start(ctx, "binsync.commit",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("binsync.sink", sink),
			attribute.Int("binsync.batch.ops", ops),
			attribute.String("binsync.binlog.position", position),
		),
	)
	ctx = context.WithValue(ctx, commitKey{}, commitInfo{sink: sink, position: position})
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// InjectHTTP injects the trace context from ctx into HTTP headers using the
// global W3C TraceContext propagator.
func InjectHTTP(ctx context.Context, h http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
}
