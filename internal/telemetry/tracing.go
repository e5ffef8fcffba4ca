package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// Tracer is the name every gateway span is created under.
const Tracer = "acp-gate"

// InitTracing configures the global TracerProvider. Spans are written to w
// as JSON by the stdout exporter, not an OTLP collector — there is no
// external tracing backend in scope here. When devMode is false, span
// timestamps are omitted (written as the zero time). The
// returned shutdown func must be called on exit to flush pending spans.
func InitTracing(ctx context.Context, w io.Writer, devMode bool, serviceVersion string) (shutdown func(context.Context) error, err error) {
	opts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if !devMode {
		opts = append(opts, stdouttrace.WithoutTimestamps())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("acp-gate"),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
