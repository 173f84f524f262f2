// Package tracing installs the process-wide OpenTelemetry TracerProvider,
// grounded on the teacher's pkg/observability/tracer.go. The teacher
// exports spans to a collector over OTLP/gRPC; this engine has no such
// collector in scope, so Init wires the stdout exporter
// instead — real spans, printed rather than shipped, which is enough to
// exercise the same TracerProvider/sampler/shutdown wiring.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kadirpekel/taskforge/internal/config"
)

// Shutdown flushes and stops the installed TracerProvider. It is always
// non-nil and safe to call even when tracing was never enabled.
type Shutdown func(ctx context.Context) error

// Init installs the global TracerProvider per cfg and returns its
// shutdown func. When cfg.Enabled is false it installs a no-op provider,
// so GetTracer always returns a usable Tracer regardless of config.
func Init(cfg config.TracingConfig, w io.Writer) (Shutdown, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("tracing: creating stdout exporter: %w", err)
	}

	rate := cfg.SamplingRate
	if rate <= 0 {
		rate = 1.0
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(rate)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// GetTracer returns a named Tracer off the current global TracerProvider.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
