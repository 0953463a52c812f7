// Package tracing wires the dispatcher's OpenTelemetry spans to the stdout
// exporter. Applications exporting elsewhere build their own provider and
// pass its tracer through core.Options.
package tracing

import (
	"context"
	"io"
	"os"

	"github.com/Swind/go-dispatch/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// NewProvider returns a tracer provider that writes every finished span to w
// as JSON. A nil w writes to os.Stdout.
func NewProvider(serviceName, serviceVersion string, w io.Writer) (*sdktrace.TracerProvider, error) {
	if w == nil {
		w = os.Stdout
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	return NewProviderWithExporter(serviceName, serviceVersion, exporter)
}

// NewProviderWithExporter returns a tracer provider that hands spans to
// exporter synchronously as they end.
func NewProviderWithExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	), nil
}

// Install makes tp the global provider, which Dispatchers built without an
// explicit Tracer pick up.
func Install(tp trace.TracerProvider) {
	otel.SetTracerProvider(tp)
}

// Tracer returns the dispatcher tracer from tp.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	return tp.Tracer(core.TracerName)
}

// OpenOutput resolves a configured output name. "" and "stdout" map to
// os.Stdout, "stderr" to os.Stderr, and anything else is created as a file.
// Closing the result never closes the standard streams.
func OpenOutput(name string) (io.WriteCloser, error) {
	switch name {
	case "", "stdout":
		return nopCloser{os.Stdout}, nil
	case "stderr":
		return nopCloser{os.Stderr}, nil
	}
	return os.Create(name)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
