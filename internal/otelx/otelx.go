// Package otelx wires OpenTelemetry tracing and metrics around dispatch,
// tool invocation, and the elicitation round trip.
//
// Grounded on the orchestrator service's initTracer
// (services/orchestrator/main.go in the Aleutian example pack): a
// TracerProvider built from an exporter and registered as the global via
// otel.SetTracerProvider, returning a shutdown func the caller defers. That
// example wires an OTLP gRPC exporter for a collector sidecar; this package
// wires the stdout exporters instead, since a protocol core has no assumed
// collector to talk to and "pluggable, stdout by default" is the simpler
// default for a library consumed by other programs.
package otelx

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName identifies this process's spans and metrics to any backend
// that groups by resource attribute.
const ServiceName = "mcpcore"

// Providers bundles the tracer and meter providers this package installs as
// globals, with a Tracer and Meter drawn from them. The shutdown func that
// flushes both is returned by Setup alongside it.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
}

// Option configures Setup.
type Option func(*options)

type options struct {
	traceWriter  io.Writer
	metricWriter io.Writer
}

// WithTraceWriter redirects the stdout trace exporter's output, e.g. to a
// file in tests. Defaults to os.Stdout.
func WithTraceWriter(w io.Writer) Option {
	return func(o *options) { o.traceWriter = w }
}

// WithMetricWriter redirects the stdout metric exporter's output.
func WithMetricWriter(w io.Writer) Option {
	return func(o *options) { o.metricWriter = w }
}

// Setup builds a TracerProvider and MeterProvider backed by the stdout
// exporters, registers them as the process-wide otel globals, and returns
// the Providers bundle. Call the returned shutdown func during graceful
// shutdown to flush pending spans and metric exports.
func Setup(ctx context.Context, opts ...Option) (*Providers, func(context.Context) error, error) {
	o := &options{}
	for _, fn := range opts {
		fn(o)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceNameKey.String(ServiceName),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("otelx: build resource: %w", err)
	}

	traceExporterOpts := []stdouttrace.Option{}
	if o.traceWriter != nil {
		traceExporterOpts = append(traceExporterOpts, stdouttrace.WithWriter(o.traceWriter))
	}
	traceExporter, err := stdouttrace.New(traceExporterOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("otelx: build trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(tp)

	metricExporterOpts := []stdoutmetric.Option{}
	if o.metricWriter != nil {
		metricExporterOpts = append(metricExporterOpts, stdoutmetric.WithWriter(o.metricWriter))
	}
	metricExporter, err := stdoutmetric.New(metricExporterOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("otelx: build metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
	)
	otel.SetMeterProvider(mp)

	p := &Providers{
		TracerProvider: tp,
		MeterProvider:  mp,
		Tracer:         tp.Tracer(ServiceName),
		Meter:          mp.Meter(ServiceName),
	}

	shutdown := func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("otelx: shutdown tracer provider: %w", err)
		}
		if err := mp.Shutdown(ctx); err != nil {
			return fmt.Errorf("otelx: shutdown meter provider: %w", err)
		}
		return nil
	}
	return p, shutdown, nil
}
