// Package tracing installs the global OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Options configure the tracer provider.
type Options struct {
	ServiceName    string
	ServiceVersion string
	// Endpoint is the collector address. Only logged for now: spans are
	// written by the stdout exporter.
	Endpoint string
	// Writer receives exported spans. Defaults to os.Stdout.
	Writer io.Writer
	// Sync exports every span as it ends instead of batching.
	Sync bool
}

// Init installs a tracer provider as the global provider and returns its
// shutdown function.
func Init(opts Options) (func(context.Context) error, error) {
	if opts.ServiceName == "" {
		return nil, fmt.Errorf("service name is required")
	}
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	if opts.Endpoint != "" {
		// TODO: switch to otlptracegrpc once a collector is deployed alongside the service.
		log.Printf("Note: Using stdout trace exporter (OTLP endpoint: %s)", opts.Endpoint)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	version := opts.ServiceVersion
	if version == "" {
		version = "dev"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	export := sdktrace.WithBatcher(exporter)
	if opts.Sync {
		export = sdktrace.WithSyncer(exporter)
	}
	tp := sdktrace.NewTracerProvider(
		export,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
