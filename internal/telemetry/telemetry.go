// Package telemetry configures the OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const ServiceName = "accidents-api"

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	// ExporterOTLP sends spans over gRPC. The collector address comes from
	// the standard OTEL_EXPORTER_OTLP_* environment variables.
	ExporterOTLP = "otlp"
)

type Options struct {
	Exporter       string
	ServiceVersion string
	Environment    string
	// Writer receives stdout exports. Defaults to os.Stdout.
	Writer io.Writer
}

// Setup builds a tracer provider and installs it as the global provider.
// Callers must Shutdown the returned provider to flush pending spans.
func Setup(opts Options) (*sdktrace.TracerProvider, error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", opts.ServiceVersion),
		attribute.String("deployment.environment", opts.Environment),
	)

	var providerOpts []sdktrace.TracerProviderOption
	providerOpts = append(providerOpts, sdktrace.WithResource(res))

	switch opts.Exporter {
	case "", ExporterNone:
		providerOpts = append(providerOpts, sdktrace.WithSampler(sdktrace.NeverSample()))
	case ExporterStdout:
		w := opts.Writer
		if w == nil {
			w = os.Stdout
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	case ExporterOTLP:
		exporter, err := otlptracegrpc.New(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp trace exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", opts.Exporter)
	}

	provider := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(provider)
	return provider, nil
}
