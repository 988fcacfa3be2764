// Package telemetry wires OpenTelemetry tracing around the analysis
// pipeline: one span per phase under a single root span per run.
//
// Tracing is strictly optional. When disabled the global TracerProvider
// stays the no-op default and instrumented code pays nothing. The CLI
// drives InitWithConfig from its own flags; Init reads the standard
// OTEL_* environment variables instead for embedded use.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
)

// ShutdownFunc flushes and tears down the TracerProvider.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(_ context.Context) error {
	return nil
}

// Init initializes tracing from OTEL_* environment variables. If
// OTEL_ENABLED is not "true" it returns a no-op shutdown function and
// installs nothing.
func Init(ctx context.Context) (ShutdownFunc, error) {
	return InitWithConfig(ctx, LoadFromEnv())
}

// InitWithConfig initializes tracing from an explicitly supplied Config,
// so a CLI flag (e.g. --otlp-endpoint) can drive tracing directly. If
// cfg.Enabled is false it returns a no-op shutdown function and installs
// no exporter.
func InitWithConfig(ctx context.Context, cfg *Config) (ShutdownFunc, error) {
	if cfg == nil || !cfg.Enabled {
		return noopShutdown, nil
	}

	res, err := buildResource(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	tp := trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(exporter),
		trace.WithSampler(createSampler(cfg)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return tp.Shutdown(ctx)
	}, nil
}
