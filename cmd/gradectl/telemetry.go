package main

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/alem-hub/grade-analytics/pkg/logger"
)

// setupTracing installs a tracer provider that writes finished spans to w.
// The returned shutdown flushes pending spans; it is a no-op when tracing
// is disabled.
func setupTracing(enabled bool, service, version string, w io.Writer, log *logger.Logger) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !enabled {
		return noop
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		log.Warn("trace exporter init failed (continuing)", logger.Err(err))
		return noop
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", service),
			attribute.String("service.version", version),
		)),
	)
	otel.SetTracerProvider(tp)
	log.Debug("tracing initialized", logger.String("service", service))
	return tp.Shutdown
}
