package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/vladislavdragonenkov/payconnector/internal/version"
)

// initTracing настраивает глобальный TracerProvider с OTLP/HTTP экспортом.
// Без TracingEndpoint возвращает no-op shutdown: спаны уходят в глобальный noop-провайдер.
func initTracing(ctx context.Context, cfg Config, logger *log.Entry) (func(context.Context) error, error) {
	endpoint := strings.TrimSpace(cfg.TracingEndpoint)
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	var options []otlptracehttp.Option
	if strings.Contains(endpoint, "://") {
		options = append(options, otlptracehttp.WithEndpointURL(endpoint))
	} else {
		options = append(options, otlptracehttp.WithEndpoint(endpoint))
	}
	if cfg.TracingInsecure {
		options = append(options, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", version.GetVersion()),
		)),
	)
	otel.SetTracerProvider(provider)

	logger.WithField("endpoint", endpoint).Info("tracing enabled")
	return provider.Shutdown, nil
}
