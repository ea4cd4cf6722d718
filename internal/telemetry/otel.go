package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationPrefix = "github.com/kevinmaint/maint-api/"

// Settings selects whether and where traces are exported
type Settings struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

// ShutdownFunc flushes and stops the tracer provider
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup installs the global tracer provider described by s. When tracing is
// disabled, or enabled without an endpoint, spans go to the default no-op
// provider and the returned shutdown does nothing.
func Setup(ctx context.Context, s Settings, logger *zap.Logger) (ShutdownFunc, bool) {
	if !s.Enabled {
		return noopShutdown, false
	}
	if s.Endpoint == "" {
		logger.Warn("otel_enabled_but_endpoint_not_configured")
		return noopShutdown, false
	}

	tp, err := InitTracer(ctx, s.ServiceName, s.Endpoint)
	if err != nil {
		logger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		return noopShutdown, false
	}
	logger.Info("otel_tracer_initialized", zap.String("endpoint", s.Endpoint))
	return tp.Shutdown, true
}

// InitTracer initializes the OpenTelemetry tracer provider
func InitTracer(ctx context.Context, serviceName, endpoint string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// Tracer returns the tracer for one of the service's packages, resolved
// against whatever provider is installed when it is called
func Tracer(pkg string) trace.Tracer {
	return otel.Tracer(instrumentationPrefix + pkg)
}

// Shutdown gracefully shuts down the tracer provider
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
