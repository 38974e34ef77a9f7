package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
	// Tracing selects the span exporter: "", "none", "stdout" or "otlp".
	Tracing      string `mapstructure:"tracing"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
}

// Telemetry owns the meter and tracer providers for the process.
type Telemetry struct {
	Observer *OTelObserver
	// Handler serves the Prometheus exposition of every instrument.
	Handler  http.Handler
	meters   *sdkmetric.MeterProvider
	tracers  *sdktrace.TracerProvider
	registry *prometheus.Registry
}

// SetupTelemetry installs global providers. Metrics are always exported
// through a dedicated Prometheus registry; tracing is optional.
func SetupTelemetry(ctx context.Context, cfg TelemetryConfig, logger *slog.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "voxstream"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry), otelprom.WithoutUnits())
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	meters := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meters)

	obs, err := NewOTelObserver(meters.Meter(MeterName))
	if err != nil {
		_ = meters.Shutdown(ctx)
		return nil, err
	}

	t := &Telemetry{
		Observer: obs,
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		meters:   meters,
		registry: registry,
	}

	tracers, err := initTracer(ctx, cfg, res)
	if err != nil {
		_ = meters.Shutdown(ctx)
		return nil, err
	}
	if tracers != nil {
		otel.SetTracerProvider(tracers)
		t.tracers = tracers
	}
	logger.Info("telemetry_initialized",
		"service", cfg.ServiceName,
		"metrics", "prometheus",
		"tracing", tracingMode(cfg),
	)
	return t, nil
}

func tracingMode(cfg TelemetryConfig) string {
	mode := strings.ToLower(strings.TrimSpace(cfg.Tracing))
	if mode == "" {
		return "none"
	}
	return mode
}

func initTracer(ctx context.Context, cfg TelemetryConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	switch tracingMode(cfg) {
	case "none":
		return nil, nil
	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res)), nil
	case "otlp":
		endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
		if endpoint == "" {
			return nil, errors.New("tracing otlp requires otlp_endpoint")
		}
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlp trace exporter: %w", err)
		}
		return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res)), nil
	default:
		return nil, fmt.Errorf("unknown tracing exporter %q", cfg.Tracing)
	}
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if err := t.meters.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if t.tracers != nil {
		if err := t.tracers.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
