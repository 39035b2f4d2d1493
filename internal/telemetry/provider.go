// Package telemetry sets up OpenTelemetry tracing for simulator runs.
package telemetry

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects the trace exporter.
type Config struct {
	Enabled  bool   `env:"PARTICLE_SIM_OTEL_ENABLED" envDefault:"true"`
	Endpoint string `env:"PARTICLE_SIM_OTEL_ENDPOINT"`
}

// ConfigFromEnv reads Config from the environment.
func ConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse telemetry env: %w", err)
	}
	return cfg, nil
}

// Run describes the simulation a provider traces. Its fields become resource
// attributes, so every exported span identifies the run that produced it.
type Run struct {
	Seed       int64
	Particles  int
	Dimensions int
	Horizon    float64
	Impulses   bool
}

// Attributes returns the resource attributes of r.
func (r Run) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("sim.seed", r.Seed),
		attribute.Int("sim.particles", r.Particles),
		attribute.Int("sim.dimensions", r.Dimensions),
		attribute.Float64("sim.horizon", r.Horizon),
		attribute.Bool("sim.impulses", r.Impulses),
	}
}

// Setup initialises OpenTelemetry tracing for one simulation run.
//
// Tracing is opt-in: when the endpoint is empty or tracing is disabled,
// Setup returns a no-op shutdown function and no global provider is
// registered.
//
// The returned shutdown function flushes pending spans and should be deferred
// by the caller.
func Setup(ctx context.Context, serviceName string, cfg Config, run Run) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled || cfg.Endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(cfg.Endpoint),
	)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithAttributes(run.Attributes()...),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
