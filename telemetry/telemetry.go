// Package telemetry exports traces, metrics and logs over OTLP/gRPC.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BDNK1/agentflow/runtime"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config is read from the telemetry section of the project file. An empty
// Endpoint defers to the OTEL_EXPORTER_OTLP_ENDPOINT variable.
type Config struct {
	Enabled        bool          `yaml:"enabled"`
	ServiceName    string        `yaml:"service_name" default:"agentflow" validate:"required"`
	Endpoint       string        `yaml:"endpoint" validate:"omitempty,hostname_port"`
	Insecure       bool          `yaml:"insecure" default:"true"`
	Traces         bool          `yaml:"traces" default:"true"`
	Metrics        bool          `yaml:"metrics" default:"true"`
	Logs           bool          `yaml:"logs" default:"true"`
	MetricInterval time.Duration `yaml:"metric_interval" default:"30s" validate:"gte=1s"`
}

// Telemetry owns the SDK providers installed by Setup.
type Telemetry struct {
	cfg    Config
	tracer *sdktrace.TracerProvider
	meter  *sdkmetric.MeterProvider
	logger *sdklog.LoggerProvider
}

// DefaultConfig returns a disabled config with every signal selected.
func DefaultConfig() Config {
	var cfg Config
	_ = runtime.ApplyDefaults(&cfg)
	return cfg
}

// Setup builds the enabled exporters and installs the tracer and meter
// providers globally. A disabled config returns a Telemetry whose methods
// are no-ops.
func Setup(ctx context.Context, cfg Config) (*Telemetry, error) {
	t := &Telemetry{cfg: cfg}
	if !cfg.Enabled {
		return t, nil
	}
	if err := runtime.Validate(cfg); err != nil {
		return nil, err
	}

	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	if cfg.Traces {
		exp, err := otlptracegrpc.New(ctx, traceOptions(cfg)...)
		if err != nil {
			return nil, errors.Join(err, t.Shutdown(ctx))
		}
		t.tracer = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
		otel.SetTracerProvider(t.tracer)
	}

	if cfg.Metrics {
		exp, err := otlpmetricgrpc.New(ctx, metricOptions(cfg)...)
		if err != nil {
			return nil, errors.Join(err, t.Shutdown(ctx))
		}
		t.meter = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.MetricInterval))),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(t.meter)
	}

	if cfg.Logs {
		exp, err := otlploggrpc.New(ctx, logOptions(cfg)...)
		if err != nil {
			return nil, errors.Join(err, t.Shutdown(ctx))
		}
		t.logger = sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)), sdklog.WithResource(res))
	}

	return t, nil
}

// Tracer returns a tracer from the installed provider, or the global one
// when tracing is off.
func (t *Telemetry) Tracer(name string) trace.Tracer {
	if t.tracer != nil {
		return t.tracer.Tracer(name)
	}
	return otel.Tracer(name)
}

// LogHandler returns an slog handler that exports records, or nil when log
// export is off.
func (t *Telemetry) LogHandler() slog.Handler {
	if t.logger == nil {
		return nil
	}
	return otelslog.NewHandler(t.cfg.ServiceName, otelslog.WithLoggerProvider(t.logger))
}

// Shutdown flushes and stops every provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tracer != nil {
		errs = append(errs, t.tracer.Shutdown(ctx))
	}
	if t.meter != nil {
		errs = append(errs, t.meter.Shutdown(ctx))
	}
	if t.logger != nil {
		errs = append(errs, t.logger.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func traceOptions(cfg Config) []otlptracegrpc.Option {
	var opts []otlptracegrpc.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return opts
}

func metricOptions(cfg Config) []otlpmetricgrpc.Option {
	var opts []otlpmetricgrpc.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return opts
}

func logOptions(cfg Config) []otlploggrpc.Option {
	var opts []otlploggrpc.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlploggrpc.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	return opts
}
