// Package telemetry exports probe metrics through OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Exporter names accepted by Setup.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Config selects and labels the metrics pipeline.
type Config struct {
	ServiceName string
	Version     string
	// Exporter is "none" (the default) or "stdout".
	Exporter string
	// Writer receives stdout exporter output. Defaults to os.Stdout.
	Writer io.Writer
}

// Provider owns the meter provider for the life of the process.
type Provider struct {
	meter    metric.Meter
	shutdown func(context.Context) error
}

// Setup builds the meter provider for cfg.Exporter.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "availmon"
	}

	switch cfg.Exporter {
	case ExporterNone, "":
		return &Provider{
			meter:    noop.NewMeterProvider().Meter(cfg.ServiceName),
			shutdown: func(context.Context) error { return nil },
		}, nil

	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("creating stdout metrics exporter: %w", err)
		}
		return newProvider(ctx, cfg, sdkmetric.NewPeriodicReader(exp))

	default:
		return nil, fmt.Errorf("unknown metrics exporter: %q", cfg.Exporter)
	}
}

// NewWithReader builds a Provider around an existing reader.
func NewWithReader(ctx context.Context, cfg Config, reader sdkmetric.Reader) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "availmon"
	}
	return newProvider(ctx, cfg, reader)
}

func newProvider(ctx context.Context, cfg Config, reader sdkmetric.Reader) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	return &Provider{
		meter:    mp.Meter(cfg.ServiceName),
		shutdown: mp.Shutdown,
	}, nil
}

// Meter returns the meter probes are recorded on.
func (p *Provider) Meter() metric.Meter { return p.meter }

// Shutdown flushes pending metrics and releases the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down meter provider: %w", err)
	}
	return nil
}
