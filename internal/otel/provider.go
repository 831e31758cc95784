// Package otel sets up the OpenTelemetry log pipeline the slog bridge writes
// into. Every exported record carries the simulator's service resource, so
// records from concurrent simulators can be told apart by instance.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ErrNoExporter is returned by New when OTel is enabled with neither a log
// writer nor an endpoint.
var ErrNoExporter = errors.New("otel enabled without a log writer or endpoint")

// Config holds OTel configuration
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	InstanceID     string // one per serve session
	BatchTimeout   time.Duration
	LogWriter      io.Writer // session log file; records are appended as JSON
	Endpoint       string    // OTLP/HTTP collector, optional
	Insecure       bool
}

// Provider owns the log provider. The zero value, returned when OTel is
// disabled, is a no-op.
type Provider struct {
	logs *sdklog.LoggerProvider
}

// New builds the log pipeline described by cfg.
func New(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	procs, err := processors(cfg)
	if err != nil {
		return nil, err
	}
	if len(procs) == 0 {
		return nil, ErrNoExporter
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(ResourceAttributes(cfg)...),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, p := range procs {
		opts = append(opts, sdklog.WithProcessor(p))
	}
	return &Provider{logs: sdklog.NewLoggerProvider(opts...)}, nil
}

// ResourceAttributes names the simulator: service name, and version and
// instance when set.
func ResourceAttributes(cfg Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.InstanceID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(cfg.InstanceID))
	}
	return attrs
}

func processors(cfg Config) ([]sdklog.Processor, error) {
	var procs []sdklog.Processor

	if cfg.LogWriter != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(cfg.LogWriter))
		if err != nil {
			return nil, fmt.Errorf("creating file log exporter: %w", err)
		}
		procs = append(procs, sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout)))
	}

	if cfg.Endpoint != "" {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(context.Background(), opts...)
		if err != nil {
			return nil, fmt.Errorf("creating OTLP log exporter: %w", err)
		}
		procs = append(procs, sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout)))
	}

	return procs, nil
}

// LoggerProvider returns the provider for the otelslog bridge, or nil when
// disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logs
}

// Enabled reports whether records are exported.
func (p *Provider) Enabled() bool {
	return p.logs != nil
}

// EndRun exports every record batched so far. serve calls it once the run
// has ended so the run's closing records leave before Shutdown.
func (p *Provider) EndRun(ctx context.Context) error {
	if p.logs == nil {
		return nil
	}
	if err := p.logs.ForceFlush(ctx); err != nil {
		return fmt.Errorf("flushing run logs: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.logs == nil {
		return nil
	}
	if err := p.logs.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down log provider: %w", err)
	}
	return nil
}
