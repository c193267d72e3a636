// Package otel builds the OpenTelemetry log and metric pipelines.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config holds OTel configuration
type Config struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	LogWriter    io.Writer // file sink for OTel logs
	Endpoint     string    // OTLP endpoint, optional
	Insecure     bool
}

// Provider owns the log and meter providers. A disabled Provider hands out
// nil loggers and the global no-op meter.
type Provider struct {
	cfg    Config
	logs   *sdklog.LoggerProvider
	meters *sdkmetric.MeterProvider
	reader *sdkmetric.ManualReader
}

func New(cfg Config) (*Provider, error) {
	p := &Provider{cfg: cfg}
	if !cfg.Enabled {
		return p, nil
	}

	ctx := context.Background()
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	processors, err := logProcessors(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if len(processors) == 0 {
		return nil, errors.New("OTel enabled but no log writer or endpoint configured")
	}

	logOpts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, proc := range processors {
		logOpts = append(logOpts, sdklog.WithProcessor(proc))
	}
	p.logs = sdklog.NewLoggerProvider(logOpts...)

	// Metrics are pulled by Snapshot for the status file.
	p.reader = sdkmetric.NewManualReader()
	p.meters = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(p.reader))
	otel.SetMeterProvider(p.meters)

	return p, nil
}

func logProcessors(ctx context.Context, cfg Config) ([]sdklog.Processor, error) {
	var processors []sdklog.Processor
	batch := sdklog.WithExportTimeout(cfg.BatchTimeout)

	if cfg.LogWriter != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(cfg.LogWriter), stdoutlog.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create file log exporter: %w", err)
		}
		processors = append(processors, sdklog.NewBatchProcessor(exp, batch))
	}

	if cfg.Endpoint != "" {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}
		processors = append(processors, sdklog.NewBatchProcessor(exp, batch))
	}
	return processors, nil
}

// LoggerProvider is nil when OTel is disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logs
}

func (p *Provider) Meter(name string) metric.Meter {
	if p.meters != nil {
		return p.meters.Meter(name)
	}
	return otel.Meter(name)
}

// Snapshot collects the current metric values keyed by instrument name.
// Gauges and sums report their latest value summed across attribute sets,
// histograms their mean. It returns nil when OTel is disabled.
func (p *Provider) Snapshot(ctx context.Context) (map[string]float64, error) {
	if p.reader == nil {
		return nil, nil
	}
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collecting metrics: %w", err)
	}

	out := map[string]float64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if v, ok := summarize(m.Data); ok {
				out[m.Name] = v
			}
		}
	}
	return out, nil
}

func summarize(data metricdata.Aggregation) (float64, bool) {
	var total float64
	switch d := data.(type) {
	case metricdata.Gauge[int64]:
		for _, dp := range d.DataPoints {
			total += float64(dp.Value)
		}
	case metricdata.Gauge[float64]:
		for _, dp := range d.DataPoints {
			total += dp.Value
		}
	case metricdata.Sum[int64]:
		for _, dp := range d.DataPoints {
			total += float64(dp.Value)
		}
	case metricdata.Sum[float64]:
		for _, dp := range d.DataPoints {
			total += dp.Value
		}
	case metricdata.Histogram[float64]:
		var count uint64
		for _, dp := range d.DataPoints {
			total += dp.Sum
			count += dp.Count
		}
		if count == 0 {
			return 0, false
		}
		return total / float64(count), true
	default:
		return 0, false
	}
	return total, true
}

// Flush is called when a round ends.
func (p *Provider) Flush(ctx context.Context) error {
	if p.logs == nil {
		return nil
	}
	if err := p.logs.ForceFlush(ctx); err != nil {
		return fmt.Errorf("log flush failed: %w", err)
	}
	return nil
}

func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.logs != nil {
		if err := p.logs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log shutdown failed: %w", err))
		}
	}
	if p.meters != nil {
		if err := p.meters.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter shutdown failed: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (p *Provider) Enabled() bool {
	return p.cfg.Enabled
}
