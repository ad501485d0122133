package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// JobMetrics holds metric instruments for the transcription job pipeline.
type JobMetrics struct {
	jobTotal       metric.Int64Counter
	jobDuration    metric.Float64Histogram
	attemptTotal   metric.Int64Counter
	admissionTotal metric.Int64Counter
}

// NewJobMetrics creates the pipeline's metric instruments on the given meter.
func NewJobMetrics(meter metric.Meter) (*JobMetrics, error) {
	jobTotal, err := meter.Int64Counter("job.total",
		metric.WithDescription("Total number of transcription jobs by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating job.total counter: %w", err)
	}

	jobDuration, err := meter.Float64Histogram("job.duration",
		metric.WithDescription("Wall-clock processing time of jobs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating job.duration histogram: %w", err)
	}

	attemptTotal, err := meter.Int64Counter("transcription.attempt.total",
		metric.WithDescription("Total number of transcription backend attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating transcription.attempt.total counter: %w", err)
	}

	admissionTotal, err := meter.Int64Counter("admission.total",
		metric.WithDescription("Total number of admission decisions by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating admission.total counter: %w", err)
	}

	return &JobMetrics{
		jobTotal:       jobTotal,
		jobDuration:    jobDuration,
		attemptTotal:   attemptTotal,
		admissionTotal: admissionTotal,
	}, nil
}

// RecordJob records a finished job with its outcome and processing time.
func (m *JobMetrics) RecordJob(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.jobTotal.Add(ctx, 1, attrs)
	m.jobDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordAttempt records one backend attempt.
func (m *JobMetrics) RecordAttempt(ctx context.Context, engine string, success bool) {
	if m == nil {
		return
	}
	m.attemptTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.Bool("success", success),
	))
}

// RecordAdmission records one admission decision.
func (m *JobMetrics) RecordAdmission(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.admissionTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
