// Package metrics defines the service's OpenTelemetry instruments and the
// meter provider that exports them.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"offer-api/internal/config"
)

// InitMeter installs an OTLP meter provider. It returns the provider's
// shutdown function; when metrics are disabled that is a no-op.
func InitMeter(cfg config.MetricsConfig, serviceName string) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}

// Metrics holds the service's instruments.
type Metrics struct {
	RequestCount     metric.Int64Counter
	ResponseTime     metric.Float64Histogram
	OfferOperations  metric.Int64Counter
	ValidationErrors metric.Int64Counter
	StoreErrors      metric.Int64Counter
}

// New creates the instruments on the global meter provider.
func New(meterName string) (*Metrics, error) {
	return NewWithMeter(otel.Meter(meterName))
}

// NewWithMeter creates the instruments on meter.
func NewWithMeter(meter metric.Meter) (*Metrics, error) {
	requestCount, err := meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	responseTime, err := meter.Float64Histogram(
		"http_response_time_seconds",
		metric.WithDescription("HTTP response time in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	offerOperations, err := meter.Int64Counter(
		"offer_operations_total",
		metric.WithDescription("Offer operations by kind and outcome"),
	)
	if err != nil {
		return nil, err
	}

	validationErrors, err := meter.Int64Counter(
		"offer_validation_failures_total",
		metric.WithDescription("Offer payloads rejected by validation"),
	)
	if err != nil {
		return nil, err
	}

	storeErrors, err := meter.Int64Counter(
		"offer_store_errors_total",
		metric.WithDescription("Failed store calls"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCount:     requestCount,
		ResponseTime:     responseTime,
		OfferOperations:  offerOperations,
		ValidationErrors: validationErrors,
		StoreErrors:      storeErrors,
	}, nil
}

// RecordRequest records one served request and its latency.
func (m *Metrics) RecordRequest(ctx context.Context, method, route string, status int, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.RequestCount.Add(ctx, 1, attrs)
	m.ResponseTime.Record(ctx, seconds, attrs)
}

// RecordOperation records an offer operation ("create", "get", ...) and
// whether it succeeded.
func (m *Metrics) RecordOperation(ctx context.Context, op string, ok bool) {
	m.OfferOperations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", op),
			attribute.Bool("success", ok),
		),
	)
}

// RecordValidationFailure records a rejected payload of the given type.
func (m *Metrics) RecordValidationFailure(ctx context.Context, offerType string) {
	m.ValidationErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("offer_type", offerType)),
	)
}

// RecordStoreError records a failed store call.
func (m *Metrics) RecordStoreError(ctx context.Context, op string) {
	m.StoreErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("operation", op)),
	)
}
