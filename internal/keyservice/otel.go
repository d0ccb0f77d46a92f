package keyservice

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName identifies this package's instruments.
const MeterName = "key-service"

// Metrics holds the OpenTelemetry instruments for key lifecycle operations.
// A nil *Metrics is valid and records nothing, so wiring is optional.
type Metrics struct {
	GenerationAttempts metric.Int64Counter
	GenerationFailures metric.Int64Counter
	GenerationDuration metric.Float64Histogram

	ValidationAttempts metric.Int64Counter
	ValidationFailures metric.Int64Counter
	ValidationDuration metric.Float64Histogram

	ConsumptionAttempts metric.Int64Counter
	ConsumptionFailures metric.Int64Counter
}

// NewMetrics registers the key lifecycle instruments on a meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.GenerationAttempts, err = meter.Int64Counter(
		"key_generation_attempts_total",
		metric.WithDescription("Total number of key generation attempts"),
	); err != nil {
		return nil, err
	}
	if m.GenerationFailures, err = meter.Int64Counter(
		"key_generation_failures_total",
		metric.WithDescription("Total number of failed key generation attempts"),
	); err != nil {
		return nil, err
	}
	if m.GenerationDuration, err = meter.Float64Histogram(
		"key_generation_duration_seconds",
		metric.WithDescription("Key generation duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.ValidationAttempts, err = meter.Int64Counter(
		"key_validation_attempts_total",
		metric.WithDescription("Total number of key validation attempts"),
	); err != nil {
		return nil, err
	}
	if m.ValidationFailures, err = meter.Int64Counter(
		"key_validation_failures_total",
		metric.WithDescription("Total number of rejected key validations"),
	); err != nil {
		return nil, err
	}
	if m.ValidationDuration, err = meter.Float64Histogram(
		"key_validation_duration_seconds",
		metric.WithDescription("Key validation duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.ConsumptionAttempts, err = meter.Int64Counter(
		"key_consumption_attempts_total",
		metric.WithDescription("Total number of key consumption attempts"),
	); err != nil {
		return nil, err
	}
	if m.ConsumptionFailures, err = meter.Int64Counter(
		"key_consumption_failures_total",
		metric.WithDescription("Total number of failed key consumptions"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) recordGeneration(ctx context.Context, keyType string, success bool, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("key_type", keyType))
	m.GenerationAttempts.Add(ctx, 1, attrs)
	if !success {
		m.GenerationFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("key_type", keyType),
			attribute.String("reason", reason),
		))
	}
	m.GenerationDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *Metrics) recordValidation(ctx context.Context, valid bool, stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ValidationAttempts.Add(ctx, 1)
	if !valid {
		m.ValidationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	}
	m.ValidationDuration.Record(ctx, duration.Seconds())
}

func (m *Metrics) recordConsumption(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.ConsumptionAttempts.Add(ctx, 1)
	if !success {
		m.ConsumptionFailures.Add(ctx, 1)
	}
}
