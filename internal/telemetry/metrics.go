// Package telemetry provides OpenTelemetry instrumentation for the
// enforcement SDK.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DecisionMetricsMeterName is the name used for the decision metrics meter.
const DecisionMetricsMeterName = "github.com/aegisauth/aegis/enforce"

// Decision sources, recorded as the "source" attribute so operators can tell
// a PDP verdict apart from an unresolved-resource deny or a fail-policy
// fallback.
const (
	SourcePDP        = "pdp"
	SourceUnresolved = "unresolved"
	SourceFailPolicy = "fail_policy"
)

// DecisionMetrics holds the OpenTelemetry instruments for decision metrics.
type DecisionMetrics struct {
	decisionsTotal  metric.Int64Counter
	pdpErrorsTotal  metric.Int64Counter
	decisionSeconds metric.Float64Histogram
}

// NewDecisionMetrics creates a new DecisionMetrics instance with the given
// meter provider. If provider is nil, it returns nil (no-op metrics).
func NewDecisionMetrics(provider metric.MeterProvider) (*DecisionMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(DecisionMetricsMeterName)

	decisionsTotal, err := meter.Int64Counter(
		"aegis_decisions_total",
		metric.WithDescription("Number of authorization decisions returned to callers"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	pdpErrorsTotal, err := meter.Int64Counter(
		"aegis_pdp_errors_total",
		metric.WithDescription("Number of failed PDP decision calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	decisionSeconds, err := meter.Float64Histogram(
		"aegis_decision_duration_seconds",
		metric.WithDescription("Duration of authorization decisions in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5),
	)
	if err != nil {
		return nil, err
	}

	return &DecisionMetrics{
		decisionsTotal:  decisionsTotal,
		pdpErrorsTotal:  pdpErrorsTotal,
		decisionSeconds: decisionSeconds,
	}, nil
}

// RecordDecision records one decision outcome with its source and duration.
func (m *DecisionMetrics) RecordDecision(ctx context.Context, allowed bool, source string, elapsed time.Duration) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Bool("allowed", allowed),
		attribute.String("source", source),
	)
	m.decisionsTotal.Add(ctx, 1, attrs)
	m.decisionSeconds.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordPDPError records one failed PDP decision call.
func (m *DecisionMetrics) RecordPDPError(ctx context.Context) {
	if m == nil {
		return
	}
	m.pdpErrorsTotal.Add(ctx, 1)
}
