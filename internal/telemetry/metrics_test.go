package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/aegisauth/aegis/internal/telemetry"
)

func TestNewDecisionMetrics_NilProvider(t *testing.T) {
	t.Parallel()

	metrics, err := telemetry.NewDecisionMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, metrics)

	// Nil metrics must be safe to record on.
	metrics.RecordDecision(context.Background(), true, telemetry.SourcePDP, time.Millisecond)
	metrics.RecordPDPError(context.Background())
}

func TestDecisionMetrics_Record(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := telemetry.NewDecisionMetrics(provider)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	ctx := context.Background()
	metrics.RecordDecision(ctx, true, telemetry.SourcePDP, 2*time.Millisecond)
	metrics.RecordDecision(ctx, false, telemetry.SourceUnresolved, time.Millisecond)
	metrics.RecordPDPError(ctx)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := make(map[string]bool)
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = true
	}
	assert.True(t, names["aegis_decisions_total"])
	assert.True(t, names["aegis_pdp_errors_total"])
	assert.True(t, names["aegis_decision_duration_seconds"])
}
