package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "paypal"),
		attribute.String("student_id", "456"),
		attribute.String("outcome", "completed"),
	)

	keys := make([]attribute.Key, 0, len(attrs))
	for _, a := range attrs {
		keys = append(keys, a.Key)
	}
	assert.ElementsMatch(t, []attribute.Key{"provider", "outcome"}, keys)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordEnrollmentOutcome(ctx, "free", "enrolled")
		m.RecordGatewayCall(ctx, "paypal", "create_order", "ok", time.Millisecond)
		m.RecordNotification(ctx, "sent")
		m.RecordReconciliationItem(ctx, "missing_capture_id")
		m.RecordRateLimitAllowed(ctx, "/enrollments/:courseId/create-order")
		m.RecordRateLimitDenied(ctx, "/enrollments/:courseId/create-order", "student-rate")
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "lms"}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordEnrollmentOutcome(context.Background(), "paid_capture", "enrolled")
}

func TestRecordedSeriesCarryOnlyAllowedLabels(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(Config{}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordEnrollmentOutcome(ctx, " paid_capture ", "enrolled")
	m.RecordEnrollmentOutcome(ctx, "paid_capture", "enrolled")
	m.RecordReconciliationItem(ctx, "ledger_write_failed")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	sums := map[string]metricdata.Sum[int64]{}
	for _, md := range rm.ScopeMetrics[0].Metrics {
		if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
			sums[md.Name] = sum
		}
	}

	outcomes, ok := sums["lms_enrollment_outcomes_total"]
	require.True(t, ok)
	require.Len(t, outcomes.DataPoints, 1)
	assert.EqualValues(t, 2, outcomes.DataPoints[0].Value)
	flow, _ := outcomes.DataPoints[0].Attributes.Value("flow")
	assert.Equal(t, "paid_capture", flow.AsString())

	items, ok := sums["lms_reconciliation_items_total"]
	require.True(t, ok)
	require.Len(t, items.DataPoints, 1)
	assert.EqualValues(t, 1, items.DataPoints[0].Value)
}
