package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestProvider(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return mp, reader
}

func collectMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) (metricdata.Metrics, bool) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func sumByAttr(t *testing.T, m metricdata.Metrics, key attribute.Key) map[string]int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum for %s", m.Name)
	out := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(key)
		out[v.AsString()] += dp.Value
	}
	return out
}

func TestMetrics_NilProvider(t *testing.T) {
	t.Parallel()

	syncMetrics, err := NewSyncMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, syncMetrics)

	cacheMetrics, err := NewCacheMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, cacheMetrics)

	httpMetrics, err := NewHTTPMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, httpMetrics)

	// nil receivers are no-ops
	ctx := context.Background()
	syncMetrics.RecordSyncDuration(ctx, time.Second, true)
	syncMetrics.RecordCollection(ctx, "cache")
	syncMetrics.RecordReconciled(ctx, "created", 2)
	syncMetrics.RecordDiscarded(ctx, "untrusted", 1)
	cacheMetrics.RecordLookup(ctx, "memory", true)
	cacheMetrics.RecordError(ctx, "store", "get")
}

func TestSyncMetrics(t *testing.T) {
	t.Parallel()

	mp, reader := newTestProvider(t)
	metrics, err := NewSyncMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordSyncDuration(ctx, 1500*time.Millisecond, true)
	metrics.RecordCollection(ctx, "broker")
	metrics.RecordCollection(ctx, "cache")
	metrics.RecordCollection(ctx, "cache")
	metrics.RecordReconciled(ctx, "created", 2)
	metrics.RecordReconciled(ctx, "updated", 1)
	metrics.RecordReconciled(ctx, "unchanged", 0)
	metrics.RecordDiscarded(ctx, "tenant_mismatch", 3)

	m, ok := collectMetric(t, reader, "instance_sync_collections_total")
	require.True(t, ok)
	assert.Equal(t, map[string]int64{"broker": 1, "cache": 2}, sumByAttr(t, m, "source"))

	m, ok = collectMetric(t, reader, "instance_sync_reconciled_instances_total")
	require.True(t, ok)
	assert.Equal(t, map[string]int64{"created": 2, "updated": 1}, sumByAttr(t, m, "action"))

	m, ok = collectMetric(t, reader, "instance_sync_discarded_snapshots_total")
	require.True(t, ok)
	assert.Equal(t, map[string]int64{"tenant_mismatch": 3}, sumByAttr(t, m, "reason"))

	m, ok = collectMetric(t, reader, "instance_sync_refresh_duration_seconds")
	require.True(t, ok)
	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 0.001)
}

func TestCacheMetrics(t *testing.T) {
	t.Parallel()

	mp, reader := newTestProvider(t)
	metrics, err := NewCacheMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordLookup(ctx, "memory", true)
	metrics.RecordLookup(ctx, "memory", false)
	metrics.RecordLookup(ctx, "memory", true)
	metrics.RecordError(ctx, "store", "set")

	m, ok := collectMetric(t, reader, "instance_sync_cache_lookups_total")
	require.True(t, ok)
	assert.Equal(t, map[string]int64{"hit": 2, "miss": 1}, sumByAttr(t, m, "result"))

	m, ok = collectMetric(t, reader, "instance_sync_cache_errors_total")
	require.True(t, ok)
	assert.Equal(t, map[string]int64{"set": 1}, sumByAttr(t, m, "operation"))
}
