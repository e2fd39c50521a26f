package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the meter for collection and reconciliation metrics
	SyncMetricsMeterName = "github.com/leadengine/instance-sync/sync"

	// CacheMetricsMeterName is the meter for snapshot cache metrics
	CacheMetricsMeterName = "github.com/leadengine/instance-sync/cache"
)

// SyncMetrics holds the instruments for collection and reconciliation
type SyncMetrics struct {
	syncDuration metric.Float64Histogram
	collections  metric.Int64Counter
	reconciled   metric.Int64Counter
	discarded    metric.Int64Counter
}

// NewSyncMetrics creates SyncMetrics. A nil provider yields nil, which is a valid no-op receiver.
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"instance_sync_refresh_duration_seconds",
		metric.WithDescription("Duration of broker refreshes in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30),
	)
	if err != nil {
		return nil, err
	}

	collections, err := meter.Int64Counter(
		"instance_sync_collections_total",
		metric.WithDescription("Collect calls by the source that served them"),
		metric.WithUnit("{collection}"),
	)
	if err != nil {
		return nil, err
	}

	reconciled, err := meter.Int64Counter(
		"instance_sync_reconciled_instances_total",
		metric.WithDescription("Instances reconciled by resulting action"),
		metric.WithUnit("{instance}"),
	)
	if err != nil {
		return nil, err
	}

	discarded, err := meter.Int64Counter(
		"instance_sync_discarded_snapshots_total",
		metric.WithDescription("Broker snapshots dropped before persistence, by reason"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration: syncDuration,
		collections:  collections,
		reconciled:   reconciled,
		discarded:    discarded,
	}, nil
}

// RecordSyncDuration records one broker refresh
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}
	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordCollection counts a Collect call served from source (broker, cache, storage, snapshot)
func (m *SyncMetrics) RecordCollection(ctx context.Context, source string) {
	if m == nil || m.collections == nil {
		return
	}
	m.collections.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordReconciled adds count instances reconciled with the given action
func (m *SyncMetrics) RecordReconciled(ctx context.Context, action string, count int) {
	if m == nil || m.reconciled == nil || count <= 0 {
		return
	}
	m.reconciled.Add(ctx, int64(count), metric.WithAttributes(attribute.String("action", action)))
}

// RecordDiscarded adds count snapshots dropped for reason
func (m *SyncMetrics) RecordDiscarded(ctx context.Context, reason string, count int) {
	if m == nil || m.discarded == nil || count <= 0 {
		return
	}
	m.discarded.Add(ctx, int64(count), metric.WithAttributes(attribute.String("reason", reason)))
}

// CacheMetrics holds the snapshot cache instruments
type CacheMetrics struct {
	lookups metric.Int64Counter
	errors  metric.Int64Counter
}

// NewCacheMetrics creates CacheMetrics. A nil provider yields nil.
func NewCacheMetrics(provider metric.MeterProvider) (*CacheMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(CacheMetricsMeterName)

	lookups, err := meter.Int64Counter(
		"instance_sync_cache_lookups_total",
		metric.WithDescription("Snapshot cache lookups by backend and result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	errs, err := meter.Int64Counter(
		"instance_sync_cache_errors_total",
		metric.WithDescription("Snapshot cache backend failures by operation"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &CacheMetrics{lookups: lookups, errors: errs}, nil
}

// RecordLookup counts a cache read; hit distinguishes fresh hits from misses
func (m *CacheMetrics) RecordLookup(ctx context.Context, backend string, hit bool) {
	if m == nil || m.lookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("result", result),
	))
}

// RecordError counts a backend failure for operation (get, set, invalidate)
func (m *CacheMetrics) RecordError(ctx context.Context, backend, operation string) {
	if m == nil || m.errors == nil {
		return
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
	))
}
