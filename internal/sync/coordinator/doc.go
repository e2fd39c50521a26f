// Package coordinator collects the instance view served to tenants and keeps it
// fresh in the background.
//
// It sits on top of internal/sync (the reconciler) and handles:
//
//   - The refresh decision for each collection (forced, skipped or TTL gated)
//   - Per-tenant single-flight refreshes, so concurrent callers share one broker round-trip
//   - Bounded retries when two writers race on the same instance id
//   - Degraded reads when the persisted store is disabled or unreachable
//   - Snapshot caching and the post-sync cache write timeout
//   - A jittered background loop that refreshes every known tenant
//
// # Core Interfaces
//
//	type Collector interface {
//	    Collect(ctx context.Context, tenantID string, opts Options) (*View, error)
//	}
//
//	type Coordinator interface {
//	    Collector
//	    Start(ctx context.Context) error
//	    Stop() error
//	}
//
// # Refresh Decision
//
// An explicit Options.Refresh always wins. Without one, a refresh only runs on
// a cold start (no persisted instances and snapshots requested), and only if
// the tenant has not completed a sync within the configured TTL. Storage
// failures disable implicit refreshes entirely.
//
// # Usage Example
//
//	rec := sync.NewReconciler(brokerClient, store, archives)
//	coord := coordinator.New(rec, store, brokerClient, snapshotCache, stateSvc)
//
//	view, err := coord.Collect(ctx, tenantID, coordinator.Options{FetchSnapshots: true})
//	if err != nil {
//	    return err
//	}
//
//	go coord.Start(ctx)
//	defer coord.Stop()
//
// Collect never fails for storage, cache or opportunistic broker errors; those
// surface as View.Warnings and View.StorageFallback. Only request-shape errors
// and failures of an explicitly forced refresh are returned.
package coordinator
