package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/leadengine/instance-sync/internal/broker"
	"github.com/leadengine/instance-sync/internal/instances"
	"github.com/leadengine/instance-sync/internal/logger"
	"github.com/leadengine/instance-sync/internal/otel"
	"github.com/leadengine/instance-sync/internal/status"
	"github.com/leadengine/instance-sync/internal/storage"
	pkgsync "github.com/leadengine/instance-sync/internal/sync"
)

// Collection sources recorded in metrics
const (
	sourceSync     = "sync"
	sourceStore    = "store"
	sourceCache    = "cache"
	sourceBroker   = "broker"
	sourceProvided = "provided"
	sourceFallback = "fallback"
)

// Collect implements Collector
func (c *defaultCoordinator) Collect(ctx context.Context, tenantID string, opts Options) (*View, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	ctx, span := otel.StartSpan(ctx, c.tracer, "coordinator.Collect",
		trace.WithAttributes(otel.AttrTenantID.String(tenantID)),
	)
	defer span.End()
	log := logger.FromContext(ctx).WithValues("tenant_id", tenantID)

	view := &View{
		Instances:    []PublicInstance{},
		CacheBackend: c.cache.Backend(),
	}

	existing := opts.Existing
	if existing == nil {
		rows, err := c.repo.ListByTenant(ctx, tenantID)
		switch {
		case err == nil:
			existing = rows
		case storage.IsStorageError(err):
			view.StorageFallback = true
			view.warn(WarningStorageFallback)
			logger.Warnw("Persisted store unavailable, falling back to broker snapshots",
				"tenant_id", tenantID,
				"error", err)
		default:
			otel.RecordError(span, err)
			return nil, fmt.Errorf("failed to load instances for tenant %s: %w", tenantID, err)
		}
	}

	forced := opts.Refresh != nil && *opts.Refresh
	view.ShouldRefresh = c.shouldRefresh(ctx, tenantID, opts, existing, view.StorageFallback)
	span.SetAttributes(otel.AttrRefresh.Bool(view.ShouldRefresh))

	if view.ShouldRefresh {
		var rows []*instances.Instance
		if !view.StorageFallback {
			rows = existing
		}
		result, err := c.refresh(ctx, tenantID, forced, rows, opts.Snapshots)
		if err == nil {
			syncedAt := result.SyncedAt
			view.Synced = true
			view.SyncedAt = &syncedAt
			view.Snapshots = result.Snapshots
			view.Instances = publicFromStored(result.Instances, result.Snapshots)
			c.metrics.RecordCollection(ctx, sourceSync)
			span.SetAttributes(otel.AttrResultCount.Int(len(view.Instances)))
			return view, nil
		}
		if forced {
			otel.RecordError(span, err)
			return nil, err
		}
		view.warn(WarningRefreshFailed)
		log.Info("Implicit refresh failed, serving stored instances", "error", err.Error())
	}

	source := sourceStore
	var snapshots []broker.Snapshot
	if opts.FetchSnapshots || opts.Snapshots != nil || view.StorageFallback {
		snapshots, source = c.readSnapshots(ctx, tenantID, opts.Snapshots, view)
		view.Snapshots = snapshots
	}

	if view.StorageFallback && len(existing) == 0 {
		view.Instances = publicFromSnapshots(tenantID, snapshots)
		source = sourceFallback
	} else {
		view.Instances = publicFromStored(existing, snapshots)
	}

	c.metrics.RecordCollection(ctx, source)
	span.SetAttributes(
		otel.AttrSource.String(source),
		otel.AttrCacheHit.Bool(view.CacheHit),
		otel.AttrResultCount.Int(len(view.Instances)),
	)
	return view, nil
}

// shouldRefresh applies the refresh decision; an explicit choice always wins
func (c *defaultCoordinator) shouldRefresh(
	ctx context.Context, tenantID string, opts Options, existing []*instances.Instance, storageFallback bool,
) bool {
	if opts.Refresh != nil {
		return *opts.Refresh
	}
	if storageFallback || len(existing) > 0 || !opts.FetchSnapshots {
		return false
	}
	if c.syncedRecently(ctx, tenantID) {
		logger.Debugf("Tenant %s synced within %s, skipping implicit refresh", tenantID, c.ttl)
		return false
	}
	return true
}

// syncedRecently reports whether the tenant completed a sync within the TTL.
// The cache is consulted first and the persisted sync status second.
func (c *defaultCoordinator) syncedRecently(ctx context.Context, tenantID string) bool {
	now := c.now()
	if at, ok := c.cache.LastSync(ctx, tenantID); ok {
		return now.Sub(at) < c.ttl
	}
	if c.statusSvc == nil {
		return false
	}
	st, err := c.statusSvc.GetSyncStatus(ctx, tenantID)
	if err != nil {
		logger.Debugf("Failed to read sync status for tenant %s: %v", tenantID, err)
		return false
	}
	return st.SyncedWithin(c.ttl, now)
}

// readSnapshots serves snapshots without syncing: provided ones first, then
// the cache, then the broker (which also warms the cache)
func (c *defaultCoordinator) readSnapshots(
	ctx context.Context, tenantID string, provided []broker.Snapshot, view *View,
) ([]broker.Snapshot, string) {
	if provided != nil {
		kept, _ := pkgsync.FilterTenant(tenantID, provided)
		return kept, sourceProvided
	}

	cached := c.cache.Get(ctx, tenantID)
	if cached.Err != nil {
		view.warn(WarningCacheUnavailable)
	}
	if cached.Hit {
		view.CacheHit = true
		return cached.Snapshots, sourceCache
	}

	fetched, err := c.broker.ListInstances(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, broker.ErrNotConfigured) {
			view.warn(WarningBrokerUnavailable)
			logger.Warnw("Failed to read broker snapshots", "tenant_id", tenantID, "error", err)
		}
		return []broker.Snapshot{}, sourceBroker
	}

	kept, _ := pkgsync.FilterTenant(tenantID, fetched)
	c.writeCache(ctx, tenantID, kept, nil)
	return kept, sourceBroker
}

// flightResult is what a refresh flight hands to every caller that joined it
type flightResult struct {
	result *pkgsync.Result
	err    error
	forced bool
	owner  *flightOwner
}

// flightOwner identifies the caller that started a flight. It is not zero
// sized, so every allocation has a distinct address.
type flightOwner struct{ _ byte }

// answers reports whether a settled flight can stand in for the caller's own
// refresh. Implicit flights hide an unconfigured broker and fail softly, so
// they never answer a forced caller, and a flight fed other snapshots never
// answers a caller that brought its own.
func (f *flightResult) answers(owner *flightOwner, forced bool, snapshots []broker.Snapshot) bool {
	if !forced || f.owner == owner {
		return true
	}
	return f.forced && snapshots == nil
}

// maxFlightJoins bounds how many foreign flights a forced caller waits out
const maxFlightJoins = 3

// refresh runs at most one refresh per tenant at a time; concurrent callers
// wait for and share the in-flight result. A forced caller the in-flight
// refresh cannot answer waits for it to settle and attaches to the next one.
func (c *defaultCoordinator) refresh(
	ctx context.Context, tenantID string, forced bool, existing []*instances.Instance, snapshots []broker.Snapshot,
) (*pkgsync.Result, error) {
	for join := 1; ; join++ {
		owner := &flightOwner{}
		rows := existing
		ch := c.flights.DoChan(tenantID, func() (any, error) {
			// a cancelled caller must not fail the waiters that joined it
			result, err := c.runRefresh(context.WithoutCancel(ctx), tenantID, forced, rows, snapshots)
			return &flightResult{result: result, err: err, forced: forced, owner: owner}, nil
		})

		var out *flightResult
		select {
		case res := <-ch:
			out = res.Val.(*flightResult)
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if out.answers(owner, forced, snapshots) {
			return out.result, out.err
		}
		if join >= maxFlightJoins {
			return nil, fmt.Errorf("forced refresh for tenant %s could not start: %d other refreshes ran first", tenantID, join)
		}

		logger.Debugf("Forced refresh for tenant %s joined another flight, attaching to the next one", tenantID)
		// rows read before the other flight settled are stale
		existing = nil
	}
}

func (c *defaultCoordinator) runRefresh(
	ctx context.Context, tenantID string, forced bool, existing []*instances.Instance, snapshots []broker.Snapshot,
) (*pkgsync.Result, error) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "coordinator.refresh",
		trace.WithAttributes(
			otel.AttrTenantID.String(tenantID),
			otel.AttrRefresh.Bool(forced),
		),
	)
	defer span.End()

	start := c.now()
	c.markSyncing(ctx, tenantID)
	logger.Infow("Starting refresh", "tenant_id", tenantID, "forced", forced)

	attempt := 0
	operation := func() (*pkgsync.Result, error) {
		attempt++
		span.SetAttributes(otel.AttrAttempt.Int(attempt))

		if attempt > 1 || existing == nil {
			if attempt > 1 {
				c.cache.Invalidate(ctx, tenantID)
				snapshots = nil
			}
			rows, err := c.repo.ListByTenant(ctx, tenantID)
			if err != nil {
				return nil, backoff.Permanent(fmt.Errorf("failed to load instances for tenant %s: %w", tenantID, err))
			}
			existing = rows
		}

		snaps, err := c.fetchSnapshots(ctx, tenantID, forced, snapshots)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		result, err := c.reconciler.Reconcile(ctx, tenantID, existing, snaps)
		if err != nil {
			if pkgsync.IsUniqueViolation(err) {
				logger.Infow("Concurrent write detected during refresh, retrying",
					"tenant_id", tenantID,
					"attempt", attempt,
					"max_attempts", c.maxAttempts)
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return result, nil
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.maxAttempts)),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	duration := c.now().Sub(start)
	if err != nil {
		c.metrics.RecordSyncDuration(ctx, duration, false)
		c.markFailed(ctx, tenantID, err)
		otel.RecordError(span, err)
		logger.Errorw("Refresh failed",
			"tenant_id", tenantID,
			"attempts", attempt,
			"error", err)
		return nil, err
	}

	c.metrics.RecordSyncDuration(ctx, duration, true)
	c.markComplete(ctx, tenantID, result)
	c.writeCache(ctx, tenantID, result.Snapshots, &result.SyncedAt)

	logger.Infow("Refresh completed",
		"tenant_id", tenantID,
		"instances", len(result.Instances),
		"created", len(result.Created),
		"updated", len(result.Updated),
		"attempts", attempt,
		"duration", duration)
	return result, nil
}

// fetchSnapshots returns provided snapshots or asks the broker. A disabled
// broker only fails forced refreshes.
func (c *defaultCoordinator) fetchSnapshots(
	ctx context.Context, tenantID string, forced bool, provided []broker.Snapshot,
) ([]broker.Snapshot, error) {
	if provided != nil {
		return provided, nil
	}
	snaps, err := c.broker.ListInstances(ctx, tenantID)
	switch {
	case err == nil:
		if snaps == nil {
			snaps = []broker.Snapshot{}
		}
		return snaps, nil
	case errors.Is(err, broker.ErrNotConfigured) && !forced:
		logger.Debugf("Broker not configured, refreshing tenant %s with no snapshots", tenantID)
		return []broker.Snapshot{}, nil
	default:
		return nil, &pkgsync.Error{
			Err:       err,
			Message:   fmt.Sprintf("failed to list broker snapshots for tenant %s: %v", tenantID, err),
			Operation: pkgsync.OperationListSnapshots,
		}
	}
}

func (c *defaultCoordinator) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxInterval = 10 * c.retryInterval
	return b
}

// writeCache stores snapshots and, after a sync, the sync time. It never
// blocks the caller for longer than the cache write timeout.
func (c *defaultCoordinator) writeCache(ctx context.Context, tenantID string, snapshots []broker.Snapshot, syncedAt *time.Time) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cacheWriteTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if syncedAt != nil {
			c.cache.SetLastSync(writeCtx, tenantID, *syncedAt)
		}
		c.cache.Set(writeCtx, tenantID, snapshots, 0)
	}()

	select {
	case <-done:
	case <-writeCtx.Done():
		logger.Warnw("Timed out writing snapshot cache",
			"tenant_id", tenantID,
			"backend", c.cache.Backend(),
			"timeout", c.cacheWriteTimeout)
	}
}

func (c *defaultCoordinator) markSyncing(ctx context.Context, tenantID string) {
	c.updateStatus(ctx, tenantID, func(st *status.SyncStatus) {
		now := c.now()
		st.Phase = status.SyncPhaseSyncing
		st.Message = "Sync in progress"
		st.LastAttempt = &now
	})
}

func (c *defaultCoordinator) markFailed(ctx context.Context, tenantID string, err error) {
	c.updateStatus(ctx, tenantID, func(st *status.SyncStatus) {
		st.Phase = status.SyncPhaseFailed
		st.Message = err.Error()
		st.AttemptCount++
	})
}

func (c *defaultCoordinator) markComplete(ctx context.Context, tenantID string, result *pkgsync.Result) {
	c.updateStatus(ctx, tenantID, func(st *status.SyncStatus) {
		syncedAt := result.SyncedAt
		st.Phase = status.SyncPhaseComplete
		st.Message = "Sync completed successfully"
		st.LastSyncTime = &syncedAt
		st.AttemptCount = 0
		st.InstanceCount = len(result.Instances)
		st.Created = len(result.Created)
		st.Updated = len(result.Updated)
		st.Unchanged = len(result.Unchanged)
		st.Discarded = make(map[string]int, len(result.Discarded))
		for reason, n := range result.Discarded {
			st.Discarded[string(reason)] = n
		}
	})
}

// updateStatus persists sync bookkeeping; failures are logged only
func (c *defaultCoordinator) updateStatus(ctx context.Context, tenantID string, fn func(*status.SyncStatus)) {
	if c.statusSvc == nil {
		return
	}
	_, err := c.statusSvc.UpdateStatusAtomically(ctx, tenantID, func(st *status.SyncStatus) bool {
		fn(st)
		return true
	})
	if err != nil {
		logger.Warnw("Failed to update sync status", "tenant_id", tenantID, "error", err)
	}
}
