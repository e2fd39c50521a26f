// Package cache is the TTL'd snapshot cache that sits between the
// orchestrator and the broker.
//
// One backend is chosen at startup. Every write also lands in a local
// in-memory mirror, so an outage of the shared backend degrades to
// stale-but-available instead of unavailable. No method returns an error:
// backend failures are logged and reported in the result.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leadengine/instance-sync/internal/broker"
	"github.com/leadengine/instance-sync/internal/logger"
	"github.com/leadengine/instance-sync/internal/telemetry"
)

// DefaultTTL is the snapshot lifetime used when Set is given no TTL
const DefaultTTL = 30 * time.Second

const (
	snapshotKeyPrefix = "whatsapp:snapshot-cache:"
	lastSyncKeyPrefix = "whatsapp:last-sync:"
)

// BackendError wraps a failure of the cache backend. It never escapes the
// cache as a returned error; it only appears in results.
type BackendError struct {
	Backend   string
	Operation string
	Err       error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("cache backend %s failed during %s: %v", e.Backend, e.Operation, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// GetResult is the outcome of a snapshot lookup
type GetResult struct {
	// Snapshots is nil on a miss
	Snapshots []broker.Snapshot
	Hit       bool
	Backend   string
	Err       error
}

// SetResult is the outcome of a write or invalidation
type SetResult struct {
	Backend string
	Err     error
}

type snapshotEntry struct {
	Snapshots []broker.Snapshot `json:"snapshots"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

type lastSyncEntry struct {
	SyncedAt time.Time `json:"syncedAt"`
}

// Option configures a SnapshotCache
type Option func(*SnapshotCache)

// WithTTL sets the default snapshot lifetime
func WithTTL(ttl time.Duration) Option {
	return func(c *SnapshotCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *SnapshotCache) {
		c.now = now
	}
}

// WithMetrics records hit/miss/error counters
func WithMetrics(m *telemetry.CacheMetrics) Option {
	return func(c *SnapshotCache) {
		c.metrics = m
	}
}

// SnapshotCache caches broker snapshot lists and last-sync timestamps per tenant
type SnapshotCache struct {
	backend Backend
	mirror  *MemoryBackend
	ttl     time.Duration
	now     func() time.Time
	metrics *telemetry.CacheMetrics
}

// New creates a SnapshotCache over backend. A nil backend selects memory.
func New(backend Backend, opts ...Option) *SnapshotCache {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	c := &SnapshotCache{
		backend: backend,
		mirror:  NewMemoryBackend(),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backend returns the name of the configured backend
func (c *SnapshotCache) Backend() string {
	return c.backend.Name()
}

// TTL returns the default snapshot lifetime
func (c *SnapshotCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the unexpired snapshots for tenantID. When the backend fails
// the mirror is consulted; the failure is reported in Err either way.
func (c *SnapshotCache) Get(ctx context.Context, tenantID string) GetResult {
	key := snapshotKeyPrefix + tenantID
	result := GetResult{Backend: c.backend.Name()}

	raw, found, err := c.backend.Get(ctx, key)
	if err != nil {
		result.Err = c.backendError(ctx, "get", tenantID, err)
		raw, found, _ = c.mirror.Get(ctx, key)
	}

	if found {
		var entry snapshotEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			if result.Err == nil {
				result.Err = c.backendError(ctx, "decode", tenantID, err)
			}
		} else if c.now().Before(entry.ExpiresAt) {
			result.Snapshots = entry.Snapshots
			if result.Snapshots == nil {
				result.Snapshots = []broker.Snapshot{}
			}
			result.Hit = true
		}
	}

	c.metrics.RecordLookup(ctx, result.Backend, result.Hit)
	return result
}

// Set stores snapshots for tenantID. A non-positive ttl uses the default.
func (c *SnapshotCache) Set(ctx context.Context, tenantID string, snapshots []broker.Snapshot, ttl time.Duration) SetResult {
	if ttl <= 0 {
		ttl = c.ttl
	}
	raw, err := json.Marshal(snapshotEntry{Snapshots: snapshots, ExpiresAt: c.now().Add(ttl)})
	if err != nil {
		return SetResult{Backend: c.backend.Name(), Err: c.backendError(ctx, "encode", tenantID, err)}
	}
	return c.write(ctx, "set", tenantID, snapshotKeyPrefix+tenantID, raw)
}

// Invalidate drops the cached snapshots for tenantID
func (c *SnapshotCache) Invalidate(ctx context.Context, tenantID string) SetResult {
	key := snapshotKeyPrefix + tenantID
	result := SetResult{Backend: c.backend.Name()}

	_ = c.mirror.Delete(ctx, key)
	if err := c.backend.Delete(ctx, key); err != nil {
		result.Err = c.backendError(ctx, "invalidate", tenantID, err)
	}
	return result
}

// SetLastSync records when the tenant last completed a sync
func (c *SnapshotCache) SetLastSync(ctx context.Context, tenantID string, at time.Time) SetResult {
	raw, err := json.Marshal(lastSyncEntry{SyncedAt: at.UTC()})
	if err != nil {
		return SetResult{Backend: c.backend.Name(), Err: c.backendError(ctx, "encode", tenantID, err)}
	}
	return c.write(ctx, "set-last-sync", tenantID, lastSyncKeyPrefix+tenantID, raw)
}

// LastSync returns when the tenant last completed a sync, if known
func (c *SnapshotCache) LastSync(ctx context.Context, tenantID string) (time.Time, bool) {
	key := lastSyncKeyPrefix + tenantID

	raw, found, err := c.backend.Get(ctx, key)
	if err != nil {
		_ = c.backendError(ctx, "get-last-sync", tenantID, err)
		raw, found, _ = c.mirror.Get(ctx, key)
	}
	if !found {
		return time.Time{}, false
	}

	var entry lastSyncEntry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.SyncedAt.IsZero() {
		return time.Time{}, false
	}
	return entry.SyncedAt, true
}

func (c *SnapshotCache) write(ctx context.Context, op, tenantID, key string, raw []byte) SetResult {
	result := SetResult{Backend: c.backend.Name()}

	_ = c.mirror.Set(ctx, key, raw)
	if err := c.backend.Set(ctx, key, raw); err != nil {
		result.Err = c.backendError(ctx, op, tenantID, err)
	}
	return result
}

func (c *SnapshotCache) backendError(ctx context.Context, op, tenantID string, err error) error {
	backendErr := &BackendError{Backend: c.backend.Name(), Operation: op, Err: err}
	c.metrics.RecordError(ctx, c.backend.Name(), op)
	logger.Warnw("Snapshot cache backend failure",
		"backend", c.backend.Name(),
		"operation", op,
		"tenant_id", tenantID,
		"error", err,
	)
	return backendErr
}
