package coordinator

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/leadengine/instance-sync/internal/broker"
	"github.com/leadengine/instance-sync/internal/cache"
	"github.com/leadengine/instance-sync/internal/logger"
	"github.com/leadengine/instance-sync/internal/storage"
	pkgsync "github.com/leadengine/instance-sync/internal/sync"
	"github.com/leadengine/instance-sync/internal/sync/state"
	"github.com/leadengine/instance-sync/internal/telemetry"
)

// maxPollingJitter caps the random offset applied to the background interval
const maxPollingJitter = 30 * time.Second

// ErrTenantRequired is returned when a collection names no tenant
var ErrTenantRequired = errors.New("tenant id is required")

// Collector builds the instance view of a tenant
//
//go:generate mockgen -destination=mocks/mock_collector.go -package=mocks github.com/leadengine/instance-sync/internal/sync/coordinator Collector
type Collector interface {
	// Collect returns the tenant's instances, refreshing them from the broker
	// when opts or staleness call for it
	Collect(ctx context.Context, tenantID string, opts Options) (*View, error)
}

// Coordinator is a Collector that can also refresh tenants in the background
type Coordinator interface {
	Collector

	// Start runs the background refresh loop until ctx is cancelled or Stop is called
	Start(ctx context.Context) error

	// Stop halts the background loop and waits for it to exit
	Stop() error
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	reconciler pkgsync.Reconciler
	repo       storage.InstanceRepository
	broker     broker.Client
	cache      *cache.SnapshotCache
	statusSvc  state.TenantStateService

	metrics *telemetry.SyncMetrics
	tracer  trace.Tracer
	now     func() time.Time

	ttl               time.Duration
	cacheWriteTimeout time.Duration
	maxAttempts       int
	retryInterval     time.Duration
	interval          time.Duration
	parallelism       int

	flights singleflight.Group

	// Lifecycle management
	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option configures the coordinator
type Option func(*defaultCoordinator)

// WithTTL sets how recent a sync must be to skip an implicit refresh
func WithTTL(ttl time.Duration) Option {
	return func(c *defaultCoordinator) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheWriteTimeout bounds the cache writes that follow a sync
func WithCacheWriteTimeout(timeout time.Duration) Option {
	return func(c *defaultCoordinator) {
		if timeout > 0 {
			c.cacheWriteTimeout = timeout
		}
	}
}

// WithMaxAttempts bounds refresh attempts on unique-constraint races
func WithMaxAttempts(attempts int) Option {
	return func(c *defaultCoordinator) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

// WithRetryInterval sets the first pause between refresh attempts
func WithRetryInterval(interval time.Duration) Option {
	return func(c *defaultCoordinator) {
		if interval > 0 {
			c.retryInterval = interval
		}
	}
}

// WithInterval sets the base period of the background loop
func WithInterval(interval time.Duration) Option {
	return func(c *defaultCoordinator) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithParallelism caps concurrent tenant refreshes in the background loop
func WithParallelism(n int) Option {
	return func(c *defaultCoordinator) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithSyncMetrics sets the sync metrics for the coordinator
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(c *defaultCoordinator) {
		c.metrics = metrics
	}
}

// WithTracer enables spans around collections and refreshes
func WithTracer(tracer trace.Tracer) Option {
	return func(c *defaultCoordinator) {
		c.tracer = tracer
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *defaultCoordinator) {
		c.now = now
	}
}

// New creates a new coordinator with injected dependencies.
// A nil snapshotCache gets a private in-memory cache; a nil statusSvc disables
// sync bookkeeping.
func New(
	reconciler pkgsync.Reconciler,
	repo storage.InstanceRepository,
	brokerClient broker.Client,
	snapshotCache *cache.SnapshotCache,
	statusSvc state.TenantStateService,
	opts ...Option,
) Coordinator {
	c := &defaultCoordinator{
		reconciler:        reconciler,
		repo:              repo,
		broker:            brokerClient,
		cache:             snapshotCache,
		statusSvc:         statusSvc,
		now:               time.Now,
		ttl:               DefaultTTL,
		cacheWriteTimeout: DefaultCacheWriteTimeout,
		maxAttempts:       DefaultMaxAttempts,
		retryInterval:     defaultRetryInterval,
		interval:          DefaultInterval,
		parallelism:       defaultParallelism,
	}
	if c.cache == nil {
		c.cache = cache.New(nil)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// pollingInterval returns the base interval with a random jitter of up to a
// quarter of it, capped at maxPollingJitter
func (c *defaultCoordinator) pollingInterval() time.Duration {
	jitter := min(c.interval/4, maxPollingJitter)
	if jitter <= 0 {
		return c.interval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	offset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	return c.interval + offset
}

// Start begins background refreshes for every tenant that owns instances
func (c *defaultCoordinator) Start(ctx context.Context) error {
	coordCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	if c.cancelFunc != nil {
		c.mu.Unlock()
		cancel()
		return errors.New("coordinator already started")
	}
	c.cancelFunc = cancel
	c.done = done
	c.mu.Unlock()

	logger.Infow("Starting background refresh coordinator", "base_interval", c.interval)
	defer func() {
		close(done)
		logger.Infow("Background refresh coordinator shutting down")
	}()

	interval := c.pollingInterval()
	logger.Infow("Configured coordinator refresh interval",
		"base_interval", c.interval,
		"actual_interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.refreshAll(coordCtx)

	for {
		select {
		case <-ticker.C:
			c.refreshAll(coordCtx)

			// Recalculate interval with new jitter for next iteration
			ticker.Reset(c.pollingInterval())
		case <-coordCtx.Done():
			logger.Infow("Refresh coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancelFunc, c.done
	c.mu.Unlock()

	if cancel != nil {
		logger.Infow("Stopping refresh coordinator")
		cancel()
		<-done
	}
	return nil
}

// refreshAll runs a TTL-gated refresh for every known tenant
func (c *defaultCoordinator) refreshAll(ctx context.Context) {
	tenants, err := c.repo.ListTenants(ctx)
	if err != nil {
		logger.Errorw("Failed to list tenants for background refresh", "error", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for _, tenantID := range tenants {
		g.Go(func() error {
			if err := c.refreshIfStale(gctx, tenantID); err != nil {
				logger.Warnw("Background refresh failed", "tenant_id", tenantID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (c *defaultCoordinator) refreshIfStale(ctx context.Context, tenantID string) error {
	if ctx.Err() != nil {
		return nil
	}
	if c.syncedRecently(ctx, tenantID) {
		logger.Debugf("Tenant %s synced within %s, skipping background refresh", tenantID, c.ttl)
		return nil
	}
	_, err := c.refresh(ctx, tenantID, false, nil, nil)
	return err
}
