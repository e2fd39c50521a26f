package app

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/leadengine/instance-sync/internal/api"
	"github.com/leadengine/instance-sync/internal/app/storage"
	"github.com/leadengine/instance-sync/internal/archive"
	"github.com/leadengine/instance-sync/internal/broker"
	"github.com/leadengine/instance-sync/internal/cache"
	"github.com/leadengine/instance-sync/internal/config"
	"github.com/leadengine/instance-sync/internal/disconnect"
	"github.com/leadengine/instance-sync/internal/events"
	"github.com/leadengine/instance-sync/internal/logger"
	"github.com/leadengine/instance-sync/internal/service"
	pkgsync "github.com/leadengine/instance-sync/internal/sync"
	"github.com/leadengine/instance-sync/internal/sync/coordinator"
	"github.com/leadengine/instance-sync/internal/telemetry"
)

const (
	defaultRequestTimeout    = 10 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
	defaultReadTimeout       = 10 * time.Second
	defaultIdleTimeout       = 60 * time.Second

	// tracerName names the tracer shared by the sync components
	tracerName = "github.com/leadengine/instance-sync"

	// eventStreamSuffix marks long-lived SSE routes exempt from the request timeout
	eventStreamSuffix = "/events"
)

// Option configures the application builder
type Option func(*appConfig) error

// appConfig collects builder inputs. Overrides exist mainly for tests.
type appConfig struct {
	config *config.Config

	storageFactory storage.Factory
	brokerClient   broker.Client
	telemetry      *telemetry.Telemetry
	ownsTelemetry  bool

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...Option) (*appConfig, error) {
	cfg := &appConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.GetServerAddress()
	}
	return cfg, nil
}

// NewInstanceSyncApp assembles every component from the configuration
func NewInstanceSyncApp(ctx context.Context, opts ...Option) (*InstanceSyncApp, error) {
	b, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	if b.telemetry == nil {
		b.telemetry, err = telemetry.New(ctx, telemetry.WithTelemetryConfig(b.config.Telemetry))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		b.ownsTelemetry = true
	}

	if b.storageFactory == nil {
		b.storageFactory, err = storage.NewStorageFactory(ctx, b.config)
		if err != nil {
			b.shutdownTelemetry()
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			b.storageFactory.Cleanup()
			b.shutdownTelemetry()
		}
	}()

	components, err := buildComponents(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to build components: %w", err)
	}

	httpServer, err := buildHTTPServer(b, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	return &InstanceSyncApp{
		config:     b.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
		cleanup: func() {
			b.storageFactory.Cleanup()
			b.shutdownTelemetry()
		},
	}, nil
}

func (b *appConfig) shutdownTelemetry() {
	if !b.ownsTelemetry || b.telemetry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.telemetry.Shutdown(ctx); err != nil {
		logger.Warnf("Failed to shutdown telemetry: %v", err)
	}
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) Option {
	return func(cfg *appConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress overrides the configured listen address
func WithAddress(addr string) Option {
	return func(cfg *appConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		switch host {
		case "localhost":
			host = "127.0.0.1"
		case "":
			host = "0.0.0.0"
		}
		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *appConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithRequestTimeout sets the per-request timeout of non-streaming routes
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *appConfig) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithStorageFactory injects a storage factory
func WithStorageFactory(f storage.Factory) Option {
	return func(cfg *appConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithBrokerClient injects a broker client
func WithBrokerClient(c broker.Client) Option {
	return func(cfg *appConfig) error {
		cfg.brokerClient = c
		return nil
	}
}

// WithTelemetry injects initialized telemetry. The caller keeps ownership.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(cfg *appConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// buildComponents wires storage, cache, broker, reconciler, coordinator and service
func buildComponents(ctx context.Context, b *appConfig) (*Components, error) {
	logger.Infow("Initializing sync components", "storage", b.storageFactory.Type())

	store, err := b.storageFactory.CreateStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	states, err := b.storageFactory.CreateStateService(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create state service: %w", err)
	}
	backend, err := b.storageFactory.CreateCacheBackend(ctx, b.config.GetCacheBackend())
	if err != nil {
		return nil, fmt.Errorf("failed to create cache backend: %w", err)
	}

	meterProvider := b.telemetry.MeterProvider()
	cacheMetrics, err := telemetry.NewCacheMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache metrics: %w", err)
	}
	syncMetrics, err := telemetry.NewSyncMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	tracer := b.telemetry.Tracer(tracerName)

	if b.brokerClient == nil {
		b.brokerClient = broker.NewClient(
			b.config.Broker.BaseURL,
			b.config.Broker.APIKey,
			broker.WithTimeout(b.config.GetBrokerTimeout()),
		)
	}

	snapshotCache := cache.New(backend,
		cache.WithTTL(b.config.GetCacheTTL()),
		cache.WithMetrics(cacheMetrics),
	)
	archives := archive.New(store)

	bus := events.NewBus()
	emitter := events.Fanout{bus, events.LogEmitter{}}

	reconciler := pkgsync.NewReconciler(b.brokerClient, store, archives,
		pkgsync.WithEmitter(emitter),
		pkgsync.WithMetrics(syncMetrics),
		pkgsync.WithTracer(tracer),
	)

	coordOpts := append(coordinator.OptionsFromConfig(b.config),
		coordinator.WithSyncMetrics(syncMetrics),
		coordinator.WithTracer(tracer),
	)
	coord := coordinator.New(reconciler, store, b.brokerClient, snapshotCache, states, coordOpts...)

	svc, err := service.New(
		service.WithStore(store),
		service.WithBroker(b.brokerClient),
		service.WithCollector(coord),
		service.WithArchives(archives),
		service.WithDisconnectQueue(disconnect.NewQueue(store)),
		service.WithCache(snapshotCache),
		service.WithEmitter(emitter),
		service.WithTracer(tracer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create instance service: %w", err)
	}

	logger.Infow("Sync components initialized", "cache_backend", backend.Name())

	return &Components{
		Coordinator: coord,
		Service:     svc,
		Events:      bus,
		States:      states,
		Store:       store,
	}, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(b *appConfig, components *Components) (*http.Server, error) {
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			exceptStreams(middleware.Timeout(b.requestTimeout)),
			api.LoggingMiddleware,
		}
	}

	metricsMiddleware, err := telemetry.MetricsMiddleware(b.telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
	}
	// Metrics and tracing run first so they observe every request
	b.middlewares = append([]func(http.Handler) http.Handler{
		metricsMiddleware,
		telemetry.TracingMiddleware(b.telemetry.TracerProvider()),
	}, b.middlewares...)

	router := api.NewServer(components.Service,
		api.WithMiddlewares(b.middlewares...),
		api.WithMetricsHandler(b.telemetry.MetricsHandler()),
		api.WithEventBus(components.Events),
	)

	// No WriteTimeout: event streams stay open, other routes are bounded by
	// the timeout middleware.
	server := &http.Server{
		Addr:              b.address,
		Handler:           router,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       b.readTimeout,
		IdleTimeout:       b.idleTimeout,
	}

	logger.Infow("HTTP server configured", "address", b.address)
	return server, nil
}

// exceptStreams applies mw to every request except event streams
func exceptStreams(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, eventStreamSuffix) {
				next.ServeHTTP(w, r)
				return
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}
