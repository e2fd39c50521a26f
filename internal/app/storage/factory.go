// Package storage builds the persistence-backed components as a family so the
// instance repository, the integration-state table, the sync status service
// and the distributed cache backend always share one backend.
package storage

import (
	"context"
	"fmt"

	"github.com/leadengine/instance-sync/internal/cache"
	"github.com/leadengine/instance-sync/internal/config"
	"github.com/leadengine/instance-sync/internal/logger"
	"github.com/leadengine/instance-sync/internal/storage"
	"github.com/leadengine/instance-sync/internal/sync/state"
)

// Factory creates storage-dependent components
type Factory interface {
	// Type names the backend, one of the storage.Type* constants
	Type() string

	// CreateStore returns the instance repository and state table
	CreateStore(ctx context.Context) (storage.Store, error)

	// CreateStateService returns the per-tenant sync status service
	CreateStateService(ctx context.Context) (state.TenantStateService, error)

	// CreateCacheBackend returns the snapshot cache backend named by backend
	CreateCacheBackend(ctx context.Context, backend string) (cache.Backend, error)

	// Cleanup releases connections held by the factory
	Cleanup()
}

// NewStorageFactory creates the factory for the configured storage type
func NewStorageFactory(ctx context.Context, cfg *config.Config) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.GetStorageType() {
	case config.StorageTypePostgres:
		return NewDatabaseFactory(ctx, cfg)
	case config.StorageTypeSQLite:
		return NewSQLiteFactory(cfg.GetSQLitePath())
	case config.StorageTypeMemory:
		return NewMemoryFactory(), nil
	case config.StorageTypeDisabled:
		return NewDisabledFactory(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.GetStorageType())
	}
}

// cacheBackendFor selects the cache backend over states
func cacheBackendFor(backend string, states storage.StateStore) (cache.Backend, error) {
	switch backend {
	case "", config.CacheBackendMemory:
		return cache.NewMemoryBackend(), nil
	case config.CacheBackendStore:
		return cache.NewStoreBackend(states), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", backend)
	}
}

// storeFactory serves every backend whose components all live in one storage.Store
type storeFactory struct {
	kind  string
	store storage.Store
}

func (f *storeFactory) Type() string { return f.kind }

func (f *storeFactory) CreateStore(_ context.Context) (storage.Store, error) {
	return f.store, nil
}

func (f *storeFactory) CreateStateService(_ context.Context) (state.TenantStateService, error) {
	return state.NewStateService(f.store), nil
}

func (f *storeFactory) CreateCacheBackend(_ context.Context, backend string) (cache.Backend, error) {
	return cacheBackendFor(backend, f.store)
}

func (f *storeFactory) Cleanup() {
	if err := f.store.Close(); err != nil {
		logger.Warnw("Failed to close store", "type", f.kind, "error", err)
	}
}
