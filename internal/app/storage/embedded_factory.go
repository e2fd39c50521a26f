package storage

import (
	"context"
	"fmt"

	"github.com/leadengine/instance-sync/internal/cache"
	"github.com/leadengine/instance-sync/internal/logger"
	"github.com/leadengine/instance-sync/internal/storage"
	"github.com/leadengine/instance-sync/internal/sync/state"
)

// NewSQLiteFactory opens the embedded SQLite database at path
func NewSQLiteFactory(path string) (Factory, error) {
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	logger.Infow("Using embedded SQLite storage", "path", path)
	return &storeFactory{kind: storage.TypeSQLite, store: store}, nil
}

// NewMemoryFactory keeps everything in process memory
func NewMemoryFactory() Factory {
	return &storeFactory{kind: storage.TypeMemory, store: storage.NewMemoryStore()}
}

// DisabledFactory serves a store that rejects every call. Sync status and the
// snapshot cache stay in memory so collections still report and cache.
type DisabledFactory struct {
	store  *storage.DisabledStore
	states *storage.MemoryStore
}

var _ Factory = (*DisabledFactory)(nil)

// NewDisabledFactory creates a DisabledFactory
func NewDisabledFactory() *DisabledFactory {
	return &DisabledFactory{store: storage.NewDisabledStore(), states: storage.NewMemoryStore()}
}

// Type implements Factory
func (*DisabledFactory) Type() string { return storage.TypeDisabled }

// CreateStore implements Factory
func (f *DisabledFactory) CreateStore(_ context.Context) (storage.Store, error) {
	return f.store, nil
}

// CreateStateService implements Factory
func (f *DisabledFactory) CreateStateService(_ context.Context) (state.TenantStateService, error) {
	return state.NewStateService(f.states), nil
}

// CreateCacheBackend implements Factory. The store backend degrades to memory.
func (f *DisabledFactory) CreateCacheBackend(_ context.Context, backend string) (cache.Backend, error) {
	b, err := cacheBackendFor(backend, f.states)
	if err != nil {
		return nil, err
	}
	if b.Name() == cache.BackendStore {
		logger.Warnw("Store cache backend requested with storage disabled, using memory")
		return cache.NewMemoryBackend(), nil
	}
	return b, nil
}

// Cleanup implements Factory
func (*DisabledFactory) Cleanup() {}
