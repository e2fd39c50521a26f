package cache

import (
	"context"
	"sync"

	"github.com/leadengine/instance-sync/internal/storage"
)

const (
	// BackendMemory keeps entries in process memory
	BackendMemory = "memory"
	// BackendStore keeps entries in the integration-state table shared by every replica
	BackendStore = "store"
)

// Backend is a raw key/value store for cache entries. Expiry is not the
// backend's concern; entries carry their own expiresAt.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryBackend is a mutex-guarded map
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryBackend returns an empty in-process backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string][]byte)}
}

// Name implements Backend
func (*MemoryBackend) Name() string { return BackendMemory }

// Get implements Backend
func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.entries[key]
	return v, ok, nil
}

// Set implements Backend
func (b *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = value
	return nil
}

// Delete implements Backend
func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

// StoreBackend keeps entries in the persisted integration-state table
type StoreBackend struct {
	states storage.StateStore
}

// NewStoreBackend wraps a StateStore
func NewStoreBackend(states storage.StateStore) *StoreBackend {
	return &StoreBackend{states: states}
}

// Name implements Backend
func (*StoreBackend) Name() string { return BackendStore }

// Get implements Backend
func (b *StoreBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return b.states.GetState(ctx, key)
}

// Set implements Backend
func (b *StoreBackend) Set(ctx context.Context, key string, value []byte) error {
	return b.states.PutState(ctx, key, value)
}

// Delete implements Backend
func (b *StoreBackend) Delete(ctx context.Context, key string) error {
	return b.states.DeleteState(ctx, key)
}
