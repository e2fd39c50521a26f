// Package storage persists WhatsApp instances and the integration-state key/value table.
//
// The key/value table backs the distributed snapshot cache, the archive store and the
// disconnect retry queue; each of those namespaces its keys by tenant.
package storage

import (
	"context"

	"github.com/leadengine/instance-sync/internal/instances"
)

const (
	// TypePostgres stores data in PostgreSQL
	TypePostgres = "postgres"
	// TypeSQLite stores data in an embedded SQLite database
	TypeSQLite = "sqlite"
	// TypeMemory keeps data in process memory
	TypeMemory = "memory"
	// TypeDisabled turns persistence off; every call fails with ErrStorageDisabled
	TypeDisabled = "disabled"
)

// InstanceRepository is tenant-scoped CRUD over persisted instances
type InstanceRepository interface {
	// ListByTenant returns every instance owned by the tenant, ordered by id
	ListByTenant(ctx context.Context, tenantID string) ([]*instances.Instance, error)
	// Get returns one instance or ErrNotFound
	Get(ctx context.Context, tenantID, id string) (*instances.Instance, error)
	// Create inserts a new instance. A duplicate id or broker id within the
	// tenant fails with ErrUniqueViolation.
	Create(ctx context.Context, inst *instances.Instance) error
	// Update overwrites an existing instance or fails with ErrNotFound
	Update(ctx context.Context, inst *instances.Instance) error
	// Delete removes an instance; deleting a missing instance is not an error
	Delete(ctx context.Context, tenantID, id string) error
	// ListTenants returns the tenants that own at least one instance
	ListTenants(ctx context.Context) ([]string, error)
}

// StateStore is the generic integration-state key/value table
type StateStore interface {
	// GetState returns the value stored under key and whether it exists
	GetState(ctx context.Context, key string) ([]byte, bool, error)
	// GetStates returns the values for the keys that exist
	GetStates(ctx context.Context, keys []string) (map[string][]byte, error)
	// PutState upserts a value
	PutState(ctx context.Context, key string, value []byte) error
	// DeleteState removes a key; removing a missing key is not an error
	DeleteState(ctx context.Context, key string) error
}

// Store is the full persistence surface
type Store interface {
	InstanceRepository
	StateStore

	// Ping checks connectivity
	Ping(ctx context.Context) error
	// Close releases resources held by the store
	Close() error
}
