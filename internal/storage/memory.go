package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/leadengine/instance-sync/internal/instances"
)

// MemoryStore keeps instances and integration state in process memory.
// It is used in tests and in single-process deployments without a database.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]map[string]*instances.Instance // tenant -> id -> instance
	states    map[string][]byte
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]map[string]*instances.Instance),
		states:    make(map[string][]byte),
		now:       time.Now,
	}
}

// ListByTenant implements InstanceRepository
func (s *MemoryStore) ListByTenant(_ context.Context, tenantID string) ([]*instances.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := s.instances[tenantID]
	out := make([]*instances.Instance, 0, len(byID))
	for _, inst := range byID {
		out = append(out, inst.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get implements InstanceRepository
func (s *MemoryStore) Get(_ context.Context, tenantID, id string) (*instances.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[tenantID][id]
	if !ok {
		return nil, ErrNotFound
	}
	return inst.Clone(), nil
}

// Create implements InstanceRepository
func (s *MemoryStore) Create(_ context.Context, inst *instances.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.instances[inst.TenantID]
	if byID == nil {
		byID = make(map[string]*instances.Instance)
		s.instances[inst.TenantID] = byID
	}
	if _, exists := byID[inst.ID]; exists {
		return fmt.Errorf("create instance %s: %w", inst.ID, ErrUniqueViolation)
	}
	if err := s.checkBrokerIDLocked(inst); err != nil {
		return err
	}

	now := s.now().UTC()
	stored := inst.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	byID[inst.ID] = stored

	inst.CreatedAt = stored.CreatedAt
	inst.UpdatedAt = stored.UpdatedAt
	return nil
}

// Update implements InstanceRepository
func (s *MemoryStore) Update(_ context.Context, inst *instances.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.instances[inst.TenantID][inst.ID]
	if !ok {
		return ErrNotFound
	}
	if err := s.checkBrokerIDLocked(inst); err != nil {
		return err
	}

	stored := inst.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = s.now().UTC()
	s.instances[inst.TenantID][inst.ID] = stored

	inst.CreatedAt = stored.CreatedAt
	inst.UpdatedAt = stored.UpdatedAt
	return nil
}

// checkBrokerIDLocked enforces broker id uniqueness within a tenant
func (s *MemoryStore) checkBrokerIDLocked(inst *instances.Instance) error {
	if inst.BrokerID == nil || *inst.BrokerID == "" {
		return nil
	}
	for id, other := range s.instances[inst.TenantID] {
		if id == inst.ID || other.BrokerID == nil {
			continue
		}
		if *other.BrokerID == *inst.BrokerID {
			return fmt.Errorf("broker id %s already used by %s: %w", *inst.BrokerID, id, ErrUniqueViolation)
		}
	}
	return nil
}

// Delete implements InstanceRepository
func (s *MemoryStore) Delete(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if byID, ok := s.instances[tenantID]; ok {
		delete(byID, id)
		if len(byID) == 0 {
			delete(s.instances, tenantID)
		}
	}
	return nil
}

// ListTenants implements InstanceRepository
func (s *MemoryStore) ListTenants(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenants := make([]string, 0, len(s.instances))
	for tenant := range s.instances {
		tenants = append(tenants, tenant)
	}
	sort.Strings(tenants)
	return tenants, nil
}

// GetState implements StateStore
func (s *MemoryStore) GetState(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.states[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// GetStates implements StateStore
func (s *MemoryStore) GetStates(_ context.Context, keys []string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if v, ok := s.states[key]; ok {
			out[key] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

// PutState implements StateStore
func (s *MemoryStore) PutState(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[key] = append([]byte(nil), value...)
	return nil
}

// DeleteState implements StateStore
func (s *MemoryStore) DeleteState(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, key)
	return nil
}

// Ping implements Store
func (*MemoryStore) Ping(context.Context) error {
	return nil
}

// Close implements Store
func (*MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
