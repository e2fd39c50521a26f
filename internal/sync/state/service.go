// Package state keeps per-tenant sync status in the integration-state table.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/leadengine/instance-sync/internal/status"
	"github.com/leadengine/instance-sync/internal/storage"
)

const keyPrefix = "whatsapp:sync-status:"

// TenantStateService reads and updates tenant sync statuses
//
//go:generate mockgen -destination=mocks/mock_tenant_state_service.go -package=mocks github.com/leadengine/instance-sync/internal/sync/state TenantStateService
type TenantStateService interface {
	// ListSyncStatuses returns the statuses of the given tenants that have one
	ListSyncStatuses(ctx context.Context, tenantIDs []string) (map[string]*status.SyncStatus, error)
	// GetSyncStatus returns the tenant's status, or nil if it never synced
	GetSyncStatus(ctx context.Context, tenantID string) (*status.SyncStatus, error)
	// UpdateSyncStatus overwrites the tenant's status
	UpdateSyncStatus(ctx context.Context, tenantID string, syncStatus *status.SyncStatus) error
	// UpdateStatusAtomically fetches the tenant's status (a zero value if
	// absent), applies testAndUpdateFn and stores the result if the function
	// reports a change. The returned bool is that report.
	UpdateStatusAtomically(
		ctx context.Context,
		tenantID string,
		testAndUpdateFn func(syncStatus *status.SyncStatus) bool,
	) (bool, error)
}

type stateService struct {
	states storage.StateStore

	mu    sync.Mutex
	locks map[string]*tenantLock
}

type tenantLock struct {
	mu   sync.Mutex
	refs int
}

// NewStateService creates a TenantStateService over the integration-state table.
// Atomic updates are serialized per tenant within this process.
func NewStateService(states storage.StateStore) TenantStateService {
	return &stateService{
		states: states,
		locks:  make(map[string]*tenantLock),
	}
}

// Key returns the integration-state key of a tenant's sync status
func Key(tenantID string) string {
	return keyPrefix + tenantID
}

func (s *stateService) ListSyncStatuses(ctx context.Context, tenantIDs []string) (map[string]*status.SyncStatus, error) {
	keys := make([]string, len(tenantIDs))
	for i, id := range tenantIDs {
		keys[i] = Key(id)
	}

	values, err := s.states.GetStates(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync statuses: %w", err)
	}

	out := make(map[string]*status.SyncStatus, len(values))
	for _, id := range tenantIDs {
		raw, ok := values[Key(id)]
		if !ok {
			continue
		}
		st, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode sync status for tenant %s: %w", id, err)
		}
		out[id] = st
	}
	return out, nil
}

func (s *stateService) GetSyncStatus(ctx context.Context, tenantID string) (*status.SyncStatus, error) {
	raw, found, err := s.states.GetState(ctx, Key(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to read sync status: %w", err)
	}
	if !found {
		return nil, nil
	}
	return decode(raw)
}

func (s *stateService) UpdateSyncStatus(ctx context.Context, tenantID string, syncStatus *status.SyncStatus) error {
	unlock := s.lock(tenantID)
	defer unlock()
	return s.put(ctx, tenantID, syncStatus)
}

func (s *stateService) UpdateStatusAtomically(
	ctx context.Context,
	tenantID string,
	testAndUpdateFn func(syncStatus *status.SyncStatus) bool,
) (bool, error) {
	unlock := s.lock(tenantID)
	defer unlock()

	current, err := s.GetSyncStatus(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if current == nil {
		current = &status.SyncStatus{}
	}

	if !testAndUpdateFn(current) {
		return false, nil
	}
	if err := s.put(ctx, tenantID, current); err != nil {
		return false, err
	}
	return true, nil
}

func (s *stateService) put(ctx context.Context, tenantID string, syncStatus *status.SyncStatus) error {
	raw, err := json.Marshal(syncStatus)
	if err != nil {
		return fmt.Errorf("failed to encode sync status: %w", err)
	}
	if err := s.states.PutState(ctx, Key(tenantID), raw); err != nil {
		return fmt.Errorf("failed to write sync status: %w", err)
	}
	return nil
}

// lock takes the tenant's mutex; the entry is dropped once no caller holds it
func (s *stateService) lock(tenantID string) func() {
	s.mu.Lock()
	l, ok := s.locks[tenantID]
	if !ok {
		l = &tenantLock{}
		s.locks[tenantID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, tenantID)
		}
		s.mu.Unlock()
	}
}

func decode(raw []byte) (*status.SyncStatus, error) {
	var st status.SyncStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
