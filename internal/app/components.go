package app

import (
	"github.com/leadengine/instance-sync/internal/events"
	"github.com/leadengine/instance-sync/internal/service"
	"github.com/leadengine/instance-sync/internal/storage"
	"github.com/leadengine/instance-sync/internal/sync/coordinator"
	"github.com/leadengine/instance-sync/internal/sync/state"
)

// Components groups the wired application components
type Components struct {
	// Coordinator collects tenant views and runs background refreshes
	Coordinator coordinator.Coordinator

	// Service implements the direct instance operations
	Service service.InstanceService

	// Events delivers instance events to per-tenant subscribers
	Events *events.Bus

	// States holds per-tenant sync bookkeeping
	States state.TenantStateService

	// Store is the instance repository and integration-state table
	Store storage.Store
}
