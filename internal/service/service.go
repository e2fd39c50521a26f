// Package service provides the direct instance operations: create, connect,
// disconnect, delete, QR code and live status, plus the list and sync entry
// points backed by the collection coordinator.
package service

import (
	"context"
	"errors"

	"github.com/leadengine/instance-sync/internal/broker"
	"github.com/leadengine/instance-sync/internal/disconnect"
	"github.com/leadengine/instance-sync/internal/instances"
	"github.com/leadengine/instance-sync/internal/sync/coordinator"
)

var (
	// ErrInstanceNotFound is returned when the tenant owns no instance with the given id
	ErrInstanceNotFound = errors.New("instance not found")
	// ErrInvalidRequest is returned for request-shape errors
	ErrInvalidRequest = errors.New("invalid request")
)

// History actions appended by direct operations
const (
	HistoryActionCreate     = "create"
	HistoryActionConnect    = "connect"
	HistoryActionDisconnect = "disconnect"
	// HistoryActionDisconnectQueued records a disconnect deferred to the retry queue
	HistoryActionDisconnectQueued = "disconnect-queued"
)

// OriginAPI marks instances created through this service
const OriginAPI = "api"

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks github.com/leadengine/instance-sync/internal/service InstanceService

// InstanceService defines the operations on a tenant's WhatsApp instances
type InstanceService interface {
	// CheckReadiness reports whether the persisted store is reachable
	CheckReadiness(ctx context.Context) error

	// ListInstances returns the tenant's instance view
	ListInstances(ctx context.Context, tenantID string, opts ListOptions) (*coordinator.View, error)

	// SyncInstances forces a refresh from the broker
	SyncInstances(ctx context.Context, tenantID string) (*coordinator.View, error)

	// CreateInstance provisions a broker session and persists it
	CreateInstance(ctx context.Context, req CreateRequest) (*instances.Instance, error)

	// ConnectInstance starts or resumes pairing
	ConnectInstance(ctx context.Context, tenantID, instanceID string, opts broker.ConnectOptions) (*instances.Instance, error)

	// DisconnectInstance logs the session out, queueing a retry when the broker fails
	DisconnectInstance(ctx context.Context, tenantID, instanceID string, req DisconnectRequest) (*DisconnectResult, error)

	// DeleteInstance archives and removes an instance
	DeleteInstance(ctx context.Context, tenantID, instanceID string, req DeleteRequest) error

	// GetQRCode returns the pairing QR code
	GetQRCode(ctx context.Context, tenantID, instanceID string) (*broker.QRCode, error)

	// GetStatus returns the live broker status
	GetStatus(ctx context.Context, tenantID, instanceID string) (*broker.Status, error)

	// ListDisconnectJobs returns the tenant's pending disconnect retries
	ListDisconnectJobs(ctx context.Context, tenantID string) ([]disconnect.Job, error)
}

// ListOptions is the options for the ListInstances operation
type ListOptions struct {
	// Refresh forces or suppresses a sync; nil lets the coordinator decide
	Refresh *bool
	// Snapshots asks for live broker snapshots
	Snapshots bool
}

// CreateRequest is the input of CreateInstance
type CreateRequest struct {
	TenantID   string
	Name       string
	InstanceID string
	Actor      string
}

// DisconnectRequest is the input of DisconnectInstance
type DisconnectRequest struct {
	Wipe  bool
	Actor string
}

// DeleteRequest is the input of DeleteInstance
type DeleteRequest struct {
	Wipe  bool
	Actor string
}

// DisconnectResult is the outcome of DisconnectInstance
type DisconnectResult struct {
	Instance *instances.Instance `json:"instance"`
	// Queued is set when the broker failed and a retry job was stored
	Queued bool            `json:"queued"`
	Job    *disconnect.Job `json:"job,omitempty"`
}
