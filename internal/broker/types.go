// Package broker is the client for the external WhatsApp broker service.
//
// The broker owns live session state. Its JSON payloads are not uniform:
// list responses come in several envelopes and field names appear in both
// camelCase and snake_case. All of that variance is absorbed here, so the
// rest of the module only sees Snapshot, Instance and Status.
package broker

import (
	"context"
	"encoding/json"
	"time"
)

// Snapshot is a point-in-time broker view of one session
type Snapshot struct {
	Instance Instance `json:"instance"`
	// Status is nil when the broker did not report a status object
	Status *Status `json:"status,omitempty"`
}

// Instance is the broker's description of a session
type Instance struct {
	ID       string `json:"id"`
	BrokerID string `json:"brokerId,omitempty"`
	// TenantID is the tenant declared directly on the instance record
	TenantID string `json:"tenantId,omitempty"`
	// MetadataTenantID is the tenant declared inside the instance metadata
	MetadataTenantID string     `json:"metadataTenantId,omitempty"`
	Name             string     `json:"name,omitempty"`
	Origin           string     `json:"origin,omitempty"`
	TenantBound      bool       `json:"tenantBound,omitempty"`
	Connected        *bool      `json:"connected,omitempty"`
	PhoneNumber      string     `json:"phoneNumber,omitempty"`
	LastActivity     *time.Time `json:"lastActivity,omitempty"`
	// Raw is the untouched broker document for the instance
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Status is the broker's connection state for a session
type Status struct {
	Status       string          `json:"status,omitempty"`
	Connected    *bool           `json:"connected,omitempty"`
	QR           string          `json:"qr,omitempty"`
	Metrics      json.RawMessage `json:"metrics,omitempty"`
	PhoneNumber  string          `json:"phoneNumber,omitempty"`
	LastActivity *time.Time      `json:"lastActivity,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

// QRCode is the pairing material for a session
type QRCode struct {
	Code      string     `json:"code,omitempty"`
	Image     string     `json:"image,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Status    string     `json:"status,omitempty"`
}

// ResolvedTenant returns the direct tenant id, falling back to the metadata tenant id
func (i *Instance) ResolvedTenant() string {
	if i.TenantID != "" {
		return i.TenantID
	}
	return i.MetadataTenantID
}

// BrokerIDOrID returns the broker id, falling back to the instance id
func (i *Instance) BrokerIDOrID() string {
	if i.BrokerID != "" {
		return i.BrokerID
	}
	return i.ID
}

// CreateRequest describes a new broker session
type CreateRequest struct {
	TenantID   string `json:"tenantId"`
	Name       string `json:"name"`
	InstanceID string `json:"instanceId,omitempty"`
}

// ConnectOptions are passed to ConnectInstance
type ConnectOptions struct {
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Code        string `json:"code,omitempty"`
}

// DisconnectOptions are passed to DisconnectInstance and DeleteInstance
type DisconnectOptions struct {
	Wipe bool `json:"wipe,omitempty"`
}

// Client is the broker surface consumed by the sync engine and direct operations
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/leadengine/instance-sync/internal/broker Client
type Client interface {
	// ListInstances returns the snapshots the broker reports for the tenant
	ListInstances(ctx context.Context, tenantID string) ([]Snapshot, error)
	// CreateInstance provisions a new broker session
	CreateInstance(ctx context.Context, req CreateRequest) (*Snapshot, error)
	// ConnectInstance starts or resumes pairing for a session
	ConnectInstance(ctx context.Context, brokerID string, opts ConnectOptions) (*Status, error)
	// DisconnectInstance logs a session out
	DisconnectInstance(ctx context.Context, brokerID string, opts DisconnectOptions) error
	// DeleteInstance removes a session from the broker
	DeleteInstance(ctx context.Context, brokerID string, opts DisconnectOptions) error
	// GetQRCode returns the current pairing QR code
	GetQRCode(ctx context.Context, brokerID string) (*QRCode, error)
	// GetStatus returns the live status of a session
	GetStatus(ctx context.Context, brokerID string) (*Status, error)
}
