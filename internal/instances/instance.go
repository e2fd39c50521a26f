// Package instances defines the persisted, tenant-owned WhatsApp instance model.
package instances

import (
	"encoding/json"
	"time"
)

// MaxHistoryEntries bounds Metadata.History; the oldest entries are dropped first.
const MaxHistoryEntries = 50

// Status is the normalized connection status of an instance
type Status string

const (
	// StatusConnected means the session is live
	StatusConnected Status = "connected"
	// StatusConnecting means the broker is pairing or reconnecting the session
	StatusConnecting Status = "connecting"
	// StatusPending means the instance exists but has not started pairing
	StatusPending Status = "pending"
	// StatusDisconnected means the session is closed
	StatusDisconnected Status = "disconnected"
	// StatusFailed means the broker gave up on the session
	StatusFailed Status = "failed"
	// StatusError means the broker reported an error for the session
	StatusError Status = "error"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusConnected, StatusConnecting, StatusPending, StatusDisconnected, StatusFailed, StatusError:
		return true
	}
	return false
}

// Instance is a persisted WhatsApp instance owned by a tenant
type Instance struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	BrokerID    *string    `json:"brokerId,omitempty"`
	Name        string     `json:"name"`
	Status      Status     `json:"status"`
	Connected   bool       `json:"connected"`
	PhoneNumber *string    `json:"phoneNumber,omitempty"`
	LastSeenAt  *time.Time `json:"lastSeenAt,omitempty"`
	Metadata    Metadata   `json:"metadata"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// BrokerIDOrID returns the broker identifier, falling back to the instance id
func (i *Instance) BrokerIDOrID() string {
	if i.BrokerID != nil && *i.BrokerID != "" {
		return *i.BrokerID
	}
	return i.ID
}

// Clone returns a deep copy of the instance
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	out := *i
	if i.BrokerID != nil {
		v := *i.BrokerID
		out.BrokerID = &v
	}
	if i.PhoneNumber != nil {
		v := *i.PhoneNumber
		out.PhoneNumber = &v
	}
	if i.LastSeenAt != nil {
		v := *i.LastSeenAt
		out.LastSeenAt = &v
	}
	out.Metadata = i.Metadata.Clone()
	return &out
}

// Metadata is the operational document stored alongside an instance.
// Known fields are explicit; anything else round-trips through Extra.
type Metadata struct {
	DisplayName    string                     `json:"displayName,omitempty"`
	Label          string                     `json:"label,omitempty"`
	BrokerID       string                     `json:"brokerId,omitempty"`
	Origin         string                     `json:"origin,omitempty"`
	TenantBound    bool                       `json:"tenantBound,omitempty"`
	History        []HistoryEntry             `json:"history,omitempty"`
	LastError      *LastError                 `json:"lastError,omitempty"`
	BrokerSnapshot *BrokerSnapshotRecord      `json:"brokerSnapshot,omitempty"`
	Extra          map[string]json.RawMessage `json:"-"`
}

// HistoryEntry is one element of the capped metadata history log
type HistoryEntry struct {
	Action  string         `json:"action"`
	By      string         `json:"by"`
	At      time.Time      `json:"at"`
	Details map[string]any `json:"details,omitempty"`
}

// LastError records the most recent broker failure seen for an instance
type LastError struct {
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	At        time.Time `json:"at"`
}

// BrokerSnapshotRecord is the derived broker view kept in metadata after each sync
type BrokerSnapshotRecord struct {
	Status    Status          `json:"status"`
	Connected bool            `json:"connected"`
	Phone     string          `json:"phone,omitempty"`
	QR        string          `json:"qr,omitempty"`
	Metrics   json.RawMessage `json:"metrics,omitempty"`
	SyncedAt  time.Time       `json:"syncedAt"`
}

// AppendHistory appends entry and drops the oldest entries beyond MaxHistoryEntries
func (m *Metadata) AppendHistory(entry HistoryEntry) {
	m.History = append(m.History, entry)
	if over := len(m.History) - MaxHistoryEntries; over > 0 {
		m.History = append([]HistoryEntry(nil), m.History[over:]...)
	}
}

// Clone returns a deep copy of the metadata
func (m Metadata) Clone() Metadata {
	out := m
	if m.History != nil {
		out.History = append([]HistoryEntry(nil), m.History...)
	}
	if m.LastError != nil {
		v := *m.LastError
		out.LastError = &v
	}
	if m.BrokerSnapshot != nil {
		v := *m.BrokerSnapshot
		out.BrokerSnapshot = &v
	}
	if m.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

var knownMetadataKeys = map[string]struct{}{
	"displayName":    {},
	"label":          {},
	"brokerId":       {},
	"origin":         {},
	"tenantBound":    {},
	"history":        {},
	"lastError":      {},
	"brokerSnapshot": {},
}

type metadataAlias Metadata

// MarshalJSON flattens Extra next to the known fields
func (m Metadata) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(metadataAlias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return known, nil
	}
	merged := make(map[string]json.RawMessage, len(m.Extra)+len(knownMetadataKeys))
	for k, v := range m.Extra {
		if _, ok := knownMetadataKeys[k]; !ok {
			merged[k] = v
		}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON reads the known fields and keeps unknown keys in Extra
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var alias metadataAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range knownMetadataKeys {
		delete(raw, k)
	}
	*m = Metadata(alias)
	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}
