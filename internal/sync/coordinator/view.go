package coordinator

import (
	"time"

	"github.com/leadengine/instance-sync/internal/broker"
	"github.com/leadengine/instance-sync/internal/instances"
	pkgsync "github.com/leadengine/instance-sync/internal/sync"
)

// Sources of a PublicInstance
const (
	SourceStore  = "store"
	SourceBroker = "broker"
)

// Warnings reported on a View
const (
	WarningStorageFallback   = "storage-unavailable"
	WarningRefreshFailed     = "refresh-failed"
	WarningBrokerUnavailable = "broker-unavailable"
	WarningCacheUnavailable  = "cache-unavailable"
)

// Options controls one collection
type Options struct {
	// Refresh forces (true) or suppresses (false) a sync; nil lets the
	// collector decide
	Refresh *bool
	// FetchSnapshots asks for live broker snapshots alongside stored rows
	FetchSnapshots bool
	// Existing are already loaded rows for the tenant; nil loads them
	Existing []*instances.Instance
	// Snapshots are already fetched broker snapshots; nil fetches them when needed
	Snapshots []broker.Snapshot
}

// PublicInstance is the caller-facing projection of an instance
type PublicInstance struct {
	ID          string              `json:"id"`
	TenantID    string              `json:"tenantId"`
	BrokerID    string              `json:"brokerId,omitempty"`
	Name        string              `json:"name"`
	Status      instances.Status    `json:"status"`
	Connected   bool                `json:"connected"`
	PhoneNumber string              `json:"phoneNumber,omitempty"`
	LastSeenAt  *time.Time          `json:"lastSeenAt,omitempty"`
	Source      string              `json:"source"`
	Metadata    *instances.Metadata `json:"metadata,omitempty"`
	UpdatedAt   *time.Time          `json:"updatedAt,omitempty"`
}

// View is the result of a collection
type View struct {
	Instances       []PublicInstance  `json:"instances"`
	Snapshots       []broker.Snapshot `json:"snapshots,omitempty"`
	ShouldRefresh   bool              `json:"shouldRefresh"`
	Synced          bool              `json:"synced"`
	CacheHit        bool              `json:"cacheHit"`
	CacheBackend    string            `json:"cacheBackend,omitempty"`
	StorageFallback bool              `json:"storageFallback"`
	Warnings        []string          `json:"warnings,omitempty"`
	SyncedAt        *time.Time        `json:"syncedAt,omitempty"`
}

func (v *View) warn(w string) {
	for _, existing := range v.Warnings {
		if existing == w {
			return
		}
	}
	v.Warnings = append(v.Warnings, w)
}

// publicFromStored projects stored rows and overlays the live status of a
// matching snapshot
func publicFromStored(rows []*instances.Instance, snapshots []broker.Snapshot) []PublicInstance {
	live := make(map[string]broker.Snapshot, len(snapshots)*2)
	for _, snap := range snapshots {
		if id := pkgsync.SnapshotID(snap); id != "" {
			live[id] = snap
		}
		if bid := snap.Instance.BrokerIDOrID(); bid != "" {
			live[bid] = snap
		}
	}

	out := make([]PublicInstance, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		meta := row.Metadata.Clone()
		updated := row.UpdatedAt
		pub := PublicInstance{
			ID:         row.ID,
			TenantID:   row.TenantID,
			BrokerID:   row.BrokerIDOrID(),
			Name:       displayName(row),
			Status:     row.Status,
			Connected:  row.Connected,
			LastSeenAt: row.LastSeenAt,
			Source:     SourceStore,
			Metadata:   &meta,
			UpdatedAt:  &updated,
		}
		if row.PhoneNumber != nil {
			pub.PhoneNumber = *row.PhoneNumber
		}

		snap, ok := live[row.ID]
		if !ok {
			snap, ok = live[row.BrokerIDOrID()]
		}
		if ok && (snap.Status != nil || snap.Instance.Connected != nil) {
			pub.Status, pub.Connected = pkgsync.SnapshotStatus(snap)
			if phone := pkgsync.SnapshotPhone(snap); phone != "" {
				pub.PhoneNumber = phone
			}
		}
		out = append(out, pub)
	}
	return out
}

// publicFromSnapshots synthesizes instances straight from broker snapshots,
// bypassing the persisted store
func publicFromSnapshots(tenantID string, snapshots []broker.Snapshot) []PublicInstance {
	out := make([]PublicInstance, 0, len(snapshots))
	for _, snap := range snapshots {
		id := pkgsync.SnapshotID(snap)
		if id == "" {
			continue
		}
		st, connected := pkgsync.SnapshotStatus(snap)
		name := snap.Instance.Name
		if name == "" {
			name = id
		}
		pub := PublicInstance{
			ID:          id,
			TenantID:    tenantID,
			BrokerID:    snap.Instance.BrokerIDOrID(),
			Name:        name,
			Status:      st,
			Connected:   connected,
			PhoneNumber: pkgsync.SnapshotPhone(snap),
			LastSeenAt:  snap.Instance.LastActivity,
			Source:      SourceBroker,
		}
		if snap.Status != nil && snap.Status.LastActivity != nil {
			pub.LastSeenAt = snap.Status.LastActivity
		}
		out = append(out, pub)
	}
	return out
}

func displayName(row *instances.Instance) string {
	if row.Metadata.DisplayName != "" {
		return row.Metadata.DisplayName
	}
	if row.Name != "" {
		return row.Name
	}
	return row.ID
}
