package sync

import (
	"strings"
	"time"

	"github.com/leadengine/instance-sync/internal/broker"
	"github.com/leadengine/instance-sync/internal/instances"
)

// HistoryActionBrokerSync is the history action appended by every reconciliation
const HistoryActionBrokerSync = "broker-sync"

// OriginBrokerSync marks rows first written by the reconciler
const OriginBrokerSync = "broker-sync"

const historyActor = "system"

// defaultOrigins do not count as a trusted origin on their own
var defaultOrigins = map[string]struct{}{
	"":               {},
	"broker":         {},
	OriginBrokerSync: {},
}

// statusMapping translates broker status strings; unknown values are disconnected
var statusMapping = map[string]instances.Status{
	"connected":    instances.StatusConnected,
	"connecting":   instances.StatusConnecting,
	"qr_required":  instances.StatusConnecting,
	"reconnecting": instances.StatusConnecting,
	"pending":      instances.StatusPending,
	"failed":       instances.StatusFailed,
	"error":        instances.StatusError,
}

// MapStatus translates a broker status string
func MapStatus(brokerStatus string) instances.Status {
	if st, ok := statusMapping[strings.ToLower(strings.TrimSpace(brokerStatus))]; ok {
		return st
	}
	return instances.StatusDisconnected
}

// HasTrustedOrigin reports whether the snapshot carries a non-default origin marker
func HasTrustedOrigin(inst broker.Instance) bool {
	_, isDefault := defaultOrigins[strings.ToLower(strings.TrimSpace(inst.Origin))]
	return !isDefault
}

// derived holds the fields computed from one snapshot
type derived struct {
	status      instances.Status
	connected   bool
	phone       *string
	lastSeenAt  *time.Time
	displayName string
	record      instances.BrokerSnapshotRecord
}

// deriveStatus applies the mapping table, falling back to the connected flags
func deriveStatus(snap broker.Snapshot) (instances.Status, bool) {
	if snap.Status != nil {
		if snap.Status.Status != "" {
			st := MapStatus(snap.Status.Status)
			return st, st == instances.StatusConnected
		}
		if snap.Status.Connected != nil {
			return connectedStatus(*snap.Status.Connected)
		}
	}
	if snap.Instance.Connected != nil {
		return connectedStatus(*snap.Instance.Connected)
	}
	return instances.StatusDisconnected, false
}

func connectedStatus(connected bool) (instances.Status, bool) {
	if connected {
		return instances.StatusConnected, true
	}
	return instances.StatusDisconnected, false
}

// derivePhone checks the broker status, the broker instance and the stored
// row in that order, then falls back to the bounded payload search.
func derivePhone(snap broker.Snapshot, existing *instances.Instance) *string {
	candidates := make([]string, 0, 4)
	if snap.Status != nil {
		candidates = append(candidates, snap.Status.PhoneNumber)
	}
	candidates = append(candidates, snap.Instance.PhoneNumber)
	if existing != nil {
		if existing.PhoneNumber != nil {
			candidates = append(candidates, *existing.PhoneNumber)
		}
		if rec := existing.Metadata.BrokerSnapshot; rec != nil {
			candidates = append(candidates, rec.Phone)
		}
	}
	for _, c := range candidates {
		if phone, ok := broker.NormalizePhone(c); ok {
			return &phone
		}
	}

	if snap.Status != nil {
		if phone := broker.FindPhone(snap.Status.Raw); phone != "" {
			return &phone
		}
	}
	if phone := broker.FindPhone(snap.Instance.Raw); phone != "" {
		return &phone
	}
	return nil
}

// deriveLastSeen is now when connected, else the newest broker timestamp,
// else the stored value
func deriveLastSeen(snap broker.Snapshot, connected bool, existing *instances.Instance, now time.Time) *time.Time {
	if connected {
		t := now
		return &t
	}

	var latest *time.Time
	consider := func(t *time.Time) {
		if t != nil && (latest == nil || t.After(*latest)) {
			v := *t
			latest = &v
		}
	}
	if snap.Status != nil {
		consider(snap.Status.LastActivity)
	}
	consider(snap.Instance.LastActivity)
	if latest != nil {
		return latest
	}

	if existing != nil && existing.LastSeenAt != nil {
		v := *existing.LastSeenAt
		return &v
	}
	return nil
}

// deriveDisplayName keeps a stored display name and only adopts the broker
// name for rows that never had one
func deriveDisplayName(snap broker.Snapshot, existing *instances.Instance) string {
	if existing != nil && existing.Metadata.DisplayName != "" {
		return existing.Metadata.DisplayName
	}
	if name := strings.TrimSpace(snap.Instance.Name); name != "" {
		return name
	}
	if existing != nil && existing.Name != "" {
		return existing.Name
	}
	return snapshotID(snap)
}

func derive(snap broker.Snapshot, existing *instances.Instance, now time.Time) derived {
	st, connected := deriveStatus(snap)
	d := derived{
		status:      st,
		connected:   connected,
		phone:       derivePhone(snap, existing),
		lastSeenAt:  deriveLastSeen(snap, connected, existing, now),
		displayName: deriveDisplayName(snap, existing),
	}

	d.record = instances.BrokerSnapshotRecord{
		Status:    st,
		Connected: connected,
		SyncedAt:  now,
	}
	if d.phone != nil {
		d.record.Phone = *d.phone
	}
	if snap.Status != nil {
		d.record.QR = snap.Status.QR
		d.record.Metrics = snap.Status.Metrics
	}
	return d
}

func (d derived) historyEntry(now time.Time) instances.HistoryEntry {
	details := map[string]any{
		"status":    string(d.status),
		"connected": d.connected,
	}
	if d.phone != nil {
		details["phoneNumber"] = *d.phone
	}
	return instances.HistoryEntry{
		Action:  HistoryActionBrokerSync,
		By:      historyActor,
		At:      now,
		Details: details,
	}
}

// snapshotID is the identifier a snapshot is persisted under
func snapshotID(snap broker.Snapshot) string {
	if id := strings.TrimSpace(snap.Instance.ID); id != "" {
		return id
	}
	return strings.TrimSpace(snap.Instance.BrokerID)
}

func stringsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
