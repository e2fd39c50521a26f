package sync

import (
	"github.com/leadengine/instance-sync/internal/broker"
	"github.com/leadengine/instance-sync/internal/instances"
)

// FilterTenant keeps the snapshots whose resolved tenant is tenantID and
// counts the rest by reason
func FilterTenant(tenantID string, snapshots []broker.Snapshot) ([]broker.Snapshot, map[DiscardReason]int) {
	kept := make([]broker.Snapshot, 0, len(snapshots))
	discarded := map[DiscardReason]int{}
	for _, snap := range snapshots {
		switch resolved := snap.Instance.ResolvedTenant(); {
		case resolved == "":
			discarded[DiscardMissingTenant]++
		case resolved != tenantID:
			discarded[DiscardMismatchedTenant]++
		default:
			kept = append(kept, snap)
		}
	}
	return kept, discarded
}

// SnapshotID is the identifier a snapshot is persisted under
func SnapshotID(snap broker.Snapshot) string {
	return snapshotID(snap)
}

// SnapshotStatus derives the normalized status and connectivity of a snapshot
func SnapshotStatus(snap broker.Snapshot) (instances.Status, bool) {
	return deriveStatus(snap)
}

// SnapshotPhone returns the first explicit phone of a snapshot in E.164 form
func SnapshotPhone(snap broker.Snapshot) string {
	if p := derivePhone(snap, nil); p != nil {
		return *p
	}
	return ""
}
