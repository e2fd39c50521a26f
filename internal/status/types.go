// Package status holds the per-tenant sync bookkeeping types.
package status

import "time"

// SyncPhase represents the current phase of a tenant sync
type SyncPhase string

const (
	// SyncPhaseSyncing means a sync is in progress
	SyncPhaseSyncing SyncPhase = "Syncing"

	// SyncPhaseComplete means the last sync completed successfully
	SyncPhaseComplete SyncPhase = "Complete"

	// SyncPhaseFailed means the last sync failed
	SyncPhaseFailed SyncPhase = "Failed"
)

// SyncStatus is the sync state of one tenant
type SyncStatus struct {
	// Phase represents the current synchronization phase
	Phase SyncPhase `json:"phase" yaml:"phase"`

	// Message provides additional information about the sync status
	Message string `json:"message,omitempty" yaml:"message,omitempty"`

	// LastAttempt is the timestamp of the last sync attempt
	LastAttempt *time.Time `json:"lastAttempt,omitempty" yaml:"lastAttempt,omitempty"`

	// AttemptCount is the number of failed attempts since the last success
	AttemptCount int `json:"attemptCount,omitempty" yaml:"attemptCount,omitempty"`

	// LastSyncTime is the timestamp of the last successful sync
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty" yaml:"lastSyncTime,omitempty"`

	// InstanceCount is the number of persisted instances after the last sync
	InstanceCount int `json:"instanceCount" yaml:"instanceCount"`

	// Created, Updated and Unchanged count the outcomes of the last sync
	Created   int `json:"created" yaml:"created"`
	Updated   int `json:"updated" yaml:"updated"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`

	// Discarded counts dropped snapshots of the last sync by reason
	Discarded map[string]int `json:"discarded,omitempty" yaml:"discarded,omitempty"`
}

// SyncedWithin reports whether a successful sync finished less than ttl before now
func (s *SyncStatus) SyncedWithin(ttl time.Duration, now time.Time) bool {
	if s == nil || s.LastSyncTime == nil {
		return false
	}
	return now.Sub(*s.LastSyncTime) < ttl
}
