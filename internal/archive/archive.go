// Package archive records soft-deletion markers for instances.
//
// A marker stops a lagging broker report from resurrecting an instance the
// tenant just deleted. Markers live in the integration-state table under
// whatsapp:archive:<tenant>:<id> and are mirrored under the broker id when
// it differs from the instance id.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leadengine/instance-sync/internal/storage"
)

const keyPrefix = "whatsapp:archive:"

// Record is a soft-deletion marker
type Record struct {
	InstanceID string         `json:"instanceId"`
	BrokerID   string         `json:"brokerId,omitempty"`
	DeletedAt  time.Time      `json:"deletedAt"`
	DeletedBy  string         `json:"deletedBy,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Details describes an archive request
type Details struct {
	BrokerID  string
	DeletedBy string
	Extra     map[string]any
}

// Store reads and writes archive markers
type Store struct {
	states storage.StateStore
	now    func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an archive Store over the integration-state table
func New(states storage.StateStore, opts ...Option) *Store {
	s := &Store{states: states, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the integration-state key for an instance marker
func Key(tenantID, instanceID string) string {
	return keyPrefix + tenantID + ":" + instanceID
}

// ReadArchives returns the markers that exist for ids, keyed by the id they
// were requested under. Unknown ids are absent from the map.
func (s *Store) ReadArchives(ctx context.Context, tenantID string, ids []string) (map[string]Record, error) {
	out := make(map[string]Record)
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(ids))
	byKey := make(map[string]string, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		key := Key(tenantID, id)
		if _, dup := byKey[key]; dup {
			continue
		}
		byKey[key] = id
		keys = append(keys, key)
	}

	values, err := s.states.GetStates(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive markers: %w", err)
	}

	for key, raw := range values {
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil || rec.DeletedAt.IsZero() {
			continue
		}
		out[byKey[key]] = rec
	}
	return out, nil
}

// Archive upserts the marker for instanceID and its broker id
func (s *Store) Archive(ctx context.Context, tenantID, instanceID string, details Details) (Record, error) {
	rec := Record{
		InstanceID: instanceID,
		BrokerID:   details.BrokerID,
		DeletedAt:  s.now().UTC(),
		DeletedBy:  details.DeletedBy,
		Details:    details.Extra,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode archive marker: %w", err)
	}

	for _, id := range markerIDs(instanceID, details.BrokerID) {
		if err := s.states.PutState(ctx, Key(tenantID, id), raw); err != nil {
			return Record{}, fmt.Errorf("failed to write archive marker for %s: %w", id, err)
		}
	}
	return rec, nil
}

// Clear removes the marker for instanceID along with its broker-id mirror.
// Clearing an instance that was never archived is not an error.
func (s *Store) Clear(ctx context.Context, tenantID, instanceID string) error {
	ids := []string{instanceID}

	raw, found, err := s.states.GetState(ctx, Key(tenantID, instanceID))
	if err != nil {
		return fmt.Errorf("failed to read archive marker: %w", err)
	}
	if found {
		var rec Record
		if json.Unmarshal(raw, &rec) == nil {
			ids = markerIDs(instanceID, rec.BrokerID)
		}
	}

	for _, id := range ids {
		if err := s.states.DeleteState(ctx, Key(tenantID, id)); err != nil {
			return fmt.Errorf("failed to clear archive marker for %s: %w", id, err)
		}
	}
	return nil
}

func markerIDs(instanceID, brokerID string) []string {
	if brokerID == "" || brokerID == instanceID {
		return []string{instanceID}
	}
	return []string{instanceID, brokerID}
}
