// Package events delivers sync and instance lifecycle notifications to
// realtime listeners.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leadengine/instance-sync/internal/instances"
	"github.com/leadengine/instance-sync/internal/logger"
)

// Kind names an event type
type Kind string

const (
	// KindSynced follows every completed reconciliation
	KindSynced Kind = "whatsapp.instances.synced"
	// KindInstanceCreated follows a direct instance creation
	KindInstanceCreated Kind = "whatsapp.instance.created"
	// KindInstanceUpdated follows a direct connect or disconnect
	KindInstanceUpdated Kind = "whatsapp.instance.updated"
	// KindInstanceDeleted follows a deletion
	KindInstanceDeleted Kind = "whatsapp.instance.deleted"
)

// Summary is the realtime view of one instance
type Summary struct {
	ID          string           `json:"id"`
	BrokerID    string           `json:"brokerId,omitempty"`
	Status      instances.Status `json:"status"`
	Connected   bool             `json:"connected"`
	PhoneNumber string           `json:"phoneNumber,omitempty"`
}

// Summarize builds the realtime view of inst
func Summarize(inst *instances.Instance) Summary {
	s := Summary{
		ID:        inst.ID,
		Status:    inst.Status,
		Connected: inst.Connected,
	}
	if inst.BrokerID != nil {
		s.BrokerID = *inst.BrokerID
	}
	if inst.PhoneNumber != nil {
		s.PhoneNumber = *inst.PhoneNumber
	}
	return s
}

// Counts sums a sync's outcomes
type Counts struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

// SyncPayload describes a completed reconciliation
type SyncPayload struct {
	SyncedAt  time.Time `json:"syncedAt"`
	Created   []Summary `json:"created"`
	Updated   []Summary `json:"updated"`
	Unchanged []Summary `json:"unchanged"`
	Counts    Counts    `json:"counts"`
}

// Event is one notification on a tenant's channel
type Event struct {
	Kind     Kind         `json:"kind"`
	TenantID string       `json:"tenantId"`
	At       time.Time    `json:"at"`
	Sync     *SyncPayload `json:"sync,omitempty"`
	Instance *Summary     `json:"instance,omitempty"`
}

// NewSyncEvent builds a KindSynced event; counts are derived from the lists
func NewSyncEvent(tenantID string, syncedAt time.Time, created, updated, unchanged []Summary) Event {
	return Event{
		Kind:     KindSynced,
		TenantID: tenantID,
		At:       syncedAt,
		Sync: &SyncPayload{
			SyncedAt:  syncedAt,
			Created:   nonNil(created),
			Updated:   nonNil(updated),
			Unchanged: nonNil(unchanged),
			Counts: Counts{
				Created:   len(created),
				Updated:   len(updated),
				Unchanged: len(unchanged),
			},
		},
	}
}

// NewInstanceEvent builds a single-instance event
func NewInstanceEvent(kind Kind, inst *instances.Instance, at time.Time) Event {
	s := Summarize(inst)
	return Event{Kind: kind, TenantID: inst.TenantID, At: at, Instance: &s}
}

// Channel returns the tenant's notification channel name
func Channel(tenantID string) string {
	return "tenant:" + tenantID
}

// Emitter publishes events. Implementations must not block the caller.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// Bus fans events out to in-process subscribers of the event's tenant
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[uint64]chan Event
	nextID  uint64
	dropped atomic.Int64
}

// NewBus creates an empty Bus
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[uint64]chan Event)}
}

// Subscribe registers a buffered listener for tenantID. The returned
// function unsubscribes and closes the channel.
func (b *Bus) Subscribe(tenantID string, buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[tenantID] == nil {
		b.subs[tenantID] = make(map[uint64]chan Event)
	}
	b.subs[tenantID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[tenantID], id)
			if len(b.subs[tenantID]) == 0 {
				delete(b.subs, tenantID)
			}
			close(ch)
		})
	}
}

// Emit delivers event to every subscriber of its tenant. Subscribers whose
// buffer is full miss the event.
func (b *Bus) Emit(_ context.Context, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[event.TenantID] {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// LogEmitter writes every event to the process log
type LogEmitter struct{}

// Emit implements Emitter
func (LogEmitter) Emit(_ context.Context, event Event) {
	fields := []any{"kind", event.Kind, "tenant_id", event.TenantID, "channel", Channel(event.TenantID)}
	if event.Sync != nil {
		fields = append(fields,
			"created", event.Sync.Counts.Created,
			"updated", event.Sync.Counts.Updated,
			"unchanged", event.Sync.Counts.Unchanged,
		)
	}
	if event.Instance != nil {
		fields = append(fields, "instance_id", event.Instance.ID, "status", event.Instance.Status)
	}
	logger.Infow("Emitting event", fields...)
}

// Fanout emits to every emitter in order
type Fanout []Emitter

// Emit implements Emitter
func (f Fanout) Emit(ctx context.Context, event Event) {
	for _, e := range f {
		if e != nil {
			e.Emit(ctx, event)
		}
	}
}

// Discard drops every event
type Discard struct{}

// Emit implements Emitter
func (Discard) Emit(context.Context, Event) {}

func nonNil(s []Summary) []Summary {
	if s == nil {
		return []Summary{}
	}
	return s
}
