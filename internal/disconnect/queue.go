// Package disconnect persists disconnect requests that the broker rejected
// with a server error, so a scheduler can replay them later.
//
// Each tenant has one queue under whatsapp:disconnect-retry:<tenant>. A queue
// holds at most one job per instance and at most MaxJobs jobs overall; the
// oldest jobs are dropped first.
package disconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/leadengine/instance-sync/internal/storage"
)

// MaxJobs bounds each tenant's queue
const MaxJobs = 20

const keyPrefix = "whatsapp:disconnect-retry:"

// Job is one pending disconnect
type Job struct {
	InstanceID  string    `json:"instanceId"`
	RequestedAt time.Time `json:"requestedAt"`
	// Status is the broker HTTP status that caused the retry
	Status    int    `json:"status"`
	RequestID string `json:"requestId,omitempty"`
	Wipe      bool   `json:"wipe"`
}

// Queue reads and writes per-tenant retry queues
type Queue struct {
	states storage.StateStore

	// mu serializes read-modify-write cycles within this process
	mu sync.Mutex
}

// NewQueue creates a Queue over the integration-state table
func NewQueue(states storage.StateStore) *Queue {
	return &Queue{states: states}
}

// Key returns the integration-state key of a tenant's queue
func Key(tenantID string) string {
	return keyPrefix + tenantID
}

// Enqueue adds job to the tenant's queue, replacing any job for the same
// instance, and returns the stored queue ordered oldest first.
func (q *Queue) Enqueue(ctx context.Context, tenantID string, job Job) ([]Job, error) {
	if job.InstanceID == "" {
		return nil, fmt.Errorf("instance id is required")
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	jobs, err := q.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	kept := jobs[:0]
	for _, existing := range jobs {
		if existing.InstanceID != job.InstanceID {
			kept = append(kept, existing)
		}
	}
	kept = append(kept, job)

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].RequestedAt.Before(kept[j].RequestedAt)
	})
	if len(kept) > MaxJobs {
		kept = kept[len(kept)-MaxJobs:]
	}

	if err := q.save(ctx, tenantID, kept); err != nil {
		return nil, err
	}
	return kept, nil
}

// List returns the tenant's queue ordered oldest first
func (q *Queue) List(ctx context.Context, tenantID string) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx, tenantID)
}

// Remove drops the job for instanceID, if any
func (q *Queue) Remove(ctx context.Context, tenantID, instanceID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs, err := q.load(ctx, tenantID)
	if err != nil {
		return err
	}

	kept := jobs[:0]
	for _, job := range jobs {
		if job.InstanceID != instanceID {
			kept = append(kept, job)
		}
	}
	if len(kept) == len(jobs) {
		return nil
	}
	if len(kept) == 0 {
		if err := q.states.DeleteState(ctx, Key(tenantID)); err != nil {
			return fmt.Errorf("failed to delete disconnect queue: %w", err)
		}
		return nil
	}
	return q.save(ctx, tenantID, kept)
}

func (q *Queue) load(ctx context.Context, tenantID string) ([]Job, error) {
	raw, found, err := q.states.GetState(ctx, Key(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to read disconnect queue: %w", err)
	}
	if !found {
		return nil, nil
	}

	var jobs []Job
	if err := json.Unmarshal(raw, &jobs); err != nil {
		// a corrupt queue is replaced on the next write
		return nil, nil
	}
	return jobs, nil
}

func (q *Queue) save(ctx context.Context, tenantID string, jobs []Job) error {
	raw, err := json.Marshal(jobs)
	if err != nil {
		return fmt.Errorf("failed to encode disconnect queue: %w", err)
	}
	if err := q.states.PutState(ctx, Key(tenantID), raw); err != nil {
		return fmt.Errorf("failed to write disconnect queue: %w", err)
	}
	return nil
}
