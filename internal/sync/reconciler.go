package sync

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/leadengine/instance-sync/internal/archive"
	"github.com/leadengine/instance-sync/internal/broker"
	"github.com/leadengine/instance-sync/internal/events"
	"github.com/leadengine/instance-sync/internal/instances"
	"github.com/leadengine/instance-sync/internal/logger"
	"github.com/leadengine/instance-sync/internal/otel"
	"github.com/leadengine/instance-sync/internal/storage"
	"github.com/leadengine/instance-sync/internal/telemetry"
)

// DiscardReason explains why a snapshot was dropped before persistence
type DiscardReason string

const (
	// DiscardMissingTenant means no tenant could be resolved for the snapshot
	DiscardMissingTenant DiscardReason = "missing-tenant"
	// DiscardMismatchedTenant means the snapshot belongs to another tenant
	DiscardMismatchedTenant DiscardReason = "mismatched-tenant"
	// DiscardUntrusted means the snapshot would create a row without any trust signal
	DiscardUntrusted DiscardReason = "untrusted-snapshot"
)

// Result is the outcome of one reconciliation pass
type Result struct {
	// Instances is the tenant's full row set read back after all writes
	Instances []*instances.Instance
	// Snapshots are the snapshots that passed the tenant filter and trust gate
	Snapshots []broker.Snapshot
	Created   []string
	Updated   []string
	Unchanged []string
	// Skipped lists archived ids that the broker still reports
	Skipped   []string
	Discarded map[DiscardReason]int
	SyncedAt  time.Time
}

// ArchiveReader is the part of the archive store the reconciler consults
type ArchiveReader interface {
	ReadArchives(ctx context.Context, tenantID string, ids []string) (map[string]archive.Record, error)
}

// Reconciler merges broker snapshots into persisted instances
//
//go:generate mockgen -destination=mocks/mock_reconciler.go -package=mocks github.com/leadengine/instance-sync/internal/sync Reconciler
type Reconciler interface {
	// Reconcile runs one pass for tenantID against the given existing rows.
	// A nil snapshots slice means "fetch from the broker"; an empty non-nil
	// slice means the broker reported nothing.
	Reconcile(
		ctx context.Context, tenantID string, existing []*instances.Instance, snapshots []broker.Snapshot,
	) (*Result, error)
}

// Option configures the default reconciler
type Option func(*reconciler)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *reconciler) {
		r.now = now
	}
}

// WithEmitter sets where sync events go
func WithEmitter(emitter events.Emitter) Option {
	return func(r *reconciler) {
		if emitter != nil {
			r.emitter = emitter
		}
	}
}

// WithMetrics records reconcile and discard counters
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(r *reconciler) {
		r.metrics = m
	}
}

// WithTracer enables spans around each pass
func WithTracer(tracer trace.Tracer) Option {
	return func(r *reconciler) {
		r.tracer = tracer
	}
}

type reconciler struct {
	broker   broker.Client
	repo     storage.InstanceRepository
	archives ArchiveReader
	emitter  events.Emitter
	metrics  *telemetry.SyncMetrics
	tracer   trace.Tracer
	now      func() time.Time
}

// NewReconciler creates the default Reconciler
func NewReconciler(
	brokerClient broker.Client,
	repo storage.InstanceRepository,
	archives ArchiveReader,
	opts ...Option,
) Reconciler {
	r := &reconciler{
		broker:   brokerClient,
		repo:     repo,
		archives: archives,
		emitter:  events.Discard{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// candidate is a snapshot that passed the tenant filter
type candidate struct {
	snap     broker.Snapshot
	id       string
	brokerID string
	existing *instances.Instance
}

func (r *reconciler) Reconcile(
	ctx context.Context, tenantID string, existing []*instances.Instance, snapshots []broker.Snapshot,
) (*Result, error) {
	ctx, span := otel.StartSpan(ctx, r.tracer, "sync.Reconcile",
		trace.WithAttributes(otel.AttrTenantID.String(tenantID)),
	)
	defer span.End()

	result, err := r.reconcile(ctx, tenantID, existing, snapshots)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		otel.AttrSnapshotCount.Int(len(result.Snapshots)),
		otel.AttrResultCount.Int(len(result.Instances)),
	)
	return result, nil
}

func (r *reconciler) reconcile(
	ctx context.Context, tenantID string, existing []*instances.Instance, snapshots []broker.Snapshot,
) (*Result, error) {
	log := logger.FromContext(ctx).WithValues("tenant_id", tenantID)
	now := r.now().UTC()

	if snapshots == nil {
		fetched, err := r.broker.ListInstances(ctx, tenantID)
		if err != nil {
			return nil, newError(OperationListSnapshots, err, "failed to list broker snapshots for tenant %s", tenantID)
		}
		snapshots = fetched
	}

	result := &Result{
		Snapshots: []broker.Snapshot{},
		Discarded: map[DiscardReason]int{},
		SyncedAt:  now,
	}

	idx := newInstanceIndex(existing)
	allowlist := idx.allowlist()

	inTenant, discarded := FilterTenant(tenantID, snapshots)
	for reason, n := range discarded {
		result.Discarded[reason] = n
	}

	// Split into updates and create candidates
	var updates, creates []candidate
	for _, snap := range inTenant {
		c := candidate{snap: snap, id: snapshotID(snap), brokerID: snap.Instance.BrokerIDOrID()}
		if c.id == "" {
			// malformed payload
			continue
		}

		if match := idx.find(c.id, c.brokerID); match != nil {
			c.existing = match
			updates = append(updates, c)
			continue
		}

		if !trusted(snap, c, allowlist) {
			result.Discarded[DiscardUntrusted]++
			logger.Warnw("Discarding untrusted broker snapshot",
				"tenant_id", tenantID,
				"instance_id", c.id,
				"broker_id", c.brokerID,
			)
			continue
		}
		creates = append(creates, c)
	}

	if n := result.Discarded[DiscardMissingTenant] + result.Discarded[DiscardMismatchedTenant]; n > 0 {
		log.Info("Dropped snapshots failing the tenant filter",
			"missing_tenant", result.Discarded[DiscardMissingTenant],
			"mismatched_tenant", result.Discarded[DiscardMismatchedTenant],
		)
	}

	archived, err := r.readArchives(ctx, tenantID, creates)
	if err != nil {
		return nil, err
	}

	var created, updated, unchanged []events.Summary

	for _, c := range updates {
		// an earlier snapshot in this batch may have rewritten the row
		if latest := idx.find(c.id, c.brokerID); latest != nil {
			c.existing = latest
		}
		inst, changed, err := r.applyUpdate(ctx, c, now)
		if err != nil {
			return nil, err
		}
		idx.put(inst)
		result.Snapshots = append(result.Snapshots, c.snap)
		if changed {
			result.Updated = append(result.Updated, inst.ID)
			updated = append(updated, events.Summarize(inst))
		} else {
			result.Unchanged = append(result.Unchanged, inst.ID)
			unchanged = append(unchanged, events.Summarize(inst))
		}
	}

	for _, c := range creates {
		if isArchived(archived, c) {
			result.Skipped = append(result.Skipped, c.id)
			log.V(1).Info("Skipping archived instance reported by broker", "instance_id", c.id)
			continue
		}
		// duplicates within one batch collapse into an update of the first
		if match := idx.find(c.id, c.brokerID); match != nil {
			c.existing = match
			inst, changed, err := r.applyUpdate(ctx, c, now)
			if err != nil {
				return nil, err
			}
			idx.put(inst)
			result.Snapshots = append(result.Snapshots, c.snap)
			if changed {
				result.Updated = append(result.Updated, inst.ID)
				updated = append(updated, events.Summarize(inst))
			} else {
				result.Unchanged = append(result.Unchanged, inst.ID)
				unchanged = append(unchanged, events.Summarize(inst))
			}
			continue
		}

		inst, err := r.applyCreate(ctx, tenantID, c, now)
		if err != nil {
			return nil, err
		}
		idx.put(inst)
		result.Snapshots = append(result.Snapshots, c.snap)
		result.Created = append(result.Created, inst.ID)
		created = append(created, events.Summarize(inst))
	}

	rows, err := r.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, newError(OperationReload, err, "failed to reload instances for tenant %s", tenantID)
	}
	result.Instances = rows

	r.emitter.Emit(ctx, events.NewSyncEvent(tenantID, now, created, updated, unchanged))
	r.record(ctx, result)

	log.Info("Reconciled broker snapshots",
		"created", len(result.Created),
		"updated", len(result.Updated),
		"unchanged", len(result.Unchanged),
		"skipped", len(result.Skipped),
		"untrusted", result.Discarded[DiscardUntrusted],
	)
	return result, nil
}

func (r *reconciler) readArchives(ctx context.Context, tenantID string, creates []candidate) (map[string]archive.Record, error) {
	if len(creates) == 0 || r.archives == nil {
		return nil, nil
	}
	ids := make([]string, 0, len(creates)*2)
	for _, c := range creates {
		ids = append(ids, c.id)
		if c.brokerID != c.id {
			ids = append(ids, c.brokerID)
		}
	}
	archived, err := r.archives.ReadArchives(ctx, tenantID, ids)
	if err != nil {
		return nil, newError(OperationReadArchives, err, "failed to read archive markers for tenant %s", tenantID)
	}
	return archived, nil
}

func (r *reconciler) applyCreate(ctx context.Context, tenantID string, c candidate, now time.Time) (*instances.Instance, error) {
	d := derive(c.snap, nil, now)

	origin := c.snap.Instance.Origin
	if origin == "" {
		origin = OriginBrokerSync
	}
	brokerID := c.brokerID

	inst := &instances.Instance{
		ID:          c.id,
		TenantID:    tenantID,
		BrokerID:    &brokerID,
		Name:        d.displayName,
		Status:      d.status,
		Connected:   d.connected,
		PhoneNumber: d.phone,
		LastSeenAt:  d.lastSeenAt,
		Metadata: instances.Metadata{
			DisplayName:    d.displayName,
			BrokerID:       brokerID,
			Origin:         origin,
			TenantBound:    c.snap.Instance.TenantBound,
			BrokerSnapshot: &d.record,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	inst.Metadata.AppendHistory(d.historyEntry(now))

	if err := r.repo.Create(ctx, inst); err != nil {
		return nil, newError(OperationCreate, err, "failed to create instance %s", c.id)
	}
	return inst, nil
}

// applyUpdate always writes, so the broker snapshot blob and history stay
// current; changed reports whether status, connectivity or phone moved.
func (r *reconciler) applyUpdate(ctx context.Context, c candidate, now time.Time) (*instances.Instance, bool, error) {
	prev := c.existing
	d := derive(c.snap, prev, now)

	next := prev.Clone()
	next.Status = d.status
	next.Connected = d.connected
	if d.phone != nil {
		next.PhoneNumber = d.phone
	}
	next.LastSeenAt = d.lastSeenAt
	next.Metadata.DisplayName = d.displayName
	next.Metadata.BrokerSnapshot = &d.record
	if next.BrokerID == nil && c.brokerID != "" {
		brokerID := c.brokerID
		next.BrokerID = &brokerID
	}
	if next.Metadata.BrokerID == "" {
		next.Metadata.BrokerID = next.BrokerIDOrID()
	}
	next.Metadata.AppendHistory(d.historyEntry(now))
	next.UpdatedAt = now

	changed := prev.Status != next.Status ||
		prev.Connected != next.Connected ||
		!stringsEqual(prev.PhoneNumber, next.PhoneNumber)

	if err := r.repo.Update(ctx, next); err != nil {
		return nil, false, newError(OperationUpdate, err, "failed to update instance %s", next.ID)
	}
	return next, changed, nil
}

func (r *reconciler) record(ctx context.Context, result *Result) {
	r.metrics.RecordReconciled(ctx, "created", len(result.Created))
	r.metrics.RecordReconciled(ctx, "updated", len(result.Updated))
	r.metrics.RecordReconciled(ctx, "unchanged", len(result.Unchanged))
	r.metrics.RecordReconciled(ctx, "skipped", len(result.Skipped))
	for reason, n := range result.Discarded {
		r.metrics.RecordDiscarded(ctx, string(reason), n)
	}
}

// trusted applies the creation gate; any one signal is sufficient
func trusted(snap broker.Snapshot, c candidate, allowlist map[string]struct{}) bool {
	if HasTrustedOrigin(snap.Instance) || snap.Instance.TenantBound {
		return true
	}
	if _, ok := allowlist[c.id]; ok {
		return true
	}
	_, ok := allowlist[c.brokerID]
	return ok
}

func isArchived(archived map[string]archive.Record, c candidate) bool {
	if _, ok := archived[c.id]; ok {
		return true
	}
	_, ok := archived[c.brokerID]
	return ok
}

// instanceIndex looks rows up by id and by broker id
type instanceIndex struct {
	byID     map[string]*instances.Instance
	byBroker map[string]*instances.Instance
}

func newInstanceIndex(rows []*instances.Instance) *instanceIndex {
	idx := &instanceIndex{
		byID:     make(map[string]*instances.Instance, len(rows)),
		byBroker: make(map[string]*instances.Instance, len(rows)),
	}
	for _, row := range rows {
		if row != nil {
			idx.put(row)
		}
	}
	return idx
}

func (idx *instanceIndex) put(row *instances.Instance) {
	idx.byID[row.ID] = row
	if row.BrokerID != nil && *row.BrokerID != "" {
		idx.byBroker[*row.BrokerID] = row
	}
	if row.Metadata.BrokerID != "" {
		idx.byBroker[row.Metadata.BrokerID] = row
	}
}

func (idx *instanceIndex) find(ids ...string) *instances.Instance {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if row, ok := idx.byID[id]; ok {
			return row
		}
		if row, ok := idx.byBroker[id]; ok {
			return row
		}
	}
	return nil
}

// allowlist is every identifier already known for the tenant
func (idx *instanceIndex) allowlist() map[string]struct{} {
	out := make(map[string]struct{}, len(idx.byID)+len(idx.byBroker))
	for id := range idx.byID {
		out[id] = struct{}{}
	}
	for id := range idx.byBroker {
		out[id] = struct{}{}
	}
	return out
}
