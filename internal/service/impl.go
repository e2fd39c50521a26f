package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/leadengine/instance-sync/internal/archive"
	"github.com/leadengine/instance-sync/internal/broker"
	"github.com/leadengine/instance-sync/internal/cache"
	"github.com/leadengine/instance-sync/internal/disconnect"
	"github.com/leadengine/instance-sync/internal/events"
	"github.com/leadengine/instance-sync/internal/instances"
	"github.com/leadengine/instance-sync/internal/logger"
	"github.com/leadengine/instance-sync/internal/otel"
	"github.com/leadengine/instance-sync/internal/storage"
	pkgsync "github.com/leadengine/instance-sync/internal/sync"
	"github.com/leadengine/instance-sync/internal/sync/coordinator"
)

// options holds configuration options for the instance service
type options struct {
	store     storage.Store
	broker    broker.Client
	collector coordinator.Collector
	archives  *archive.Store
	queue     *disconnect.Queue
	cache     *cache.SnapshotCache
	emitter   events.Emitter
	tracer    trace.Tracer
	now       func() time.Time
}

// Option is a functional option for configuring the instance service
type Option func(*options) error

// WithStore sets the persisted store. Archive markers and disconnect jobs
// live in its integration-state table unless overridden.
func WithStore(store storage.Store) Option {
	return func(o *options) error {
		if store == nil {
			return fmt.Errorf("store is required")
		}
		o.store = store
		return nil
	}
}

// WithBroker sets the broker client
func WithBroker(client broker.Client) Option {
	return func(o *options) error {
		if client == nil {
			return fmt.Errorf("broker client is required")
		}
		o.broker = client
		return nil
	}
}

// WithCollector sets the coordinator used by list and sync
func WithCollector(collector coordinator.Collector) Option {
	return func(o *options) error {
		if collector == nil {
			return fmt.Errorf("collector is required")
		}
		o.collector = collector
		return nil
	}
}

// WithArchives overrides the archive store
func WithArchives(archives *archive.Store) Option {
	return func(o *options) error {
		o.archives = archives
		return nil
	}
}

// WithDisconnectQueue overrides the disconnect retry queue
func WithDisconnectQueue(queue *disconnect.Queue) Option {
	return func(o *options) error {
		o.queue = queue
		return nil
	}
}

// WithCache sets the snapshot cache invalidated by writes
func WithCache(c *cache.SnapshotCache) Option {
	return func(o *options) error {
		o.cache = c
		return nil
	}
}

// WithEmitter sets where single-instance events go
func WithEmitter(emitter events.Emitter) Option {
	return func(o *options) error {
		o.emitter = emitter
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer for the service.
// If not set, tracing will be disabled (no-op).
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		o.tracer = tracer
		return nil
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		o.now = now
		return nil
	}
}

// instanceService implements InstanceService
type instanceService struct {
	store     storage.Store
	broker    broker.Client
	collector coordinator.Collector
	archives  *archive.Store
	queue     *disconnect.Queue
	cache     *cache.SnapshotCache
	emitter   events.Emitter
	tracer    trace.Tracer
	now       func() time.Time
}

var _ InstanceService = (*instanceService)(nil)

// New creates the instance service with the given options
func New(opts ...Option) (InstanceService, error) {
	o := &options{
		emitter: events.Discard{},
		now:     time.Now,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.store == nil || o.broker == nil || o.collector == nil {
		return nil, fmt.Errorf("store, broker and collector are required")
	}
	if o.archives == nil {
		o.archives = archive.New(o.store, archive.WithClock(o.now))
	}
	if o.queue == nil {
		o.queue = disconnect.NewQueue(o.store)
	}
	if o.emitter == nil {
		o.emitter = events.Discard{}
	}

	return &instanceService{
		store:     o.store,
		broker:    o.broker,
		collector: o.collector,
		archives:  o.archives,
		queue:     o.queue,
		cache:     o.cache,
		emitter:   o.emitter,
		tracer:    o.tracer,
		now:       o.now,
	}, nil
}

// CheckReadiness checks if the persisted store answers
func (s *instanceService) CheckReadiness(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store not ready: %w", err)
	}
	return nil
}

// ListInstances returns the tenant's instance view
func (s *instanceService) ListInstances(ctx context.Context, tenantID string, opts ListOptions) (*coordinator.View, error) {
	view, err := s.collector.Collect(ctx, tenantID, coordinator.Options{
		Refresh:        opts.Refresh,
		FetchSnapshots: opts.Snapshots,
	})
	if errors.Is(err, coordinator.ErrTenantRequired) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return view, err
}

// SyncInstances forces a refresh from the broker
func (s *instanceService) SyncInstances(ctx context.Context, tenantID string) (*coordinator.View, error) {
	refresh := true
	return s.ListInstances(ctx, tenantID, ListOptions{Refresh: &refresh, Snapshots: true})
}

// CreateInstance provisions a broker session, persists it and lifts any
// archive marker left by an earlier deletion of the same id
func (s *instanceService) CreateInstance(ctx context.Context, req CreateRequest) (*instances.Instance, error) {
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.Name = strings.TrimSpace(req.Name)
	if req.TenantID == "" || req.Name == "" {
		return nil, fmt.Errorf("%w: tenant id and name are required", ErrInvalidRequest)
	}
	if req.InstanceID == "" {
		req.InstanceID = uuid.NewString()
	}

	ctx, span := s.startSpan(ctx, "InstanceService.CreateInstance", req.TenantID, req.InstanceID)
	defer span.End()

	snap, err := s.broker.CreateInstance(ctx, broker.CreateRequest{
		TenantID:   req.TenantID,
		Name:       req.Name,
		InstanceID: req.InstanceID,
	})
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to create broker session: %w", err)
	}

	now := s.now().UTC()
	id := req.InstanceID
	brokerID := id
	if snap != nil {
		if bid := snap.Instance.BrokerIDOrID(); bid != "" {
			brokerID = bid
		}
	}

	inst := &instances.Instance{
		ID:        id,
		TenantID:  req.TenantID,
		BrokerID:  &brokerID,
		Name:      req.Name,
		Status:    instances.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata: instances.Metadata{
			DisplayName: req.Name,
			BrokerID:    brokerID,
			Origin:      OriginAPI,
			TenantBound: true,
		},
	}
	if snap != nil && (snap.Status != nil || snap.Instance.Connected != nil) {
		inst.Status, inst.Connected = pkgsync.SnapshotStatus(*snap)
	}
	inst.Metadata.AppendHistory(instances.HistoryEntry{
		Action: HistoryActionCreate,
		By:     actor(req.Actor),
		At:     now,
	})

	if err := s.store.Create(ctx, inst); err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to persist instance %s: %w", id, err)
	}

	if err := s.archives.Clear(ctx, req.TenantID, id); err != nil {
		logger.Warnw("Failed to clear archive marker", "tenant_id", req.TenantID, "instance_id", id, "error", err)
	}
	s.invalidate(ctx, req.TenantID)
	s.emitter.Emit(ctx, events.NewInstanceEvent(events.KindInstanceCreated, inst, now))

	logger.Infow("Instance created", "tenant_id", req.TenantID, "instance_id", id, "broker_id", brokerID)
	return inst, nil
}

// ConnectInstance starts or resumes pairing and stores the resulting status
func (s *instanceService) ConnectInstance(
	ctx context.Context, tenantID, instanceID string, opts broker.ConnectOptions,
) (*instances.Instance, error) {
	ctx, span := s.startSpan(ctx, "InstanceService.ConnectInstance", tenantID, instanceID)
	defer span.End()

	inst, err := s.get(ctx, tenantID, instanceID)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	st, err := s.broker.ConnectInstance(ctx, inst.BrokerIDOrID(), opts)
	if err != nil {
		otel.RecordError(span, err)
		s.recordBrokerError(ctx, inst, err)
		return nil, fmt.Errorf("failed to connect instance %s: %w", instanceID, err)
	}

	now := s.now().UTC()
	next := inst.Clone()
	if st != nil {
		next.Status, next.Connected = pkgsync.SnapshotStatus(broker.Snapshot{Status: st})
		if phone, ok := broker.NormalizePhone(st.PhoneNumber); ok {
			next.PhoneNumber = &phone
		}
	} else {
		next.Status = instances.StatusConnecting
	}
	if next.Connected {
		next.LastSeenAt = &now
	}
	next.Metadata.LastError = nil
	next.Metadata.AppendHistory(instances.HistoryEntry{
		Action:  HistoryActionConnect,
		By:      actor(""),
		At:      now,
		Details: map[string]any{"status": string(next.Status)},
	})
	next.UpdatedAt = now

	if err := s.store.Update(ctx, next); err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to update instance %s: %w", instanceID, err)
	}
	s.invalidate(ctx, tenantID)
	s.emitter.Emit(ctx, events.NewInstanceEvent(events.KindInstanceUpdated, next, now))
	return next, nil
}

// DisconnectInstance logs the session out. A 5xx from the broker stores a
// retry job instead of failing; the queue is drained elsewhere.
func (s *instanceService) DisconnectInstance(
	ctx context.Context, tenantID, instanceID string, req DisconnectRequest,
) (*DisconnectResult, error) {
	ctx, span := s.startSpan(ctx, "InstanceService.DisconnectInstance", tenantID, instanceID)
	defer span.End()

	inst, err := s.get(ctx, tenantID, instanceID)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	now := s.now().UTC()
	brokerErr := s.broker.DisconnectInstance(ctx, inst.BrokerIDOrID(), broker.DisconnectOptions{Wipe: req.Wipe})
	switch {
	case brokerErr == nil:
	case broker.IsServerError(brokerErr):
		result, err := s.queueDisconnect(ctx, inst, req, brokerErr, now)
		span.SetAttributes(AttrQueued.Bool(err == nil))
		if err != nil {
			otel.RecordError(span, err)
			return nil, err
		}
		return result, nil
	default:
		otel.RecordError(span, brokerErr)
		s.recordBrokerError(ctx, inst, brokerErr)
		return nil, fmt.Errorf("failed to disconnect instance %s: %w", instanceID, brokerErr)
	}

	next := inst.Clone()
	next.Status = instances.StatusDisconnected
	next.Connected = false
	next.Metadata.LastError = nil
	next.Metadata.AppendHistory(instances.HistoryEntry{
		Action:  HistoryActionDisconnect,
		By:      actor(req.Actor),
		At:      now,
		Details: map[string]any{"wipe": req.Wipe},
	})
	next.UpdatedAt = now

	if err := s.store.Update(ctx, next); err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to update instance %s: %w", instanceID, err)
	}
	if err := s.queue.Remove(ctx, tenantID, instanceID); err != nil {
		logger.Warnw("Failed to drop disconnect retry job", "tenant_id", tenantID, "instance_id", instanceID, "error", err)
	}
	s.invalidate(ctx, tenantID)
	s.emitter.Emit(ctx, events.NewInstanceEvent(events.KindInstanceUpdated, next, now))
	return &DisconnectResult{Instance: next}, nil
}

func (s *instanceService) queueDisconnect(
	ctx context.Context, inst *instances.Instance, req DisconnectRequest, brokerErr error, now time.Time,
) (*DisconnectResult, error) {
	job := disconnect.Job{
		InstanceID:  inst.ID,
		RequestedAt: now,
		Status:      http.StatusBadGateway,
		RequestID:   broker.RequestIDFromError(brokerErr),
		Wipe:        req.Wipe,
	}
	var typed *broker.Error
	if errors.As(brokerErr, &typed) {
		job.Status = typed.StatusCode
	}

	if _, err := s.queue.Enqueue(ctx, inst.TenantID, job); err != nil {
		return nil, fmt.Errorf("failed to queue disconnect retry for %s: %w", inst.ID, err)
	}
	logger.Warnw("Broker failed to disconnect instance, queued retry",
		"tenant_id", inst.TenantID,
		"instance_id", inst.ID,
		"status", job.Status,
		"request_id", job.RequestID)

	next := inst.Clone()
	next.Metadata.LastError = lastError(brokerErr, now)
	next.Metadata.AppendHistory(instances.HistoryEntry{
		Action:  HistoryActionDisconnectQueued,
		By:      actor(req.Actor),
		At:      now,
		Details: map[string]any{"status": job.Status, "wipe": req.Wipe},
	})
	next.UpdatedAt = now
	if err := s.store.Update(ctx, next); err != nil {
		logger.Warnw("Failed to record queued disconnect", "tenant_id", inst.TenantID, "instance_id", inst.ID, "error", err)
		next = inst
	}
	return &DisconnectResult{Instance: next, Queued: true, Job: &job}, nil
}

// DeleteInstance removes the broker session, archives the instance so a
// lagging broker report cannot resurrect it, then deletes the row
func (s *instanceService) DeleteInstance(ctx context.Context, tenantID, instanceID string, req DeleteRequest) error {
	ctx, span := s.startSpan(ctx, "InstanceService.DeleteInstance", tenantID, instanceID)
	defer span.End()

	inst, err := s.get(ctx, tenantID, instanceID)
	if err != nil {
		otel.RecordError(span, err)
		return err
	}

	brokerID := inst.BrokerIDOrID()
	span.SetAttributes(AttrBrokerID.String(brokerID))
	err = s.broker.DeleteInstance(ctx, brokerID, broker.DisconnectOptions{Wipe: req.Wipe})
	if err != nil && !brokerGone(err) {
		otel.RecordError(span, err)
		return fmt.Errorf("failed to delete broker session %s: %w", brokerID, err)
	}

	details := archive.Details{BrokerID: brokerID, DeletedBy: actor(req.Actor)}
	if req.Wipe {
		details.Extra = map[string]any{"wipe": true}
	}
	if _, err := s.archives.Archive(ctx, tenantID, instanceID, details); err != nil {
		otel.RecordError(span, err)
		return fmt.Errorf("failed to archive instance %s: %w", instanceID, err)
	}

	if err := s.store.Delete(ctx, tenantID, instanceID); err != nil {
		otel.RecordError(span, err)
		return fmt.Errorf("failed to delete instance %s: %w", instanceID, err)
	}
	if err := s.queue.Remove(ctx, tenantID, instanceID); err != nil {
		logger.Warnw("Failed to drop disconnect retry job", "tenant_id", tenantID, "instance_id", instanceID, "error", err)
	}
	s.invalidate(ctx, tenantID)
	s.emitter.Emit(ctx, events.NewInstanceEvent(events.KindInstanceDeleted, inst, s.now().UTC()))

	logger.Infow("Instance deleted", "tenant_id", tenantID, "instance_id", instanceID, "broker_id", brokerID)
	return nil
}

// GetQRCode returns the pairing QR code
func (s *instanceService) GetQRCode(ctx context.Context, tenantID, instanceID string) (*broker.QRCode, error) {
	ctx, span := s.startSpan(ctx, "InstanceService.GetQRCode", tenantID, instanceID)
	defer span.End()

	inst, err := s.get(ctx, tenantID, instanceID)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	qr, err := s.broker.GetQRCode(ctx, inst.BrokerIDOrID())
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to fetch QR code for %s: %w", instanceID, err)
	}
	return qr, nil
}

// GetStatus returns the live broker status
func (s *instanceService) GetStatus(ctx context.Context, tenantID, instanceID string) (*broker.Status, error) {
	ctx, span := s.startSpan(ctx, "InstanceService.GetStatus", tenantID, instanceID)
	defer span.End()

	inst, err := s.get(ctx, tenantID, instanceID)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	st, err := s.broker.GetStatus(ctx, inst.BrokerIDOrID())
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to fetch status for %s: %w", instanceID, err)
	}
	return st, nil
}

// ListDisconnectJobs returns the tenant's pending disconnect retries
func (s *instanceService) ListDisconnectJobs(ctx context.Context, tenantID string) ([]disconnect.Job, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidRequest)
	}
	return s.queue.List(ctx, tenantID)
}

func (s *instanceService) get(ctx context.Context, tenantID, instanceID string) (*instances.Instance, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(instanceID) == "" {
		return nil, fmt.Errorf("%w: tenant id and instance id are required", ErrInvalidRequest)
	}
	inst, err := s.store.Get(ctx, tenantID, instanceID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load instance %s: %w", instanceID, err)
	}
	return inst, nil
}

// recordBrokerError stores the failure on the instance; it never fails the caller
func (s *instanceService) recordBrokerError(ctx context.Context, inst *instances.Instance, err error) {
	next := inst.Clone()
	next.Metadata.LastError = lastError(err, s.now().UTC())
	if updateErr := s.store.Update(ctx, next); updateErr != nil {
		logger.Warnw("Failed to record broker error", "tenant_id", inst.TenantID, "instance_id", inst.ID, "error", updateErr)
	}
}

func (s *instanceService) invalidate(ctx context.Context, tenantID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, tenantID)
	}
}

func (s *instanceService) startSpan(ctx context.Context, name, tenantID, instanceID string) (context.Context, trace.Span) {
	return otel.StartSpan(ctx, s.tracer, name, trace.WithAttributes(
		otel.AttrTenantID.String(tenantID),
		otel.AttrInstanceID.String(instanceID),
		AttrOperation.String(name),
		peerService,
	))
}

func lastError(err error, at time.Time) *instances.LastError {
	le := &instances.LastError{
		Message:   err.Error(),
		RequestID: broker.RequestIDFromError(err),
		At:        at,
	}
	var typed *broker.Error
	if errors.As(err, &typed) {
		le.Code = typed.Code
		if le.Code == "" && typed.StatusCode != 0 {
			le.Code = fmt.Sprintf("HTTP_%d", typed.StatusCode)
		}
	}
	return le
}

// brokerGone reports whether the broker no longer knows the session
func brokerGone(err error) bool {
	var typed *broker.Error
	return errors.As(err, &typed) && typed.StatusCode == http.StatusNotFound
}

func actor(by string) string {
	if by = strings.TrimSpace(by); by != "" {
		return by
	}
	return "system"
}
