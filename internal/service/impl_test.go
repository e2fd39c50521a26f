package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/leadengine/instance-sync/internal/archive"
	"github.com/leadengine/instance-sync/internal/broker"
	brokermocks "github.com/leadengine/instance-sync/internal/broker/mocks"
	"github.com/leadengine/instance-sync/internal/cache"
	"github.com/leadengine/instance-sync/internal/events"
	"github.com/leadengine/instance-sync/internal/instances"
	"github.com/leadengine/instance-sync/internal/storage"
	pkgsync "github.com/leadengine/instance-sync/internal/sync"
	"github.com/leadengine/instance-sync/internal/sync/coordinator"
	coordmocks "github.com/leadengine/instance-sync/internal/sync/coordinator/mocks"
)

const tenant = "T1"

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(_ context.Context, e events.Event) {
	r.events = append(r.events, e)
}

type fixture struct {
	store     *storage.MemoryStore
	broker    *brokermocks.MockClient
	collector *coordmocks.MockCollector
	archives  *archive.Store
	cache     *cache.SnapshotCache
	emitter   *recordingEmitter
	svc       InstanceService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := storage.NewMemoryStore()
	f := &fixture{
		store:     store,
		broker:    brokermocks.NewMockClient(ctrl),
		collector: coordmocks.NewMockCollector(ctrl),
		archives:  archive.New(store),
		cache:     cache.New(nil),
		emitter:   &recordingEmitter{},
	}
	svc, err := New(
		WithStore(store),
		WithBroker(f.broker),
		WithCollector(f.collector),
		WithArchives(f.archives),
		WithCache(f.cache),
		WithEmitter(f.emitter),
		WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) seed(t *testing.T, id, brokerID string) *instances.Instance {
	t.Helper()
	inst := &instances.Instance{
		ID:       id,
		TenantID: tenant,
		BrokerID: &brokerID,
		Name:     id,
		Status:   instances.StatusConnected,
		Connected: true,
		Metadata: instances.Metadata{BrokerID: brokerID},
	}
	require.NoError(t, f.store.Create(context.Background(), inst))
	return inst
}

func (f *fixture) warmCache(t *testing.T) {
	t.Helper()
	f.cache.Set(context.Background(), tenant, []broker.Snapshot{{Instance: broker.Instance{ID: "x"}}}, 0)
	require.True(t, f.cache.Get(context.Background(), tenant).Hit)
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New()
	assert.Error(t, err)

	_, err = New(WithStore(nil))
	assert.ErrorContains(t, err, "store is required")
}

func TestCheckReadiness(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	assert.NoError(t, f.svc.CheckReadiness(context.Background()))

	ctrl := gomock.NewController(t)
	svc, err := New(
		WithStore(storage.NewDisabledStore()),
		WithBroker(brokermocks.NewMockClient(ctrl)),
		WithCollector(coordmocks.NewMockCollector(ctrl)),
	)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.CheckReadiness(context.Background()), storage.ErrStorageDisabled)
}

func TestListInstances(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	refresh := false
	want := &coordinator.View{Instances: []coordinator.PublicInstance{{ID: "i1"}}}
	f.collector.EXPECT().
		Collect(gomock.Any(), tenant, coordinator.Options{Refresh: &refresh, FetchSnapshots: true}).
		Return(want, nil)

	got, err := f.svc.ListInstances(context.Background(), tenant, ListOptions{Refresh: &refresh, Snapshots: true})
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestListInstances_TenantRequired(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.collector.EXPECT().Collect(gomock.Any(), "", gomock.Any()).Return(nil, coordinator.ErrTenantRequired)

	_, err := f.svc.ListInstances(context.Background(), "", ListOptions{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSyncInstances(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.collector.EXPECT().Collect(gomock.Any(), tenant, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, opts coordinator.Options) (*coordinator.View, error) {
			require.NotNil(t, opts.Refresh)
			assert.True(t, *opts.Refresh)
			assert.True(t, opts.FetchSnapshots)
			return &coordinator.View{Synced: true}, nil
		})

	view, err := f.svc.SyncInstances(context.Background(), tenant)
	require.NoError(t, err)
	assert.True(t, view.Synced)
}

func TestCreateInstance(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	_, err := f.archives.Archive(ctx, tenant, "i1", archive.Details{DeletedBy: "someone"})
	require.NoError(t, err)
	f.warmCache(t)

	f.broker.EXPECT().CreateInstance(gomock.Any(), broker.CreateRequest{TenantID: tenant, Name: "Sales", InstanceID: "i1"}).
		Return(&broker.Snapshot{
			Instance: broker.Instance{ID: "i1", BrokerID: "session-1"},
			Status:   &broker.Status{Status: "qr_required"},
		}, nil)

	inst, err := f.svc.CreateInstance(ctx, CreateRequest{TenantID: tenant, Name: "Sales", InstanceID: "i1", Actor: "user-7"})
	require.NoError(t, err)

	assert.Equal(t, "session-1", inst.BrokerIDOrID())
	assert.Equal(t, instances.StatusConnecting, inst.Status)
	assert.Equal(t, OriginAPI, inst.Metadata.Origin)
	assert.True(t, inst.Metadata.TenantBound)
	require.Len(t, inst.Metadata.History, 1)
	assert.Equal(t, "user-7", inst.Metadata.History[0].By)

	stored, err := f.store.Get(ctx, tenant, "i1")
	require.NoError(t, err)
	assert.Equal(t, "Sales", stored.Metadata.DisplayName)

	markers, err := f.archives.ReadArchives(ctx, tenant, []string{"i1"})
	require.NoError(t, err)
	assert.Empty(t, markers, "creating an instance lifts its archive marker")

	assert.False(t, f.cache.Get(ctx, tenant).Hit)
	require.Len(t, f.emitter.events, 1)
	assert.Equal(t, events.KindInstanceCreated, f.emitter.events[0].Kind)
}

func TestCreateInstance_GeneratesID(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.broker.EXPECT().CreateInstance(gomock.Any(), gomock.Any()).Return(&broker.Snapshot{}, nil)

	inst, err := f.svc.CreateInstance(context.Background(), CreateRequest{TenantID: tenant, Name: "Ops"})
	require.NoError(t, err)
	assert.NotEmpty(t, inst.ID)
	assert.Equal(t, inst.ID, inst.BrokerIDOrID())
	assert.Equal(t, instances.StatusPending, inst.Status)
}

func TestCreateInstance_Errors(t *testing.T) {
	t.Parallel()

	t.Run("missing name", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.svc.CreateInstance(context.Background(), CreateRequest{TenantID: tenant})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("broker not configured", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.broker.EXPECT().CreateInstance(gomock.Any(), gomock.Any()).Return(nil, broker.ErrNotConfigured)

		_, err := f.svc.CreateInstance(context.Background(), CreateRequest{TenantID: tenant, Name: "x", InstanceID: "i1"})
		assert.ErrorIs(t, err, broker.ErrNotConfigured)

		rows, err := f.store.ListByTenant(context.Background(), tenant)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestConnectInstance(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, "i1", "session-1")
	f.broker.EXPECT().ConnectInstance(gomock.Any(), "session-1", broker.ConnectOptions{PhoneNumber: "+5511999990000"}).
		Return(&broker.Status{Status: "connected", PhoneNumber: "+5511999990000"}, nil)

	inst, err := f.svc.ConnectInstance(context.Background(), tenant, "i1", broker.ConnectOptions{PhoneNumber: "+5511999990000"})
	require.NoError(t, err)
	assert.Equal(t, instances.StatusConnected, inst.Status)
	require.NotNil(t, inst.PhoneNumber)
	assert.Equal(t, "+5511999990000", *inst.PhoneNumber)
	require.NotNil(t, inst.LastSeenAt)
	assert.Equal(t, fixedNow, *inst.LastSeenAt)
}

func TestConnectInstance_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.ConnectInstance(context.Background(), tenant, "missing", broker.ConnectOptions{})
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestConnectInstance_RecordsBrokerError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, "i1", "session-1")
	f.broker.EXPECT().ConnectInstance(gomock.Any(), "session-1", gomock.Any()).
		Return(nil, &broker.RateLimitedError{Operation: "connect", RequestID: "req-9"})

	_, err := f.svc.ConnectInstance(context.Background(), tenant, "i1", broker.ConnectOptions{})
	require.Error(t, err)

	stored, err := f.store.Get(context.Background(), tenant, "i1")
	require.NoError(t, err)
	require.NotNil(t, stored.Metadata.LastError)
	assert.Equal(t, "req-9", stored.Metadata.LastError.RequestID)
}

func TestDisconnectInstance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		brokerErr  error
		wantErr    bool
		wantQueued bool
		wantStatus instances.Status
	}{
		{
			name:       "success",
			wantStatus: instances.StatusDisconnected,
		},
		{
			name:       "server error queues a retry",
			brokerErr:  &broker.Error{Operation: "disconnect", StatusCode: 503, RequestID: "req-1"},
			wantQueued: true,
			wantStatus: instances.StatusConnected,
		},
		{
			name:      "client error fails",
			brokerErr: &broker.Error{Operation: "disconnect", StatusCode: 400},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			ctx := context.Background()
			f.seed(t, "i1", "session-1")
			f.broker.EXPECT().DisconnectInstance(gomock.Any(), "session-1", broker.DisconnectOptions{Wipe: true}).
				Return(tt.brokerErr)

			res, err := f.svc.DisconnectInstance(ctx, tenant, "i1", DisconnectRequest{Wipe: true})
			jobs, listErr := f.svc.ListDisconnectJobs(ctx, tenant)
			require.NoError(t, listErr)

			if tt.wantErr {
				require.Error(t, err)
				assert.Empty(t, jobs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQueued, res.Queued)
			assert.Equal(t, tt.wantStatus, res.Instance.Status)

			if tt.wantQueued {
				require.Len(t, jobs, 1)
				assert.Equal(t, 503, jobs[0].Status)
				assert.Equal(t, "req-1", jobs[0].RequestID)
				assert.True(t, jobs[0].Wipe)
				require.NotNil(t, res.Instance.Metadata.LastError)
				assert.Equal(t, "HTTP_503", res.Instance.Metadata.LastError.Code)
				return
			}
			assert.Empty(t, jobs)
			require.Len(t, f.emitter.events, 1)
			assert.Equal(t, events.KindInstanceUpdated, f.emitter.events[0].Kind)
		})
	}
}

func TestDisconnectInstance_SuccessClearsQueuedJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "i1", "session-1")

	gomock.InOrder(
		f.broker.EXPECT().DisconnectInstance(gomock.Any(), "session-1", gomock.Any()).
			Return(&broker.Error{Operation: "disconnect", StatusCode: 502}),
		f.broker.EXPECT().DisconnectInstance(gomock.Any(), "session-1", gomock.Any()).Return(nil),
	)

	_, err := f.svc.DisconnectInstance(ctx, tenant, "i1", DisconnectRequest{})
	require.NoError(t, err)
	_, err = f.svc.DisconnectInstance(ctx, tenant, "i1", DisconnectRequest{})
	require.NoError(t, err)

	jobs, err := f.svc.ListDisconnectJobs(ctx, tenant)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestDeleteInstance(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "i1", "session-1")
	f.warmCache(t)
	f.broker.EXPECT().DeleteInstance(gomock.Any(), "session-1", broker.DisconnectOptions{}).Return(nil)

	require.NoError(t, f.svc.DeleteInstance(ctx, tenant, "i1", DeleteRequest{Actor: "user-1"}))

	_, err := f.store.Get(ctx, tenant, "i1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, f.cache.Get(ctx, tenant).Hit)

	markers, err := f.archives.ReadArchives(ctx, tenant, []string{"i1", "session-1"})
	require.NoError(t, err)
	assert.Len(t, markers, 2)
	assert.Equal(t, "user-1", markers["i1"].DeletedBy)

	require.Len(t, f.emitter.events, 1)
	assert.Equal(t, events.KindInstanceDeleted, f.emitter.events[0].Kind)

	// a lagging broker report must not bring it back
	rec := pkgsync.NewReconciler(nil, f.store, f.archives)
	res, err := rec.Reconcile(ctx, tenant, nil, []broker.Snapshot{{
		Instance: broker.Instance{ID: "i1", BrokerID: "session-1", TenantID: tenant, TenantBound: true},
		Status:   &broker.Status{Status: "connected"},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"i1"}, res.Skipped)
	assert.Empty(t, res.Instances)
}

func TestDeleteInstance_BrokerOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		brokerErr  error
		wantErr    bool
		wantStored bool
	}{
		{name: "session already gone", brokerErr: &broker.Error{Operation: "delete", StatusCode: 404}},
		{name: "broker failure keeps the row", brokerErr: &broker.Error{Operation: "delete", StatusCode: 500}, wantErr: true, wantStored: true},
		{name: "broker disabled keeps the row", brokerErr: broker.ErrNotConfigured, wantErr: true, wantStored: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			ctx := context.Background()
			f.seed(t, "i1", "session-1")
			f.broker.EXPECT().DeleteInstance(gomock.Any(), "session-1", gomock.Any()).Return(tt.brokerErr)

			err := f.svc.DeleteInstance(ctx, tenant, "i1", DeleteRequest{})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			_, getErr := f.store.Get(ctx, tenant, "i1")
			assert.Equal(t, tt.wantStored, getErr == nil)

			markers, err := f.archives.ReadArchives(ctx, tenant, []string{"i1"})
			require.NoError(t, err)
			assert.Equal(t, !tt.wantStored, len(markers) == 1)
		})
	}
}

func TestGetQRCodeAndStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "i1", "session-1")

	f.broker.EXPECT().GetQRCode(gomock.Any(), "session-1").Return(&broker.QRCode{Code: "2@abc"}, nil)
	f.broker.EXPECT().GetStatus(gomock.Any(), "session-1").Return(nil, errors.New("timeout"))

	qr, err := f.svc.GetQRCode(ctx, tenant, "i1")
	require.NoError(t, err)
	assert.Equal(t, "2@abc", qr.Code)

	_, err = f.svc.GetStatus(ctx, tenant, "i1")
	assert.ErrorContains(t, err, "timeout")

	_, err = f.svc.GetQRCode(ctx, tenant, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
