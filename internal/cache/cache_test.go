package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadengine/instance-sync/internal/broker"
	"github.com/leadengine/instance-sync/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyBackend wraps a MemoryBackend and fails every call while down is set
type flakyBackend struct {
	*MemoryBackend
	mu   sync.Mutex
	down bool
}

func (b *flakyBackend) Name() string { return "flaky" }

func (b *flakyBackend) setDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

func (b *flakyBackend) err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return errors.New("connection reset by peer")
	}
	return nil
}

func (b *flakyBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := b.err(); err != nil {
		return nil, false, err
	}
	return b.MemoryBackend.Get(ctx, key)
}

func (b *flakyBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := b.err(); err != nil {
		return err
	}
	return b.MemoryBackend.Set(ctx, key, value)
}

func (b *flakyBackend) Delete(ctx context.Context, key string) error {
	if err := b.err(); err != nil {
		return err
	}
	return b.MemoryBackend.Delete(ctx, key)
}

func snapshots(ids ...string) []broker.Snapshot {
	out := make([]broker.Snapshot, 0, len(ids))
	for _, id := range ids {
		connected := true
		out = append(out, broker.Snapshot{
			Instance: broker.Instance{ID: id, TenantID: "tenant-1"},
			Status:   &broker.Status{Status: "connected", Connected: &connected},
		})
	}
	return out
}

func TestSnapshotCache_TTL(t *testing.T) {
	t.Parallel()

	backends := map[string]func() Backend{
		BackendMemory: func() Backend { return NewMemoryBackend() },
		BackendStore:  func() Backend { return NewStoreBackend(storage.NewMemoryStore()) },
	}

	for name, newBackend := range backends {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
			c := New(newBackend(), WithClock(clock.Now))
			ctx := context.Background()

			miss := c.Get(ctx, "tenant-1")
			assert.False(t, miss.Hit)
			assert.Nil(t, miss.Snapshots)
			assert.Equal(t, name, miss.Backend)

			set := c.Set(ctx, "tenant-1", snapshots("i1", "i2"), 30*time.Second)
			require.NoError(t, set.Err)
			assert.Equal(t, name, set.Backend)

			hit := c.Get(ctx, "tenant-1")
			require.True(t, hit.Hit)
			require.NoError(t, hit.Err)
			require.Len(t, hit.Snapshots, 2)
			assert.Equal(t, "i1", hit.Snapshots[0].Instance.ID)
			assert.Equal(t, "connected", hit.Snapshots[0].Status.Status)

			assert.False(t, c.Get(ctx, "tenant-2").Hit, "tenants do not share entries")

			clock.Advance(29 * time.Second)
			assert.True(t, c.Get(ctx, "tenant-1").Hit)

			clock.Advance(time.Second)
			expired := c.Get(ctx, "tenant-1")
			assert.False(t, expired.Hit)
			assert.Nil(t, expired.Snapshots)
		})
	}
}

func TestSnapshotCache_DefaultTTLAndEmptyList(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New(nil, WithClock(clock.Now), WithTTL(10*time.Second))
	ctx := context.Background()

	assert.Equal(t, BackendMemory, c.Backend())
	require.NoError(t, c.Set(ctx, "t", nil, 0).Err)

	got := c.Get(ctx, "t")
	assert.True(t, got.Hit, "an empty snapshot list is still a cached answer")
	assert.NotNil(t, got.Snapshots)
	assert.Empty(t, got.Snapshots)

	clock.Advance(10 * time.Second)
	assert.False(t, c.Get(ctx, "t").Hit)
}

func TestSnapshotCache_Invalidate(t *testing.T) {
	t.Parallel()

	c := New(NewMemoryBackend())
	ctx := context.Background()

	c.Set(ctx, "t", snapshots("i1"), time.Minute)
	require.True(t, c.Get(ctx, "t").Hit)

	res := c.Invalidate(ctx, "t")
	require.NoError(t, res.Err)
	assert.False(t, c.Get(ctx, "t").Hit)
}

func TestSnapshotCache_MirrorServesDuringBackendOutage(t *testing.T) {
	t.Parallel()

	backend := &flakyBackend{MemoryBackend: NewMemoryBackend()}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New(backend, WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "t", snapshots("i1"), 30*time.Second).Err)

	backend.setDown(true)

	got := c.Get(ctx, "t")
	assert.True(t, got.Hit, "mirror serves an unexpired entry")
	require.Error(t, got.Err)
	var backendErr *BackendError
	require.ErrorAs(t, got.Err, &backendErr)
	assert.Equal(t, "flaky", backendErr.Backend)
	assert.Equal(t, "get", backendErr.Operation)

	clock.Advance(31 * time.Second)
	got = c.Get(ctx, "t")
	assert.False(t, got.Hit, "expired mirror entries are misses")
	assert.Error(t, got.Err)

	set := c.Set(ctx, "t", snapshots("i2"), 30*time.Second)
	assert.Error(t, set.Err, "write failures are reported, not raised")
	got = c.Get(ctx, "t")
	require.True(t, got.Hit, "the failed write still reached the mirror")
	assert.Equal(t, "i2", got.Snapshots[0].Instance.ID)

	assert.Error(t, c.Invalidate(ctx, "t").Err)
	assert.False(t, c.Get(ctx, "t").Hit)
}

func TestSnapshotCache_LastSync(t *testing.T) {
	t.Parallel()

	c := New(NewStoreBackend(storage.NewMemoryStore()))
	ctx := context.Background()

	_, ok := c.LastSync(ctx, "t")
	assert.False(t, ok)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.SetLastSync(ctx, "t", at).Err)

	got, ok := c.LastSync(ctx, "t")
	require.True(t, ok)
	assert.True(t, at.Equal(got))

	// snapshot invalidation leaves the last-sync marker alone
	c.Invalidate(ctx, "t")
	_, ok = c.LastSync(ctx, "t")
	assert.True(t, ok)
}

func TestSnapshotCache_DisabledStoreDegradesToMirror(t *testing.T) {
	t.Parallel()

	c := New(NewStoreBackend(storage.NewDisabledStore()))
	ctx := context.Background()

	set := c.Set(ctx, "t", snapshots("i1"), time.Minute)
	require.ErrorIs(t, set.Err, storage.ErrStorageDisabled)

	got := c.Get(ctx, "t")
	assert.True(t, got.Hit)
	assert.ErrorIs(t, got.Err, storage.ErrStorageDisabled)
}
