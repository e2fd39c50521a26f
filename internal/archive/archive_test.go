package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadengine/instance-sync/internal/storage"
)

func fixedClock() time.Time {
	return time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
}

func TestStore_ArchiveAndRead(t *testing.T) {
	t.Parallel()

	states := storage.NewMemoryStore()
	s := New(states, WithClock(fixedClock))
	ctx := context.Background()

	rec, err := s.Archive(ctx, "tenant-1", "inst-1", Details{
		BrokerID:  "broker-1",
		DeletedBy: "user-42",
		Extra:     map[string]any{"reason": "manual"},
	})
	require.NoError(t, err)
	assert.Equal(t, fixedClock(), rec.DeletedAt)

	got, err := s.ReadArchives(ctx, "tenant-1", []string{"inst-1", "broker-1", "inst-2", "", "inst-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "inst-1", got["inst-1"].InstanceID)
	assert.Equal(t, "user-42", got["broker-1"].DeletedBy)
	assert.Equal(t, "manual", got["inst-1"].Details["reason"])
	assert.NotContains(t, got, "inst-2")

	other, err := s.ReadArchives(ctx, "tenant-2", []string{"inst-1"})
	require.NoError(t, err)
	assert.Empty(t, other, "markers are tenant scoped")
}

func TestStore_ArchiveIsIdempotent(t *testing.T) {
	t.Parallel()

	s := New(storage.NewMemoryStore())
	ctx := context.Background()

	_, err := s.Archive(ctx, "t", "i", Details{})
	require.NoError(t, err)
	_, err = s.Archive(ctx, "t", "i", Details{})
	require.NoError(t, err)

	got, err := s.ReadArchives(ctx, "t", []string{"i"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_Clear(t *testing.T) {
	t.Parallel()

	s := New(storage.NewMemoryStore())
	ctx := context.Background()

	_, err := s.Archive(ctx, "t", "i", Details{BrokerID: "b"})
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx, "t", "i"))
	got, err := s.ReadArchives(ctx, "t", []string{"i", "b"})
	require.NoError(t, err)
	assert.Empty(t, got, "clear removes the broker-id mirror too")

	assert.NoError(t, s.Clear(ctx, "t", "never-archived"))
}

func TestStore_ReadArchivesEmpty(t *testing.T) {
	t.Parallel()

	s := New(storage.NewDisabledStore())
	got, err := s.ReadArchives(context.Background(), "t", nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.ReadArchives(context.Background(), "t", []string{"i"})
	assert.ErrorIs(t, err, storage.ErrStorageDisabled)
}
