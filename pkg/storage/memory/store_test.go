package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/slskdn-sub011/pkg/storage"
)

func TestStore_ReplayStore_CheckAndStore(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := s.ReplayStore().CheckAndStore(ctx, "peer-1", "msg-1", time.Now().Add(time.Minute))
	require.NoError(t, err)

	err = s.ReplayStore().CheckAndStore(ctx, "peer-1", "msg-1", time.Now().Add(time.Minute))
	assert.Error(t, err)

	used, err := s.ReplayStore().IsUsed(ctx, "peer-1", "msg-1")
	require.NoError(t, err)
	assert.True(t, used)

	used, err = s.ReplayStore().IsUsed(ctx, "peer-1", "msg-2")
	require.NoError(t, err)
	assert.False(t, used)
}

func TestStore_ReplayStore_DeleteExpired(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.ReplayStore().CheckAndStore(ctx, "peer-1", "msg-1", time.Now().Add(-time.Second)))
	require.NoError(t, s.ReplayStore().CheckAndStore(ctx, "peer-1", "msg-2", time.Now().Add(time.Minute)))

	count, err := s.ReplayStore().DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	remaining, err := s.ReplayStore().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)
}

func TestStore_ReputationStore_UpsertGetDelete(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	rec := &storage.ReputationRecord{
		PeerID:      "peer-1",
		Score:       10,
		LastUpdated: time.Now(),
	}
	require.NoError(t, s.ReputationStore().Upsert(ctx, rec))

	got, err := s.ReputationStore().Get(ctx, "peer-1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Score)

	rec.Score = -5
	require.NoError(t, s.ReputationStore().Upsert(ctx, rec))
	got, err = s.ReputationStore().Get(ctx, "peer-1")
	require.NoError(t, err)
	assert.Equal(t, -5, got.Score)

	list, err := s.ReputationStore().List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.ReputationStore().Delete(ctx, "peer-1"))
	_, err = s.ReputationStore().Get(ctx, "peer-1")
	assert.Error(t, err)
}

func TestStore_PingAndClose(t *testing.T) {
	s := NewStore()
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())
}
