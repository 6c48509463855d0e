package reputation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/slskdn-sub011/pkg/storage/memory"
)

func testProtector(t *testing.T) Protector {
	t.Helper()
	key := make([]byte, 32)
	p, err := NewProtector(key)
	require.NoError(t, err)
	return p
}

func TestRecordAccumulatesScore(t *testing.T) {
	store := memory.NewStore()
	tr := New(store.ReputationStore(), testProtector(t), DefaultConfig())
	defer tr.Close()
	ctx := context.Background()

	require.NoError(t, tr.Record(ctx, "peer-1", "bad_signature", -10, "signature mismatch"))
	require.NoError(t, tr.Record(ctx, "peer-1", "bad_signature", -10, "signature mismatch"))

	score, err := tr.Score(ctx, "peer-1")
	require.NoError(t, err)
	assert.Equal(t, -20, score)

	events, err := tr.Events(ctx, "peer-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "bad_signature", events[0].Kind)
}

func TestIsBannedAtThreshold(t *testing.T) {
	store := memory.NewStore()
	cfg := DefaultConfig()
	cfg.BanThreshold = -20
	tr := New(store.ReputationStore(), testProtector(t), cfg)
	defer tr.Close()
	ctx := context.Background()

	require.NoError(t, tr.Record(ctx, "peer-1", "flood", -20, ""))

	banned, err := tr.IsBanned(ctx, "peer-1")
	require.NoError(t, err)
	assert.True(t, banned)

	banned, err = tr.IsBanned(ctx, "peer-2")
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestDecayAndCleanupMovesTowardZeroAndDeletes(t *testing.T) {
	store := memory.NewStore()
	cfg := DefaultConfig()
	cfg.HalfLife = time.Nanosecond
	tr := New(store.ReputationStore(), testProtector(t), cfg)
	defer tr.Close()
	ctx := context.Background()

	require.NoError(t, tr.Record(ctx, "peer-1", "minor", -3, ""))
	require.NoError(t, tr.DecayAndCleanup(ctx))

	score, err := tr.Score(ctx, "peer-1")
	require.NoError(t, err)
	assert.Equal(t, 0, score)
}

func TestProtectorRoundTrip(t *testing.T) {
	p := testProtector(t)
	ct, err := p.Protect([]byte("secret events"))
	require.NoError(t, err)

	pt, err := p.Unprotect(ct)
	require.NoError(t, err)
	assert.Equal(t, "secret events", string(pt))
}

func TestNewTrackerDecayLoopDoesNotBlockClose(t *testing.T) {
	store := memory.NewStore()
	cfg := DefaultConfig()
	cfg.DecayInterval = time.Millisecond
	tr := New(store.ReputationStore(), testProtector(t), cfg)
	time.Sleep(5 * time.Millisecond)
	tr.Close()
}
