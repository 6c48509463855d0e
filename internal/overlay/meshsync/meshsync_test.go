package meshsync

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/slskdn-sub011/internal/overlay/collab"
	"github.com/snapetech/slskdn-sub011/internal/overlay/errs"
	"github.com/snapetech/slskdn-sub011/internal/overlay/reputation"
	"github.com/snapetech/slskdn-sub011/pkg/storage/memory"
)

type fakeDescriptors struct {
	descs map[string]*collab.PeerDescriptor
}

func (f *fakeDescriptors) Descriptor(peerID string) (*collab.PeerDescriptor, bool) {
	d, ok := f.descs[peerID]
	return d, ok
}

func signedBatch(t *testing.T, pub ed25519.PublicKey, priv ed25519.PrivateKey, entries []Entry) *Batch {
	t.Helper()
	b := &Batch{SenderPeerID: "peer-1", Entries: entries}
	b.Signature = ed25519.Sign(priv, signingBase(b))
	return b
}

func newFakeDescriptors(t *testing.T, pub ed25519.PublicKey) *fakeDescriptors {
	t.Helper()
	return &fakeDescriptors{descs: map[string]*collab.PeerDescriptor{
		"peer-1": {PeerID: "peer-1", ControlSigningKeys: []ed25519.PublicKey{pub}},
	}}
}

func validEntries(n int) []Entry {
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Entry{Hash: make([]byte, 20), FlacKey: "key", Size: 1})
	}
	return out
}

func TestAcceptPassesValidBatch(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	descs := newFakeDescriptors(t, pub)

	g := New(DefaultConfig(), descs, nil, nil)
	batch := signedBatch(t, pub, priv, validEntries(3))

	out, err := g.Accept(batch)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestAcceptRejectsBadSignature(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	descs := newFakeDescriptors(t, pub)

	g := New(DefaultConfig(), descs, nil, nil)
	batch := signedBatch(t, pub, otherPriv, validEntries(1))

	_, err = g.Accept(batch)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Auth))
}

func TestAcceptFiltersInvalidEntries(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	descs := newFakeDescriptors(t, pub)

	g := New(DefaultConfig(), descs, nil, nil)
	entries := append(validEntries(2), Entry{Hash: []byte("short"), FlacKey: "", Size: 0})
	batch := signedBatch(t, pub, priv, entries)

	out, err := g.Accept(batch)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestRecordViolationQuarantinesAfterThreshold(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	descs := newFakeDescriptors(t, pub)
	events := collab.NewMemorySecurityEventLogger()

	cfg := DefaultConfig()
	cfg.InvalidEntryThreshold = 1
	cfg.ViolationsBeforeQuarantine = 2
	g := New(cfg, descs, nil, events)

	badBatch := func() *Batch {
		return signedBatch(t, pub, priv, []Entry{{Hash: []byte("x"), FlacKey: "", Size: 0}})
	}

	_, err = g.Accept(badBatch())
	require.NoError(t, err)
	_, err = g.Accept(badBatch())
	require.NoError(t, err)

	_, err = g.Accept(badBatch())
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Policy))
	assert.NotEmpty(t, events.Events)
}

func TestQuarantineLiftsAfterCooldownAndGoodReputation(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	descs := newFakeDescriptors(t, pub)

	store := memory.NewStore().ReputationStore()
	protector, err := reputation.NewProtector(make([]byte, 32))
	require.NoError(t, err)
	repCfg := reputation.DefaultConfig()
	repCfg.DecayInterval = time.Hour
	tracker := reputation.New(store, protector, repCfg)
	defer tracker.Close()

	cfg := DefaultConfig()
	cfg.InvalidEntryThreshold = 1
	cfg.ViolationsBeforeQuarantine = 1
	cfg.QuarantineCooldown = 0
	g := New(cfg, descs, tracker, nil)

	badBatch := signedBatch(t, pub, priv, []Entry{{Hash: []byte("x"), FlacKey: "", Size: 0}})
	_, err = g.Accept(badBatch)
	require.NoError(t, err)

	require.NoError(t, tracker.Record(context.Background(), "peer-1", "manual-credit", 100, "test credit"))

	goodBatch := signedBatch(t, pub, priv, validEntries(1))
	out, err := g.Accept(goodBatch)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
