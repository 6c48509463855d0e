package directory

import (
	"context"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/slskdn-sub011/internal/overlay/collab"
)

type fakeDht struct {
	values map[string][]byte
	calls  int
}

func (f *fakeDht) GetRaw(ctx context.Context, key string) ([]byte, error) {
	f.calls++
	v, ok := f.values[key]
	if !ok {
		return nil, context.DeadlineExceeded
	}
	return v, nil
}
func (f *fakeDht) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}
func (f *fakeDht) FindNode(ctx context.Context, target string) ([]string, error) { return nil, nil }
func (f *fakeDht) Ping(ctx context.Context, peer string) error                   { return nil }

type passValidator struct{ reject bool }

func (p passValidator) ValidateService(desc *collab.ServiceDescriptor) (bool, string) {
	if p.reject {
		return false, "rejected"
	}
	return true, ""
}

func marshalDescriptors(t *testing.T, descs []collab.ServiceDescriptor) []byte {
	t.Helper()
	b, err := cbor.Marshal(descs)
	require.NoError(t, err)
	return b
}

func TestFindByNameReturnsValidatedDescriptors(t *testing.T) {
	descs := []collab.ServiceDescriptor{
		{ServiceName: "search", PeerID: "peer-1", Endpoint: "udp://1.2.3.4:1"},
		{ServiceName: "search", PeerID: "peer-2", Endpoint: "udp://1.2.3.4:2"},
	}
	dht := &fakeDht{values: map[string][]byte{"svc:search": marshalDescriptors(t, descs)}}
	dir := New(DefaultConfig(), dht, passValidator{}, nil)

	got, err := dir.FindByName(context.Background(), "search", "requester-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFindByNameDropsInvalidDescriptors(t *testing.T) {
	descs := []collab.ServiceDescriptor{{ServiceName: "search", PeerID: "peer-1"}}
	dht := &fakeDht{values: map[string][]byte{"svc:search": marshalDescriptors(t, descs)}}
	dir := New(DefaultConfig(), dht, passValidator{reject: true}, nil)

	got, err := dir.FindByName(context.Background(), "search", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindByNameCachesResult(t *testing.T) {
	descs := []collab.ServiceDescriptor{{ServiceName: "search", PeerID: "peer-1"}}
	dht := &fakeDht{values: map[string][]byte{"svc:search": marshalDescriptors(t, descs)}}
	dir := New(DefaultConfig(), dht, passValidator{}, nil)

	_, err := dir.FindByName(context.Background(), "search", "")
	require.NoError(t, err)
	_, err = dir.FindByName(context.Background(), "search", "")
	require.NoError(t, err)

	assert.Equal(t, 1, dht.calls)
}

func TestFindByNameCapsResultsAtMaxPerLookup(t *testing.T) {
	descs := make([]collab.ServiceDescriptor, 0, 20)
	for i := 0; i < 20; i++ {
		descs = append(descs, collab.ServiceDescriptor{ServiceName: "search", PeerID: "peer"})
	}
	dht := &fakeDht{values: map[string][]byte{"svc:search": marshalDescriptors(t, descs)}}
	cfg := DefaultConfig()
	cfg.MaxDescriptorsPerLookup = 5
	dir := New(cfg, dht, passValidator{}, nil)

	got, err := dir.FindByName(context.Background(), "search", "")
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestRecordQueryFlagsEnumeration(t *testing.T) {
	dht := &fakeDht{values: map[string][]byte{}}
	events := collab.NewMemorySecurityEventLogger()
	cfg := DefaultConfig()
	cfg.EnumerationThreshold = 3
	dir := New(cfg, dht, passValidator{}, events)

	for i := 0; i < 5; i++ {
		dir.recordQuery("requester-1", string(rune('a'+i)))
	}

	require.NotEmpty(t, events.Events)
	assert.Equal(t, "directory-enumeration", events.Events[len(events.Events)-1].Name)
}

func TestRecordQueryFlagsRapidFire(t *testing.T) {
	dht := &fakeDht{values: map[string][]byte{}}
	events := collab.NewMemorySecurityEventLogger()
	cfg := DefaultConfig()
	cfg.RapidFireThreshold = 3
	dir := New(cfg, dht, passValidator{}, events)

	for i := 0; i < 6; i++ {
		dir.recordQuery("requester-1", "same-name")
	}

	require.NotEmpty(t, events.Events)
	found := false
	for _, ev := range events.Events {
		if ev.Name == "directory-rapid-fire" {
			found = true
		}
	}
	assert.True(t, found)
}
