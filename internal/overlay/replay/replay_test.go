package replay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckAndRecordDetectsReplay(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	assert.False(t, c.CheckAndRecord("peer-1", "msg-1"))
	assert.True(t, c.CheckAndRecord("peer-1", "msg-1"))
	assert.False(t, c.CheckAndRecord("peer-1", "msg-2"))
	assert.False(t, c.CheckAndRecord("peer-2", "msg-1"))
}

func TestCheckAndRecordExpiresEntries(t *testing.T) {
	c := New(10*time.Millisecond, 100)
	defer c.Close()

	assert.False(t, c.CheckAndRecord("peer-1", "msg-1"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.CheckAndRecord("peer-1", "msg-1"))
}

func TestMaxPeersEvictsOldestPeer(t *testing.T) {
	c := New(time.Minute, 1)
	defer c.Close()

	assert.False(t, c.CheckAndRecord("peer-1", "msg-1"))
	assert.False(t, c.CheckAndRecord("peer-2", "msg-1"))

	// peer-1's tracked entries should have been evicted to make room for peer-2.
	assert.False(t, c.CheckAndRecord("peer-1", "msg-1"))
}
