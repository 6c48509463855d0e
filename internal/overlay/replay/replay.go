// Package replay implements L3: the replay cache that rejects any
// (peerId, messageId) pair seen before within the configured TTL window.
// The per-peer nonce maps are sharded the same way session.NonceCache
// shards per-keyid nonces; an LRU bounds the number of distinct peers
// tracked at once so a flood of throwaway peer ids cannot grow the cache
// without bound.
package replay

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache rejects replayed (peerId, messageId) pairs within a TTL window.
type Cache struct {
	ttl  time.Duration
	data sync.Map // peerID -> *sync.Map (messageID -> expiryUnixNano)

	peers *lru.Cache[string, struct{}]

	tick *time.Ticker
	stop chan struct{}
	once sync.Once
}

// New creates a replay cache with the given per-entry TTL and a bound on
// the number of distinct peers tracked simultaneously.
func New(ttl time.Duration, maxPeers int) *Cache {
	c := &Cache{
		ttl:  ttl,
		stop: make(chan struct{}),
		tick: time.NewTicker(time.Minute),
	}

	peers, err := lru.NewWithEvict[string, struct{}](maxPeers, func(peerID string, _ struct{}) {
		c.data.Delete(peerID)
	})
	if err != nil {
		// maxPeers <= 0: degrade to a minimal single-slot LRU rather than panic.
		peers, _ = lru.NewWithEvict[string, struct{}](1, func(peerID string, _ struct{}) {
			c.data.Delete(peerID)
		})
	}
	c.peers = peers

	go c.gcLoop()
	return c
}

// CheckAndRecord returns true if (peerID, messageID) was already seen within
// the TTL window (a replay); otherwise it records the pair and returns false.
func (c *Cache) CheckAndRecord(peerID, messageID string) bool {
	if peerID == "" || messageID == "" {
		return false
	}

	c.peers.Add(peerID, struct{}{})

	now := time.Now()
	exp := now.Add(c.ttl).UnixNano()
	v, _ := c.data.LoadOrStore(peerID, &sync.Map{})
	m := v.(*sync.Map)

	for {
		old, loaded := m.LoadOrStore(messageID, exp)
		if !loaded {
			return false
		}
		if prevExp, _ := old.(int64); prevExp >= now.UnixNano() {
			return true
		}
		if m.CompareAndSwap(messageID, old, exp) {
			return false
		}
	}
}

// Close stops the background GC loop.
func (c *Cache) Close() {
	c.once.Do(func() {
		close(c.stop)
		c.tick.Stop()
	})
}

func (c *Cache) gcLoop() {
	for {
		select {
		case <-c.tick.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) sweep() {
	now := time.Now().UnixNano()
	c.data.Range(func(k, v any) bool {
		m := v.(*sync.Map)
		empty := true
		m.Range(func(nk, nv any) bool {
			if exp, _ := nv.(int64); exp < now {
				m.Delete(nk)
			} else {
				empty = false
			}
			return true
		})
		if empty {
			c.data.Delete(k)
		}
		return true
	})
}
