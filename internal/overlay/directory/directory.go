// Package directory implements L11: ServiceDirectory. It resolves service
// names to signed descriptors via the DHT, validates and caches them, and
// tracks per-requester query patterns to flag enumeration/scanning abuse —
// detection only; enforcement is left to rate limits and reputation so
// directory browsing itself is never blocked outright (spec.md §4.11, §9).
package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/snapetech/slskdn-sub011/internal/metrics"
	"github.com/snapetech/slskdn-sub011/internal/overlay/collab"
	"github.com/snapetech/slskdn-sub011/internal/overlay/errs"
)

// Config bounds the directory's lookup and abuse-detection behavior.
type Config struct {
	MaxDescriptorsPerLookup int
	CacheSize               int
	CacheTTL                time.Duration

	AbuseWindow             time.Duration
	EnumerationThreshold    int // unique service names queried
	RapidFireThreshold      int // total queries
	ScanningQueryThreshold  int
	ScanningUniqueThreshold int
}

// DefaultConfig matches spec.md §4.11's suggested thresholds.
func DefaultConfig() Config {
	return Config{
		MaxDescriptorsPerLookup: 16,
		CacheSize:               512,
		CacheTTL:                5 * time.Minute,
		AbuseWindow:             time.Minute,
		EnumerationThreshold:    10,
		RapidFireThreshold:      50,
		ScanningQueryThreshold:  30,
		ScanningUniqueThreshold: 5,
	}
}

type cacheEntry struct {
	descriptors []collab.ServiceDescriptor
	fetchedAt   time.Time
}

// Directory implements findByName against a DHT client, with a bounded
// result cache and requester-side abuse-pattern detection.
type Directory struct {
	cfg       Config
	dht       collab.IDhtClient
	validator descriptorValidator
	events    collab.ISecurityEventLogger

	cache *lru.Cache[string, cacheEntry]

	mu       sync.Mutex
	activity map[string]*requesterWindow
}

type descriptorValidator interface {
	ValidateService(desc *collab.ServiceDescriptor) (ok bool, reason string)
}

type requesterWindow struct {
	windowStart time.Time
	queryCount  int
	names       map[string]struct{}
}

// New builds a Directory. events may be nil to disable abuse reporting.
func New(cfg Config, dht collab.IDhtClient, validator descriptorValidator, events collab.ISecurityEventLogger) *Directory {
	cache, _ := lru.New[string, cacheEntry](cfg.CacheSize)
	return &Directory{
		cfg:       cfg,
		dht:       dht,
		validator: validator,
		events:    events,
		cache:     cache,
		activity:  make(map[string]*requesterWindow),
	}
}

// FindByName resolves serviceName to up to MaxDescriptorsPerLookup validated
// descriptors, in arrival order, consulting the cache before issuing a DHT
// GET. requesterPeerID is optional (empty string disables abuse tracking
// for this call, e.g. for the node's own internal lookups).
func (d *Directory) FindByName(ctx context.Context, serviceName string, requesterPeerID string) ([]collab.ServiceDescriptor, error) {
	if requesterPeerID != "" {
		d.recordQuery(requesterPeerID, serviceName)
	}

	key := "svc:" + serviceName
	if entry, ok := d.cache.Get(key); ok && time.Since(entry.fetchedAt) < d.cfg.CacheTTL {
		return entry.descriptors, nil
	}

	raw, err := d.dht.GetRaw(ctx, key)
	if err != nil {
		return nil, errs.Wrap(errs.Transport, fmt.Sprintf("dht get %s", key), err)
	}

	var all []collab.ServiceDescriptor
	if err := cbor.Unmarshal(raw, &all); err != nil {
		return nil, errs.Wrap(errs.Decode, "malformed service descriptor list", err)
	}

	out := make([]collab.ServiceDescriptor, 0, min(len(all), d.cfg.MaxDescriptorsPerLookup))
	for _, desc := range all {
		if d.validator != nil {
			if ok, _ := d.validator.ValidateService(&desc); !ok {
				continue
			}
		}
		out = append(out, desc)
		if len(out) == d.cfg.MaxDescriptorsPerLookup {
			break
		}
	}

	d.cache.Add(key, cacheEntry{descriptors: out, fetchedAt: time.Now()})
	return out, nil
}

// recordQuery counts the query in requesterPeerID's current window and emits
// a security event on every call for which an abuse pattern holds. The
// window is fixed, not sliding: it opens at the requester's first query and
// starts over with empty counts at the first query after AbuseWindow (one
// minute by default) has elapsed.
func (d *Directory) recordQuery(requesterPeerID, serviceName string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, ok := d.activity[requesterPeerID]
	now := time.Now()
	if !ok || now.Sub(w.windowStart) > d.cfg.AbuseWindow {
		w = &requesterWindow{windowStart: now, names: make(map[string]struct{})}
		d.activity[requesterPeerID] = w
	}

	w.queryCount++
	w.names[serviceName] = struct{}{}

	if d.events == nil {
		return
	}

	uniqueNames := len(w.names)
	details := map[string]any{"queryCount": w.queryCount, "uniqueServiceNames": uniqueNames}

	switch {
	case uniqueNames > d.cfg.ScanningUniqueThreshold && w.queryCount > d.cfg.ScanningQueryThreshold:
		metrics.DirectoryAbuseEvents.WithLabelValues("directory-scanning").Inc()
		d.events.Log("directory-scanning", requesterPeerID, details)
	case uniqueNames > d.cfg.EnumerationThreshold:
		metrics.DirectoryAbuseEvents.WithLabelValues("directory-enumeration").Inc()
		d.events.Log("directory-enumeration", requesterPeerID, details)
	case w.queryCount > d.cfg.RapidFireThreshold:
		metrics.DirectoryAbuseEvents.WithLabelValues("directory-rapid-fire").Inc()
		d.events.Log("directory-rapid-fire", requesterPeerID, details)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
