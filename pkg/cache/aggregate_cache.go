// Package cache holds precomputed per-day and per-month aggregates keyed by a
// signature over the dataset version and the query scope.
//
// The cache is versioned: Activate switches it to a new dataset version and
// drops every entry wholesale. Entries are never invalidated individually
// because rows of a version never change.
package cache

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

const (
	DefaultMaxEntries = 128
	DefaultTTL        = time.Hour
)

// Key is the scope an aggregate was computed for.
type Key struct {
	DatasetVersionID uuid.UUID
	FilterType       models.DateFilterType
	Range            models.DateRange
	Tag              string
	MetricColumn     string
}

// Signature is the stable cache key for k: the version id followed by an
// xxh3 hash over the remaining scope fields.
func (k Key) Signature() string {
	var b strings.Builder
	b.WriteString(string(k.FilterType))
	b.WriteByte(0)
	b.WriteString(k.Range.String())
	b.WriteByte(0)
	b.WriteString(strings.ToLower(strings.TrimSpace(k.Tag)))
	b.WriteByte(0)
	b.WriteString(k.MetricColumn)

	sum := xxh3.HashString128(b.String()).Bytes()
	return k.DatasetVersionID.String() + ":" + hex.EncodeToString(sum[:])
}

type entry struct {
	value      *models.Aggregates
	expiresAt  time.Time
	lastAccess time.Time
}

// Stats are cumulative counters since construction.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Activations int64
	Entries     int
}

// AggregateCache is safe for concurrent use. Stored aggregates are shared
// between readers and must be treated as read-only.
type AggregateCache struct {
	mu      sync.Mutex
	version uuid.UUID
	entries map[string]*entry
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	activations atomic.Int64
}

// New creates an empty cache. Non-positive arguments use the defaults.
func New(maxEntries int, ttl time.Duration) *AggregateCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &AggregateCache{
		entries: make(map[string]*entry),
		maxSize: maxEntries,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Activate makes versionID the current dataset version. Switching to a
// different version drops every entry; re-activating the current version is
// a no-op.
func (c *AggregateCache) Activate(versionID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.version == versionID {
		return
	}
	c.version = versionID
	c.entries = make(map[string]*entry)
	c.activations.Add(1)
}

// Version returns the currently active dataset version.
func (c *AggregateCache) Version() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Get returns the aggregates for key. Keys of any version other than the
// active one always miss.
func (c *AggregateCache) Get(key Key) (*models.Aggregates, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key.DatasetVersionID == uuid.Nil || key.DatasetVersionID != c.version {
		c.misses.Add(1)
		return nil, false
	}
	sig := key.Signature()
	e, ok := c.entries[sig]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	now := c.now()
	if now.After(e.expiresAt) {
		delete(c.entries, sig)
		c.misses.Add(1)
		return nil, false
	}
	e.lastAccess = now
	c.hits.Add(1)
	return e.value, true
}

// Put stores aggregates for key. Values for a version that is not active are
// dropped so a query racing a version switch cannot repopulate stale data.
// It reports whether the value was stored.
func (c *AggregateCache) Put(key Key, agg *models.Aggregates) bool {
	if agg == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if key.DatasetVersionID == uuid.Nil || key.DatasetVersionID != c.version {
		return false
	}
	sig := key.Signature()
	if _, exists := c.entries[sig]; !exists && len(c.entries) >= c.maxSize {
		c.evictLRU()
	}
	now := c.now()
	c.entries[sig] = &entry{
		value:      agg,
		expiresAt:  now.Add(c.ttl),
		lastAccess: now,
	}
	return true
}

// evictLRU removes the least recently used entry. Caller holds c.mu.
func (c *AggregateCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for key, e := range c.entries {
		if oldestKey == "" || e.lastAccess.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.lastAccess
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evictions.Add(1)
	}
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *AggregateCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *AggregateCache) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Activations: c.activations.Load(),
		Entries:     c.Len(),
	}
}

// Cleanup removes expired entries.
func (c *AggregateCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// StartCleanup sweeps expired entries every interval until ctx is done.
func (c *AggregateCache) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}
