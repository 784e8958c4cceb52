// Package cache keeps prepared rotors in memory so solver requests can
// refer to them by ID.
//
// Entries are keyed by a digest of the input document and the preparation
// options, so posting the same document twice returns the same ID without
// rebuilding. A background sweeper drops entries older than the TTL; when
// the cache is full the oldest entry is evicted on insert.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/rotorprep/internal/diag"
	"github.com/star/rotorprep/internal/metrics"
	"github.com/star/rotorprep/internal/pipeline"
	"github.com/star/rotorprep/internal/polar"
)

// Config holds cache configuration loaded from environment variables.
type Config struct {
	TTL           time.Duration // Drop entries after this long (default: 1h)
	MaxEntries    int           // Upper bound on cached rotors (default: 64)
	SweepInterval time.Duration // Expiry check period (default: TTL/10, at least 1s)
}

// Entry is one prepared rotor. Entries are immutable once stored.
type Entry struct {
	ID          string
	Result      *pipeline.Result
	Options     pipeline.Options
	Diagnostics []diag.Diagnostic
	CreatedAt   time.Time
}

// Key derives an entry ID from the document bytes and a salt describing
// the options it was built with.
func Key(doc []byte, salt string) string {
	h := sha256.New()
	h.Write(doc)
	h.Write([]byte{0})
	h.Write([]byte(salt))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// RotorCache is an in-memory cache of prepared rotors.
// Safe for concurrent use by multiple goroutines.
type RotorCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	config Config
	logger *slog.Logger
	now    func() time.Time

	// Counters (lock-free).
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewRotorCache creates an empty cache.
func NewRotorCache(config Config, logger *slog.Logger) *RotorCache {
	if config.MaxEntries < 1 {
		config.MaxEntries = 1
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = max(config.TTL/10, time.Second)
	}
	logger.Info("cache initialized",
		"ttl_seconds", config.TTL.Seconds(),
		"max_entries", config.MaxEntries,
		"sweep_seconds", config.SweepInterval.Seconds(),
	)
	return &RotorCache{
		entries: make(map[string]*Entry),
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the entry with the given ID, or nil if it is absent or expired.
func (c *RotorCache) Get(id string) *Entry {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()

	if ok && !c.expired(entry) {
		c.hits.Add(1)
		metrics.IncCacheHits()
		return entry
	}

	c.misses.Add(1)
	metrics.IncCacheMisses()
	return nil
}

// Put stores e, replacing any entry with the same ID. If the cache is full
// the oldest entry is evicted first. CreatedAt is set when zero.
func (c *RotorCache) Put(e *Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now()
	}

	var evicted int
	c.mu.Lock()
	if _, ok := c.entries[e.ID]; !ok {
		for len(c.entries) >= c.config.MaxEntries {
			c.deleteOldestLocked()
			evicted++
		}
	}
	c.entries[e.ID] = e
	c.mu.Unlock()

	if evicted > 0 {
		c.evictions.Add(int64(evicted))
		metrics.AddCacheEvictions(evicted)
		c.logger.Debug("cache full, evicted oldest", "entries_removed", evicted)
	}
	c.updateMetrics()
}

// deleteOldestLocked removes the entry with the earliest CreatedAt.
// Caller must hold mu.
func (c *RotorCache) deleteOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, e := range c.entries {
		if oldestID == "" || e.CreatedAt.Before(oldest) {
			oldestID, oldest = id, e.CreatedAt
		}
	}
	delete(c.entries, oldestID)
}

func (c *RotorCache) expired(e *Entry) bool {
	return c.config.TTL > 0 && c.now().Sub(e.CreatedAt) > c.config.TTL
}

// evictExpired removes entries older than the TTL.
func (c *RotorCache) evictExpired() int {
	if c.config.TTL <= 0 {
		return 0
	}
	var removed int

	c.mu.Lock()
	for id, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, id)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		metrics.AddCacheEvictions(removed)
		c.updateMetrics()
		c.logger.Debug("cache eviction", "entries_removed", removed)
	}

	return removed
}

// Stats returns current cache statistics.
func (c *RotorCache) Stats() Stats {
	c.mu.RLock()
	count := len(c.entries)

	var oldest, newest time.Time
	for _, e := range c.entries {
		if oldest.IsZero() || e.CreatedAt.Before(oldest) {
			oldest = e.CreatedAt
		}
		if newest.IsZero() || e.CreatedAt.After(newest) {
			newest = e.CreatedAt
		}
	}
	c.mu.RUnlock()

	return Stats{
		Entries:   count,
		SizeBytes: c.estimateSizeBytes(),
		Oldest:    oldest,
		Newest:    newest,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Stats holds cache statistics.
type Stats struct {
	Entries   int       `json:"entries"`
	SizeBytes int64     `json:"size_bytes"`
	Oldest    time.Time `json:"oldest"`
	Newest    time.Time `json:"newest"`
	Hits      int64     `json:"hits"`
	Misses    int64     `json:"misses"`
	Evictions int64     `json:"evictions"`
}

// estimateSizeBytes returns a rough estimate of the table memory held.
func (c *RotorCache) estimateSizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total int64
	for _, e := range c.entries {
		if e.Result == nil || e.Result.Tables == nil {
			continue
		}
		nAoA, nRe := int64(len(e.Result.Tables.AoA)), int64(len(e.Result.Tables.Re))
		tableBytes := nAoA * nRe * polar.NumCoefficients * 8
		// Per-airfoil tables plus one blended table per station.
		tables := int64(len(e.Result.Tables.Tables))
		if e.Result.Rotor != nil {
			tables += int64(e.Result.Rotor.Stations())
		}
		total += tables * tableBytes
	}
	return total
}

// updateMetrics publishes current cache size to Prometheus.
func (c *RotorCache) updateMetrics() {
	c.mu.RLock()
	count := len(c.entries)
	c.mu.RUnlock()

	metrics.SetCacheEntries(count)
}
