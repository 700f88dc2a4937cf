// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

// Package cache implements a two tier read-through cache: a bounded
// in-process map (tier 1) in front of a kv.Store (tier 2).
//
// The cache is an optimization, never a source of truth. Tier 2 failures are
// logged and counted, then treated as misses; no method returns them.
//
// Tier 1 evicts least frequently used entries (by hit count) and a
// background sweep owned by the Cache drops expired ones. Tier 2 payloads
// above a size threshold are zstd compressed.
package cache

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/highscore/internal/kv"
	"github.com/tomtom215/highscore/internal/logging"
	"github.com/tomtom215/highscore/internal/metrics"
)

// Options configures New. Zero values take the defaults noted per field.
type Options struct {
	// Remote is tier 2. Nil runs tier 1 only.
	Remote kv.Store

	// MemoryOnly marks a nil Remote as deliberate, so IsAvailable reports true.
	MemoryOnly bool

	MaxEntries           int           // default 1000
	DefaultTTL           time.Duration // default 1h; used when Set gets ttl <= 0
	HotTTL               time.Duration // default 5m; tier 1 lifetime of tier 2 backfills
	SweepInterval        time.Duration // default 1m
	CompressionThreshold int           // default 1024 bytes; negative disables
	RemoteTimeout        time.Duration // default 250ms per tier 2 call

	// Clock defaults to time.Now.
	Clock func() time.Time
}

func (o *Options) applyDefaults() {
	if o.MaxEntries <= 0 {
		o.MaxEntries = 1000
	}
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = time.Hour
	}
	if o.HotTTL <= 0 {
		o.HotTTL = 5 * time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.CompressionThreshold == 0 {
		o.CompressionThreshold = 1024
	}
	if o.RemoteTimeout <= 0 {
		o.RemoteTimeout = 250 * time.Millisecond
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Cache is safe for concurrent use. Create it with New and stop its sweep
// with Close. Close does not close Remote; the owner of the store does.
type Cache struct {
	opts   Options
	mem    *memoryTier
	remote kv.Store
	index  *keyIndex
	log    zerolog.Logger

	remoteUp atomic.Bool

	// inval orders invalidations against epoch-checked sets.
	inval sync.RWMutex
	epoch atomic.Uint64

	memHits, remoteHits, misses atomic.Int64
	errs, evictions, expired    atomic.Int64
	sets, deletes, compressed   atomic.Int64
	lastSweep                   atomic.Int64 // unix nanos

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New builds the cache and starts its sweep goroutine.
func New(opts Options) *Cache {
	opts.applyDefaults()
	c := &Cache{
		opts:   opts,
		mem:    newMemoryTier(opts.MaxEntries),
		remote: opts.Remote,
		index:  newKeyIndex(),
		log:    logging.With().Str("component", "cache").Logger(),
		done:   make(chan struct{}),
	}
	c.remoteUp.Store(opts.Remote != nil)
	c.lastSweep.Store(opts.Clock().UnixNano())

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.sweepLoop(ctx)
	return c
}

// Close stops the sweep and waits for it to exit. It is idempotent.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
	})
	return nil
}

func (c *Cache) sweepLoop(ctx context.Context) {
	defer close(c.done)
	t := time.NewTicker(c.opts.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Sweep()
		}
	}
}

// Sweep runs one eviction pass now. The background loop calls it every
// SweepInterval.
func (c *Cache) Sweep() {
	now := c.opts.Clock()
	expired, evicted := c.mem.sweep(now)
	pruned := c.index.prune(now)

	c.expired.Add(int64(expired))
	c.evictions.Add(int64(evicted))
	c.lastSweep.Store(now.UnixNano())
	metrics.CacheEvictions.WithLabelValues("expired").Add(float64(expired))
	metrics.CacheEvictions.WithLabelValues("capacity").Add(float64(evicted))
	metrics.CacheEntries.Set(float64(c.mem.len()))

	if expired+evicted+pruned > 0 {
		c.log.Debug().Int("expired", expired).Int("evicted", evicted).
			Int("index_pruned", pruned).Msg("cache sweep")
	}
}

// Get looks up key in tier 1, then tier 2. A tier 2 hit is copied into
// tier 1 with the hot TTL.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	now := c.opts.Clock()
	if v, ok, expired := c.mem.get(key, now); ok {
		c.memHits.Add(1)
		metrics.CacheHits.WithLabelValues("memory").Inc()
		return v, true
	} else if expired {
		c.expired.Add(1)
		metrics.CacheEvictions.WithLabelValues("expired").Inc()
	}

	if c.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, c.opts.RemoteTimeout)
		raw, err := c.remote.Get(rctx, key)
		cancel()
		switch {
		case err == nil:
			c.remoteOK()
			v, derr := decodePayload(raw)
			if derr != nil {
				c.recordError("decode", key, derr)
				c.deleteRemote(ctx, key)
				break
			}
			c.remoteHits.Add(1)
			metrics.CacheHits.WithLabelValues("remote").Inc()
			c.storeMemory(key, v, c.opts.HotTTL, now)
			return v, true
		case errors.Is(err, kv.ErrNotFound):
			c.remoteOK()
		default:
			c.remoteFailed("get", key, err)
		}
	}

	c.misses.Add(1)
	metrics.CacheMisses.Inc()
	return nil, false
}

// Set writes key to both tiers. With ttl <= 0, tier 1 uses DefaultTTL and
// tier 2 keeps the value without expiry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	now := c.opts.Clock()
	c.setMemory(key, value, ttl, now)
	c.setRemote(ctx, key, value, ttl, now)
}

// setIfEpoch stores value only if no invalidation happened since epoch was
// read. It reports whether the value was stored.
//
// Only the tier 1 write holds inval. If an invalidation lands while the
// tier 2 write is in flight, the tier 2 copy is removed again afterwards.
func (c *Cache) setIfEpoch(ctx context.Context, key string, value []byte, ttl time.Duration, epoch uint64) bool {
	now := c.opts.Clock()
	c.inval.RLock()
	if c.epoch.Load() != epoch {
		c.inval.RUnlock()
		return false
	}
	c.setMemory(key, value, ttl, now)
	c.inval.RUnlock()

	if !c.setRemote(ctx, key, value, ttl, now) {
		return true
	}
	if c.epoch.Load() != epoch {
		c.mem.delete(key)
		c.index.remove(key)
		c.deleteRemote(ctx, key)
		return false
	}
	return true
}

func (c *Cache) setMemory(key string, value []byte, ttl time.Duration, now time.Time) {
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}
	c.storeMemory(key, value, ttl, now)
	c.sets.Add(1)
}

// setRemote writes tier 2 and reports whether it took the value.
func (c *Cache) setRemote(ctx context.Context, key string, value []byte, ttl time.Duration, now time.Time) bool {
	if c.remote == nil {
		return false
	}
	payload, compressed := encodePayload(value, c.opts.CompressionThreshold)
	if compressed {
		c.compressed.Add(1)
	}

	rctx, cancel := context.WithTimeout(ctx, c.opts.RemoteTimeout)
	err := c.remote.Set(rctx, key, payload, max(ttl, 0))
	cancel()
	if err != nil {
		c.remoteFailed("set", key, err)
		return false
	}
	c.remoteOK()

	if _, scans := kv.AsScanner(c.remote); !scans {
		var exp time.Time
		if ttl > 0 {
			exp = now.Add(ttl)
		}
		c.index.add(key, exp)
	}
	return true
}

func (c *Cache) storeMemory(key string, value []byte, ttl time.Duration, now time.Time) {
	if n := c.mem.set(key, value, now.Add(ttl)); n > 0 {
		c.evictions.Add(int64(n))
		metrics.CacheEvictions.WithLabelValues("capacity").Add(float64(n))
	}
}

// Delete removes keys from both tiers.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	c.inval.Lock()
	c.epoch.Add(1)
	for _, k := range keys {
		c.mem.delete(k)
		c.index.remove(k)
	}
	c.inval.Unlock()

	c.deletes.Add(int64(len(keys)))
	c.deleteRemote(ctx, keys...)
}

func (c *Cache) deleteRemote(ctx context.Context, keys ...string) {
	if c.remote == nil || len(keys) == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, c.opts.RemoteTimeout)
	err := c.remote.Delete(rctx, keys...)
	cancel()
	if err != nil {
		c.remoteFailed("delete", strings.Join(keys, ","), err)
		return
	}
	c.remoteOK()
}

// DeletePattern removes every key matching a path.Match style glob from
// both tiers and returns how many distinct keys were removed. Tier 2 keys
// are enumerated natively when the backend can scan, otherwise from the
// key index.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) int {
	if _, err := path.Match(pattern, ""); err != nil {
		c.log.Warn().Err(err).Str("pattern", pattern).Msg("invalid cache key pattern")
		return 0
	}
	match := func(k string) bool {
		ok, _ := path.Match(pattern, k)
		return ok
	}
	prefix := literalPrefix(pattern)
	sc, scans := kv.AsScanner(c.remote)

	seen := make(map[string]struct{})
	var remote []string
	c.inval.Lock()
	c.epoch.Add(1)
	for _, k := range c.mem.deleteMatching(match) {
		seen[k] = struct{}{}
	}
	if c.remote != nil && !scans {
		for _, k := range c.index.withPrefix(prefix) {
			if match(k) {
				remote = append(remote, k)
				c.index.remove(k)
				seen[k] = struct{}{}
			}
		}
	}
	c.inval.Unlock()

	if c.remote != nil && scans {
		rctx, cancel := context.WithTimeout(ctx, c.opts.RemoteTimeout)
		keys, err := sc.Keys(rctx, prefix)
		cancel()
		if err != nil {
			c.remoteFailed("scan", pattern, err)
		}
		for _, k := range keys {
			if match(k) {
				remote = append(remote, k)
				seen[k] = struct{}{}
			}
		}
	}
	c.deleteRemote(ctx, remote...)

	c.deletes.Add(int64(len(seen)))
	return len(seen)
}

// literalPrefix is the part of a glob before its first metacharacter.
func literalPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, `*?[\`); i >= 0 {
		return pattern[:i]
	}
	return pattern
}

// IsAvailable reports whether the cache is fully functional: tier 2 answers
// a ping, or the cache was deliberately configured memory only.
func (c *Cache) IsAvailable(ctx context.Context) bool {
	if c.remote == nil {
		return c.opts.MemoryOnly
	}
	rctx, cancel := context.WithTimeout(ctx, c.opts.RemoteTimeout)
	err := c.remote.Ping(rctx)
	cancel()
	if err != nil {
		c.remoteFailed("ping", "", err)
		return false
	}
	c.remoteOK()
	return true
}

// Epoch changes on every Delete and DeletePattern. Loaders compare it
// before and after a load to avoid caching data read before an invalidation.
func (c *Cache) Epoch() uint64 {
	return c.epoch.Load()
}

func (c *Cache) remoteOK() {
	if !c.remoteUp.Swap(true) {
		c.log.Info().Str("backend", kv.NameOf(c.remote)).Msg("cache remote tier recovered")
	}
	metrics.RemoteTierUp.Set(1)
}

func (c *Cache) remoteFailed(op, key string, err error) {
	c.recordError(op, key, err)
	metrics.RemoteTierUp.Set(0)
	if c.remoteUp.Swap(false) {
		c.log.Warn().Err(err).Str("op", op).Str("backend", kv.NameOf(c.remote)).
			Msg("cache remote tier unavailable, serving from memory only")
	}
}

func (c *Cache) recordError(op, key string, err error) {
	c.errs.Add(1)
	metrics.CacheErrors.WithLabelValues(op).Inc()
	c.log.Debug().Err(err).Str("op", op).Str("key", key).Msg("cache operation failed")
}

// Stats is a point in time snapshot of cache counters.
type Stats struct {
	MemoryHits       int64     `json:"memory_hits"`
	RemoteHits       int64     `json:"remote_hits"`
	Misses           int64     `json:"misses"`
	Errors           int64     `json:"errors"`
	Evictions        int64     `json:"evictions"`
	Expired          int64     `json:"expired"`
	Sets             int64     `json:"sets"`
	Deletes          int64     `json:"deletes"`
	Compressed       int64     `json:"compressed"`
	Entries          int       `json:"entries"`
	IndexedKeys      int       `json:"indexed_keys"`
	HitRate          float64   `json:"hit_rate"` // percent
	RemoteConfigured bool      `json:"remote_configured"`
	RemoteUp         bool      `json:"remote_up"`
	RemoteBackend    string    `json:"remote_backend,omitempty"`
	LastSweep        time.Time `json:"last_sweep"`
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	s := Stats{
		MemoryHits:       c.memHits.Load(),
		RemoteHits:       c.remoteHits.Load(),
		Misses:           c.misses.Load(),
		Errors:           c.errs.Load(),
		Evictions:        c.evictions.Load(),
		Expired:          c.expired.Load(),
		Sets:             c.sets.Load(),
		Deletes:          c.deletes.Load(),
		Compressed:       c.compressed.Load(),
		Entries:          c.mem.len(),
		IndexedKeys:      c.index.len(),
		RemoteConfigured: c.remote != nil,
		RemoteUp:         c.remote != nil && c.remoteUp.Load(),
		LastSweep:        time.Unix(0, c.lastSweep.Load()),
	}
	if c.remote != nil {
		s.RemoteBackend = kv.NameOf(c.remote)
	}
	if total := s.MemoryHits + s.RemoteHits + s.Misses; total > 0 {
		s.HitRate = float64(s.MemoryHits+s.RemoteHits) / float64(total) * 100
	}
	return s
}
