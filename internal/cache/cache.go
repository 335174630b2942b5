// Package cache provides ScopedCache, a generic capacity and TTL bounded
// read-through cache with per-key single-flight loading and write-through
// refresh.
//
// One ScopedCache is built per scope tier. Reads that miss (or find an
// expired entry) call the loader once per key no matter how many goroutines
// ask concurrently; if the loader fails and an expired entry is still held,
// the stale value is served. Writers call Refresh after committing a
// mutation; a load that started before the refresh can never overwrite the
// refreshed value, so readers never move backwards in time.
//
// Entries are spread over independently locked shards. Within a shard the
// least recently used entry is evicted when an insert would exceed the
// shard's share of the capacity; with a single shard the LRU order is exact.
package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/tbourn/thread-commands/internal/clock"
)

// ErrNoLoader is returned by New when no loader is supplied.
var ErrNoLoader = errors.New("cache: loader is required")

// Loader fetches the authoritative value for key.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Options configures a ScopedCache.
type Options struct {
	// Name labels metrics and logs (e.g. "thread", "server").
	Name string
	// Capacity is the maximum number of entries. Values <= 0 default to 100.
	Capacity int
	// TTL bounds entry freshness. Values <= 0 disable expiry.
	TTL time.Duration
	// Shards splits the key space into independently locked partitions.
	// Values <= 0 pick 1 for capacities under 64 and 8 otherwise.
	Shards int
	// LoadTimeout caps a single loader call. Defaults to 5s.
	LoadTimeout time.Duration
	// Clock is the time source. Defaults to clock.Real.
	Clock clock.Clock
	// OnEvict, when set, is called (outside any lock) for each entry removed
	// by the capacity bound.
	OnEvict func(key any)
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
	ticket    uint64
}

// floor marks the oldest load ticket still allowed to store a key.
type floor struct {
	ticket uint64
	at     time.Time
}

type shard[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // front = most recently used
	floors   map[K]floor
}

// ScopedCache is safe for concurrent use. Construct with New.
type ScopedCache[K comparable, V any] struct {
	name        string
	ttl         time.Duration
	loadTimeout time.Duration
	load        Loader[K, V]
	clock       clock.Clock
	onEvict     func(key any)
	shards      []*shard[K, V]
	flights     singleflight.Group
	seq         atomic.Uint64
	stats       Stats
	log         zerolog.Logger
}

// New builds a ScopedCache around loader.
func New[K comparable, V any](opts Options, loader Loader[K, V]) (*ScopedCache[K, V], error) {
	if loader == nil {
		return nil, ErrNoLoader
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 100
	}
	if opts.Shards <= 0 {
		opts.Shards = 1
		if opts.Capacity >= 64 {
			opts.Shards = 8
		}
	}
	if opts.Shards > opts.Capacity {
		opts.Shards = opts.Capacity
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 5 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Name == "" {
		opts.Name = "default"
	}

	c := &ScopedCache[K, V]{
		name:        opts.Name,
		ttl:         opts.TTL,
		loadTimeout: opts.LoadTimeout,
		load:        loader,
		clock:       opts.Clock,
		onEvict:     opts.OnEvict,
		shards:      make([]*shard[K, V], opts.Shards),
		log:         log.With().Str("component", "cache").Str("cache", opts.Name).Logger(),
	}
	// Shard capacities sum to Capacity exactly; the first Capacity%Shards
	// shards hold one extra entry.
	base, extra := opts.Capacity/opts.Shards, opts.Capacity%opts.Shards
	for i := range c.shards {
		per := base
		if i < extra {
			per++
		}
		c.shards[i] = &shard[K, V]{
			capacity: per,
			items:    make(map[K]*list.Element),
			order:    list.New(),
			floors:   make(map[K]floor),
		}
	}
	return c, nil
}

// Name returns the cache's label.
func (c *ScopedCache[K, V]) Name() string { return c.name }

// Get returns the cached value for key, loading it on a miss or after
// expiry. When the load fails and an expired value is held, that value is
// returned with a nil error.
func (c *ScopedCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	ks := keyString(key)
	sh := c.shardFor(ks)
	now := c.clock.Now()

	var (
		stale    V
		hasStale bool
	)
	sh.mu.Lock()
	if el, ok := sh.items[key]; ok {
		e := el.Value.(*entry[K, V])
		if !c.expired(e, now) {
			sh.order.MoveToFront(el)
			v := e.value
			sh.mu.Unlock()
			c.stats.hits.Add(1)
			cacheRequests.WithLabelValues(c.name, "hit").Inc()
			return v, nil
		}
		stale, hasStale = e.value, true
	}
	sh.mu.Unlock()
	c.stats.misses.Add(1)
	cacheRequests.WithLabelValues(c.name, "miss").Inc()

	res, err, _ := c.flights.Do(ks, func() (any, error) {
		ticket := c.seq.Add(1)
		v, err := c.callLoader(ctx, key)
		if err != nil {
			return nil, err
		}
		c.store(key, v, ticket)
		return v, nil
	})
	if err != nil {
		if hasStale {
			c.stats.stale.Add(1)
			cacheRequests.WithLabelValues(c.name, "stale").Inc()
			c.log.Warn().Err(err).Str("key", ks).Msg("load failed, serving stale entry")
			return stale, nil
		}
		var zero V
		return zero, err
	}
	v, _ := res.(V)
	return v, nil
}

// Refresh reloads key unconditionally and replaces the cached entry. Loads
// that were already in flight when Refresh started cannot overwrite the
// result. If the reload fails the entry is dropped, so no pre-refresh value
// is served afterwards.
func (c *ScopedCache[K, V]) Refresh(ctx context.Context, key K) (V, error) {
	ks := keyString(key)
	sh := c.shardFor(ks)
	ticket := c.seq.Add(1)

	sh.mu.Lock()
	sh.floors[key] = floor{ticket: ticket, at: c.clock.Now()}
	sh.mu.Unlock()
	c.flights.Forget(ks)

	v, err := c.callLoader(ctx, key)
	if err != nil {
		sh.mu.Lock()
		c.removeLocked(sh, key)
		sh.mu.Unlock()
		var zero V
		return zero, err
	}
	c.store(key, v, ticket)
	return v, nil
}

// Invalidate drops key without reloading. In-flight loads for key that
// started earlier will not repopulate it.
func (c *ScopedCache[K, V]) Invalidate(key K) {
	ks := keyString(key)
	sh := c.shardFor(ks)
	ticket := c.seq.Add(1)
	now := c.clock.Now()

	sh.mu.Lock()
	c.removeLocked(sh, key)
	sh.floors[key] = floor{ticket: ticket, at: now}
	c.pruneFloorsLocked(sh, now)
	sh.mu.Unlock()
	c.flights.Forget(ks)
}

// Peek returns the cached value without loading and without touching the
// LRU order. Expired entries are reported as absent.
func (c *ScopedCache[K, V]) Peek(key K) (V, bool) {
	sh := c.shardFor(keyString(key))
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if el, ok := sh.items[key]; ok {
		e := el.Value.(*entry[K, V])
		if !c.expired(e, c.clock.Now()) {
			return e.value, true
		}
	}
	var zero V
	return zero, false
}

// Len returns the number of held entries, expired ones included.
func (c *ScopedCache[K, V]) Len() int {
	n := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		n += sh.order.Len()
		sh.mu.Unlock()
	}
	return n
}

// Stats returns a snapshot of the cache counters.
func (c *ScopedCache[K, V]) Stats() Snapshot {
	return c.stats.snapshot(c.Len())
}

func (c *ScopedCache[K, V]) callLoader(ctx context.Context, key K) (V, error) {
	// Loads are shared by every waiter, so one caller's cancellation must
	// not fail the rest; the timeout still bounds the call.
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
	defer cancel()

	v, err := c.load(lctx, key)
	if err != nil {
		c.stats.loadErrors.Add(1)
		cacheLoads.WithLabelValues(c.name, "error").Inc()
		return v, fmt.Errorf("cache %s: load %v: %w", c.name, key, err)
	}
	c.stats.loads.Add(1)
	cacheLoads.WithLabelValues(c.name, "ok").Inc()
	return v, nil
}

// store inserts or replaces key unless a newer load or an invalidation has
// superseded ticket.
func (c *ScopedCache[K, V]) store(key K, v V, ticket uint64) bool {
	sh := c.shardFor(keyString(key))
	now := c.clock.Now()
	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = now.Add(c.ttl)
	}

	var evicted []K
	sh.mu.Lock()
	if f, ok := sh.floors[key]; ok {
		if ticket < f.ticket {
			sh.mu.Unlock()
			return false
		}
		delete(sh.floors, key)
	}
	if el, ok := sh.items[key]; ok {
		e := el.Value.(*entry[K, V])
		if ticket < e.ticket {
			sh.mu.Unlock()
			return false
		}
		e.value, e.expiresAt, e.ticket = v, expiresAt, ticket
		sh.order.MoveToFront(el)
		sh.mu.Unlock()
		return true
	}
	for sh.order.Len() >= sh.capacity {
		back := sh.order.Back()
		if back == nil {
			break
		}
		old := back.Value.(*entry[K, V])
		sh.order.Remove(back)
		delete(sh.items, old.key)
		evicted = append(evicted, old.key)
	}
	sh.items[key] = sh.order.PushFront(&entry[K, V]{key: key, value: v, expiresAt: expiresAt, ticket: ticket})
	sh.mu.Unlock()

	cacheEntries.WithLabelValues(c.name).Set(float64(c.Len()))
	for _, k := range evicted {
		c.stats.evictions.Add(1)
		cacheEvictions.WithLabelValues(c.name).Inc()
		if c.onEvict != nil {
			c.onEvict(k)
		}
	}
	return true
}

func (c *ScopedCache[K, V]) removeLocked(sh *shard[K, V], key K) {
	if el, ok := sh.items[key]; ok {
		sh.order.Remove(el)
		delete(sh.items, key)
	}
}

// pruneFloorsLocked forgets invalidation floors old enough that every load
// they guarded against has timed out.
func (c *ScopedCache[K, V]) pruneFloorsLocked(sh *shard[K, V], now time.Time) {
	if len(sh.floors) <= sh.capacity {
		return
	}
	horizon := 2 * c.loadTimeout
	for k, f := range sh.floors {
		if now.Sub(f.at) > horizon {
			delete(sh.floors, k)
		}
	}
}

func (c *ScopedCache[K, V]) expired(e *entry[K, V], now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func (c *ScopedCache[K, V]) shardFor(ks string) *shard[K, V] {
	if len(c.shards) == 1 {
		return c.shards[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(ks))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

func keyString[K comparable](key K) string {
	if s, ok := any(key).(string); ok {
		return s
	}
	return fmt.Sprint(key)
}
