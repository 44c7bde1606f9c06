// Package metricscache is a TTL cache keyed by (entity, timeframe) with
// in-flight deduplication: while a fetch for a key is outstanding, further
// callers for that key wait for its result instead of issuing their own.
//
// Entries are valid only while now - fetchedAt < TTL. Invalidate drops an
// entity's entries (or everything). A fetch that was already running when
// the invalidation happened still answers its callers but is not cached;
// callers arriving after the invalidation queue a fresh fetch that starts
// once the running one returns. At most one fetch per key is outstanding.
package metricscache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is used when New is given a non-positive TTL.
const DefaultTTL = 5 * time.Minute

var (
	lookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facecloud",
			Subsystem: "metrics_cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by cache name and result (hit or miss).",
		},
		[]string{"cache", "result"},
	)
	fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facecloud",
			Subsystem: "metrics_cache",
			Name:      "fetches_total",
			Help:      "Upstream fetches by cache name and outcome (ok or error).",
		},
		[]string{"cache", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(lookups, fetches)
}

// Key identifies a cache entry.
type Key struct {
	EntityID  string
	Timeframe string
}

func (k Key) flight() string { return k.EntityID + "\x00" + k.Timeframe }

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

// Cache holds values of type V. The zero value is not usable; call New.
type Cache[V any] struct {
	name  string
	ttl   time.Duration
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[Key]entry[V]
	// epochs advance on invalidation; fetches compare before caching.
	epochs map[string]uint64
	global uint64
	// running holds a channel per key whose fetch is executing, closed
	// when it returns.
	running map[Key]chan struct{}

	group singleflight.Group
}

// New returns an empty cache. name labels its Prometheus series. A nil
// clock uses real time.
func New[V any](name string, ttl time.Duration, clock clockwork.Clock) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache[V]{
		name:    name,
		ttl:     ttl,
		clock:   clock,
		entries: make(map[Key]entry[V]),
		epochs:  make(map[string]uint64),
		running: make(map[Key]chan struct{}),
	}
}

// TTL returns the entry lifetime.
func (c *Cache[V]) TTL() time.Duration { return c.ttl }

// Get returns the value for (entityID, timeframe) if present and fresh.
func (c *Cache[V]) Get(entityID, timeframe string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.getLocked(Key{entityID, timeframe})
	if ok {
		lookups.WithLabelValues(c.name, "hit").Inc()
	} else {
		lookups.WithLabelValues(c.name, "miss").Inc()
	}
	return v, ok
}

func (c *Cache[V]) getLocked(k Key) (V, bool) {
	e, ok := c.entries[k]
	if !ok {
		var zero V
		return zero, false
	}
	if c.clock.Since(e.fetchedAt) >= c.ttl {
		delete(c.entries, k)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores v with fetchedAt = now, replacing any previous entry.
func (c *Cache[V]) Set(entityID, timeframe string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[Key{entityID, timeframe}] = entry[V]{value: v, fetchedAt: c.clock.Now()}
}

// Invalidate removes the entries of the given entities, or every entry when
// called without arguments.
func (c *Cache[V]) Invalidate(entityIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(entityIDs) == 0 {
		c.global++
		clear(c.entries)
		for k := range c.running {
			c.group.Forget(k.flight())
		}
		return
	}
	drop := make(map[string]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		drop[id] = struct{}{}
		c.epochs[id]++
	}
	for k := range c.entries {
		if _, ok := drop[k.EntityID]; ok {
			delete(c.entries, k)
		}
	}
	// Later callers must not join a fetch that started before this point.
	for k := range c.running {
		if _, ok := drop[k.EntityID]; ok {
			c.group.Forget(k.flight())
		}
	}
}

func (c *Cache[V]) epochLocked(entityID string) uint64 {
	return c.global + c.epochs[entityID]
}

// GetOrFetch returns the cached value for (entityID, timeframe) or calls
// fetch to produce it. Concurrent callers for one key share a single call,
// and a call never starts while another for the same key is running.
// The fetch runs detached from the caller's cancellation so one caller
// giving up does not fail the others; ctx still bounds how long this caller
// waits.
func (c *Cache[V]) GetOrFetch(ctx context.Context, entityID, timeframe string, fetch func(context.Context) (V, error)) (V, error) {
	k := Key{entityID, timeframe}
	c.mu.Lock()
	if v, ok := c.getLocked(k); ok {
		c.mu.Unlock()
		lookups.WithLabelValues(c.name, "hit").Inc()
		return v, nil
	}
	c.mu.Unlock()
	lookups.WithLabelValues(c.name, "miss").Inc()

	fctx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(k.flight(), func() (any, error) {
		return c.fetchOnce(fctx, k, fetch)
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			var zero V
			return zero, r.Err
		}
		v, _ := r.Val.(V)
		return v, nil
	}
}

// fetchOnce runs fetch for k after any fetch still running for k returns.
// The result is cached only when no invalidation of the entity happened
// while it ran.
func (c *Cache[V]) fetchOnce(ctx context.Context, k Key, fetch func(context.Context) (V, error)) (V, error) {
	c.mu.Lock()
	for {
		if v, ok := c.getLocked(k); ok {
			c.mu.Unlock()
			return v, nil
		}
		prev, busy := c.running[k]
		if !busy {
			break
		}
		c.mu.Unlock()
		<-prev
		c.mu.Lock()
	}
	done := make(chan struct{})
	c.running[k] = done
	start := c.epochLocked(k.EntityID)
	c.mu.Unlock()

	v, err := fetch(ctx)

	c.mu.Lock()
	delete(c.running, k)
	close(done)
	if err == nil && c.epochLocked(k.EntityID) == start {
		c.entries[k] = entry[V]{value: v, fetchedAt: c.clock.Now()}
	}
	c.mu.Unlock()

	if err != nil {
		fetches.WithLabelValues(c.name, "error").Inc()
	} else {
		fetches.WithLabelValues(c.name, "ok").Inc()
	}
	return v, err
}

// Len reports the number of stored entries, stale ones included.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
