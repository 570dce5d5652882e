// Package ttlcache provides a keyed TTL cache whose misses are computed at
// most once at a time per key. Only successful computations are stored.
package ttlcache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// ComputeFunc produces the value for a key. It runs detached from the
// cancellation of the caller that triggered it, so implementations must bound
// their own I/O.
type ComputeFunc[V any] func(ctx context.Context) (V, error)

// Cache is the capability the fetchers and the invalidation path depend on.
type Cache[V any] interface {
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc[V]) (Result[V], error)
	Refresh(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc[V]) (Result[V], error)
	Peek(key string) (Result[V], bool)
	Evict(key string) int
	EvictPrefix(prefix string) int
	EvictAll() int
}

// flight tracks one running computation. evicted is set when the key is
// evicted while the computation runs, which forbids storing its result.
type flight struct {
	evicted bool
}

// Store is the in-memory Cache implementation. Lookups take no lock of their
// own beyond the backing LRU; computations for different keys run in parallel.
type Store[V any] struct {
	opts  options
	store *lru.Cache[string, *Entry[V]]
	group singleflight.Group

	// mu orders result stores against evictions and guards flights.
	mu      sync.Mutex
	flights map[string]*flight

	hits, misses, computes, failures, staleHits, evictions atomic.Uint64

	stopOnce sync.Once
	stopChan chan struct{}
}

var _ Cache[any] = (*Store[any])(nil)

// New returns a ready Store. Call Stop when a cleanup interval was configured.
func New[V any](opts ...Option) *Store[V] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	// lru.New only fails for a non-positive size, which WithMaxEntries rejects.
	store, _ := lru.New[string, *Entry[V]](o.maxEntries)

	c := &Store[V]{
		opts:     o,
		store:    store,
		flights:  make(map[string]*flight),
		stopChan: make(chan struct{}),
	}
	c.startJanitor()
	return c
}

// GetOrCompute returns the fresh entry for key, or computes it. Concurrent
// callers for the same key share one computation. A failed computation is
// never stored; within the stale grace the previous success is returned
// instead of the error.
func (c *Store[V]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc[V]) (Result[V], error) {
	if e, ok := c.store.Get(key); ok && e.Fresh(c.opts.now()) {
		c.hits.Add(1)
		c.opts.observer.CacheHit(key)
		r := e.result()
		r.Hit = true
		return r, nil
	}
	c.misses.Add(1)
	c.opts.observer.CacheMiss(key)
	return c.load(ctx, key, ttl, compute)
}

// Refresh recomputes key even when a fresh entry exists. On failure the
// existing entry, if still servable, is returned marked Stale.
func (c *Store[V]) Refresh(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc[V]) (Result[V], error) {
	return c.load(ctx, key, ttl, compute)
}

// Peek returns the fresh entry for key without computing or touching recency.
func (c *Store[V]) Peek(key string) (Result[V], bool) {
	e, ok := c.store.Peek(key)
	if !ok || !e.Fresh(c.opts.now()) {
		return Result[V]{}, false
	}
	r := e.result()
	r.Hit = true
	return r, true
}

func (c *Store[V]) load(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc[V]) (Result[V], error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		e, err := c.run(ctx, key, ttl, compute)
		if err != nil {
			return nil, err
		}
		return e, nil
	})

	select {
	case <-ctx.Done():
		// The computation keeps running and will populate the cache.
		return Result[V]{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if e, ok := c.store.Peek(key); ok && e.servable(c.opts.now(), c.opts.staleGrace) {
				c.staleHits.Add(1)
				r := e.result()
				r.Stale = true
				r.Shared = res.Shared
				return r, nil
			}
			return Result[V]{}, res.Err
		}
		r := res.Val.(*Entry[V]).result()
		r.Shared = res.Shared
		return r, nil
	}
}

func (c *Store[V]) run(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc[V]) (*Entry[V], error) {
	f := c.beginFlight(key)
	defer c.endFlight(key, f)

	start := c.opts.now()
	value, err := safeCompute(context.WithoutCancel(ctx), key, compute)
	c.computes.Add(1)
	c.opts.observer.Computed(key, c.opts.now().Sub(start), err)
	if err != nil {
		c.failures.Add(1)
		return nil, err
	}

	e := &Entry[V]{Key: key, Value: value, ComputedAt: c.opts.now(), TTL: ttl}
	if ttl <= 0 {
		return e, nil
	}

	var pushedOut bool
	c.mu.Lock()
	if !f.evicted {
		pushedOut = c.store.Add(key, e)
	}
	c.mu.Unlock()
	if pushedOut {
		c.recordEviction(EvictReasonCapacity, 1)
	}
	return e, nil
}

func safeCompute[V any](ctx context.Context, key string, compute ComputeFunc[V]) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ttlcache: compute for %q panicked: %v", key, r)
		}
	}()
	return compute(ctx)
}

func (c *Store[V]) beginFlight(key string) *flight {
	f := &flight{}
	c.mu.Lock()
	c.flights[key] = f
	c.mu.Unlock()
	return f
}

func (c *Store[V]) endFlight(key string, f *flight) {
	c.mu.Lock()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
	c.mu.Unlock()
}

// abandonFlight must be called with mu held.
func (c *Store[V]) abandonFlight(key string) {
	if f, ok := c.flights[key]; ok {
		f.evicted = true
	}
	c.group.Forget(key)
}

// Evict removes key. A computation running for key will not store its result.
func (c *Store[V]) Evict(key string) int {
	c.mu.Lock()
	n := 0
	if c.store.Remove(key) {
		n = 1
	}
	c.abandonFlight(key)
	c.mu.Unlock()

	c.recordEviction(EvictReasonExplicit, n)
	return n
}

// EvictPrefix removes every key starting with prefix.
func (c *Store[V]) EvictPrefix(prefix string) int {
	c.mu.Lock()
	n := 0
	for _, k := range c.store.Keys() {
		if strings.HasPrefix(k, prefix) && c.store.Remove(k) {
			n++
		}
	}
	for k := range c.flights {
		if strings.HasPrefix(k, prefix) {
			c.abandonFlight(k)
		}
	}
	c.mu.Unlock()

	c.recordEviction(EvictReasonPrefix, n)
	return n
}

// EvictAll clears the cache.
func (c *Store[V]) EvictAll() int {
	c.mu.Lock()
	n := c.store.Len()
	c.store.Purge()
	for k := range c.flights {
		c.abandonFlight(k)
	}
	c.mu.Unlock()

	c.recordEviction(EvictReasonAll, n)
	return n
}

func (c *Store[V]) recordEviction(reason string, n int) {
	if n <= 0 {
		return
	}
	c.evictions.Add(uint64(n))
	c.opts.observer.CacheEvicted(reason, n)
}

// Stats returns a snapshot of the counters.
func (c *Store[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Computes:  c.computes.Load(),
		Failures:  c.failures.Load(),
		StaleHits: c.staleHits.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.store.Len(),
	}
}

// Entries lists the stored entries sorted by key.
func (c *Store[V]) Entries() []EntryInfo {
	now := c.opts.now()
	keys := c.store.Keys()
	out := make([]EntryInfo, 0, len(keys))
	for _, k := range keys {
		e, ok := c.store.Peek(k)
		if !ok {
			continue
		}
		out = append(out, EntryInfo{
			Key:        k,
			ComputedAt: e.ComputedAt,
			ExpiresAt:  e.ExpiresAt(),
			Fresh:      e.Fresh(now),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
