package cache

import (
	"context"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	"golang.org/x/sync/singleflight"
)

// DatasetKey is the single key the dashboard dataset lives under.
const DatasetKey = "dataset"

// LoadFunc produces the value for key on a cache miss.
type LoadFunc[V any] func(ctx context.Context, key string) (V, error)

// Entry is a cached value together with the time it was loaded.
type Entry[V any] struct {
	Value    V
	LoadedAt time.Time
}

// Cache is a thread-safe TTL cache. Concurrent misses for the same key share
// one LoadFunc call; failed loads are not cached.
type Cache[V any] struct {
	mu    sync.RWMutex
	data  map[string]*Entry[V]
	gen   map[string]uint64 // bumped by Invalidate
	ttl   time.Duration
	load  LoadFunc[V]
	group singleflight.Group
	now   func() time.Time // injectable for deterministic tests
}

// New creates a Cache. A ttl of zero keeps entries until invalidated.
func New[V any](ttl time.Duration, load LoadFunc[V]) *Cache[V] {
	return &Cache[V]{
		data: make(map[string]*Entry[V]),
		gen:  make(map[string]uint64),
		ttl:  ttl,
		load: load,
		now:  time.Now,
	}
}

func (c *Cache[V]) fresh(e *Entry[V], now time.Time) bool {
	return c.ttl == 0 || now.Sub(e.LoadedAt) < c.ttl
}

// Peek returns the entry for key if it is present and fresh, without loading.
func (c *Cache[V]) Peek(key string) (*Entry[V], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.data[key]
	if !ok || !c.fresh(e, c.now()) {
		return nil, false
	}
	return e, true
}

// Get returns the fresh value for key, loading it on a miss.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, error) {
	if e, ok := c.Peek(key); ok {
		return e.Value, nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		// Another caller may have finished loading while we waited.
		if e, ok := c.Peek(key); ok {
			return e.Value, nil
		}
		c.mu.RLock()
		gen := c.gen[key]
		c.mu.RUnlock()

		// Loads outlive the caller that started them.
		val, err := c.load(context.WithoutCancel(ctx), key)
		if err != nil {
			return val, err
		}
		c.mu.Lock()
		if c.gen[key] == gen {
			c.data[key] = &Entry[V]{Value: val, LoadedAt: c.now()}
		}
		c.mu.Unlock()
		return val, nil
	})
	if shared {
		log.Debugf("cache: shared load for %q", key)
	}
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Invalidate drops key so the next Get reloads it. A load already in
// flight for key still answers its callers but is not stored.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.gen[key]++
	c.mu.Unlock()
	c.group.Forget(key)
}

// Evict removes entries older than the TTL and returns how many were removed.
func (c *Cache[V]) Evict(now time.Time) int {
	if c.ttl == 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.data {
		if !c.fresh(e, now) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

// Run evicts stale entries every half TTL (minimum 1 second) until ctx is
// cancelled.
func (c *Cache[V]) Run(ctx context.Context) {
	if c.ttl == 0 {
		<-ctx.Done()
		return
	}
	interval := c.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := c.Evict(now); n > 0 {
				log.Debugf("cache: evicted %d stale entries", n)
			}
		}
	}
}
