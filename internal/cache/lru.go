package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a bounded, least-recently-used map. Entries may carry a TTL; a
// zero TTL keeps them until evicted by capacity.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[K]*list.Element
	order    *list.List
	nowFn    func() time.Time
	onHit    func()
	onMiss   func()

	hits   int64
	misses int64
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// Option configures an LRU.
type Option func(*options)

type options struct {
	now    func() time.Time
	onHit  func()
	onMiss func()
}

// WithClock overrides the time source used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithHitMissHooks registers callbacks invoked on every lookup, typically
// Prometheus counter increments.
func WithHitMissHooks(onHit, onMiss func()) Option {
	return func(o *options) {
		o.onHit = onHit
		o.onMiss = onMiss
	}
}

// NewLRU creates a cache holding at most capacity entries. capacity < 1 is
// treated as 1.
func NewLRU[K comparable, V any](capacity int, ttl time.Duration, opts ...Option) *LRU[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[K, V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
		nowFn:    o.now,
		onHit:    o.onHit,
		onMiss:   o.onMiss,
	}
}

// Get returns the cached value and true when present and not expired.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	v, ok := c.getLocked(key)
	c.mu.Unlock()

	c.record(ok)
	return v, ok
}

// GetMany splits keys into the values already cached and the keys that
// still need loading. Order of missing follows keys.
func (c *LRU[K, V]) GetMany(keys []K) (found map[K]V, missing []K) {
	found = make(map[K]V, len(keys))
	c.mu.Lock()
	hits := 0
	for _, k := range keys {
		if _, dup := found[k]; dup {
			continue
		}
		if v, ok := c.getLocked(k); ok {
			found[k] = v
			hits++
			continue
		}
		missing = append(missing, k)
	}
	c.mu.Unlock()

	for i := 0; i < hits; i++ {
		c.record(true)
	}
	for range missing {
		c.record(false)
	}
	return found, missing
}

// Put adds or replaces a value.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		e := elem.Value.(*entry[K, V])
		e.value = value
		e.expiresAt = c.expiry()
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{
		key:       key,
		value:     value,
		expiresAt: c.expiry(),
	})
}

// Len returns the number of stored entries, expired ones included until
// they are touched or evicted.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns cumulative hit and miss counts.
func (c *LRU[K, V]) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *LRU[K, V]) getLocked(key K) (V, bool) {
	var zero V
	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	e := elem.Value.(*entry[K, V])
	if !e.expiresAt.IsZero() && c.nowFn().After(e.expiresAt) {
		c.removeElement(elem)
		c.misses++
		return zero, false
	}
	c.order.MoveToFront(elem)
	c.hits++
	return e.value, true
}

func (c *LRU[K, V]) record(hit bool) {
	switch {
	case hit && c.onHit != nil:
		c.onHit()
	case !hit && c.onMiss != nil:
		c.onMiss()
	}
}

func (c *LRU[K, V]) expiry() time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return c.nowFn().Add(c.ttl)
}

func (c *LRU[K, V]) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry[K, V]).key)
}
