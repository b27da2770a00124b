// Package cache provides the bounded in-process memoization used by the
// retrieval pipeline: embeddings, raw search results and final responses,
// each in its own tenant-scoped instance.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

type entry[V any] struct {
	key      string
	value    V
	storedAt time.Time
	hits     int
}

// Cache is a strict LRU with lazy TTL expiry. A Get hit moves the entry to
// the most-recently-used position; Set at capacity evicts the single
// least-recently-touched entry. Expiry is only checked on read; there is no
// background sweep.
//
// Concurrent Sets on the same key are last-write-wins. That can cause
// redundant upstream calls under races but never corrupts state.
type Cache[V any] struct {
	name    string
	maxSize int
	ttl     time.Duration

	mu    sync.Mutex
	order *list.List
	items map[string]*list.Element

	now func() time.Time
}

type Stats struct {
	Name    string  `json:"name"`
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	HitRate float64 `json:"hit_rate"`
}

func New[V any](name string, maxSize int, ttl time.Duration) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 128
	}
	return &Cache[V]{
		name:    name,
		maxSize: maxSize,
		ttl:     ttl,
		order:   list.New(),
		items:   make(map[string]*list.Element, maxSize),
		now:     time.Now,
	}
}

// Get returns the cached value and whether it was present and fresh. An
// expired entry is removed and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	ent := el.Value.(*entry[V])
	if c.expired(ent) {
		c.removeLocked(el)
		return zero, false
	}
	ent.hits++
	c.order.MoveToBack(el)
	return ent.value, true
}

// Set stores the value, replacing any existing entry for the key. TTLs of
// unrelated entries are not touched.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry[V])
		ent.value = value
		ent.storedAt = c.now()
		c.order.MoveToBack(el)
		return
	}
	if c.order.Len() >= c.maxSize {
		if oldest := c.order.Front(); oldest != nil {
			c.removeLocked(oldest)
		}
	}
	c.items[key] = c.order.PushBack(&entry[V]{
		key:      key,
		value:    value,
		storedAt: c.now(),
	})
}

// Has reports whether the key is resident and fresh without touching the LRU
// order. An expired entry is removed.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	if c.expired(el.Value.(*entry[V])) {
		c.removeLocked(el)
		return false
	}
	return true
}

func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element, c.maxSize)
}

// Stats reports size and the resident hit rate: the sum of per-entry hit
// counters divided by the current entry count. Evicted entries take their
// hit history with them, so this undercounts the true lifetime hit rate;
// that approximation is deliberate and kept from the original behavior.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	totalHits := 0
	for _, el := range c.items {
		totalHits += el.Value.(*entry[V]).hits
	}
	rate := 0.0
	if len(c.items) > 0 {
		rate = float64(totalHits) / float64(len(c.items))
	}
	return Stats{
		Name:    c.name,
		Size:    len(c.items),
		MaxSize: c.maxSize,
		HitRate: rate,
	}
}

func (c *Cache[V]) expired(ent *entry[V]) bool {
	return c.ttl > 0 && c.now().Sub(ent.storedAt) >= c.ttl
}

func (c *Cache[V]) removeLocked(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[V]).key)
}

// Key builds the tenant-scoped composite cache key. The query text is
// normalized so trivially different phrasings of the same question share an
// entry, and the workspace/bot prefix prevents cross-tenant reads.
func Key(workspaceID, botID, query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return workspaceID + ":" + botID + ":" + normalized
}
