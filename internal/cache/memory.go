package cache

import (
	"sync"
	"time"
)

type Item struct {
	Value      interface{}
	Expiration int64
}

func (i Item) expired(now int64) bool {
	return i.Expiration > 0 && now > i.Expiration
}

// MemoryCache is a map with per-key expiry. Expired entries are ignored on
// read and reclaimed by Sweep.
type MemoryCache struct {
	items map[string]Item
	mu    sync.RWMutex
	now   func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: make(map[string]Item),
		now:   time.Now,
	}
}

func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = Item{
		Value:      value,
		Expiration: c.now().Add(ttl).UnixNano(),
	}
}

func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, found := c.items[key]
	if !found || item.expired(c.now().UnixNano()) {
		return nil, false
	}
	return item.Value, true
}

// Incr adds one to the counter stored at key and returns the new value with
// the counter's expiry. A missing or expired counter starts at 1 and expires
// ttl from now; an existing one keeps its expiry.
func (c *MemoryCache) Incr(key string, ttl time.Duration) (int64, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	item, found := c.items[key]
	n, isCounter := item.Value.(int64)
	if !found || !isCounter || item.expired(now.UnixNano()) {
		item = Item{Value: int64(1), Expiration: now.Add(ttl).UnixNano()}
		c.items[key] = item
		return 1, time.Unix(0, item.Expiration)
	}
	n++
	item.Value = n
	c.items[key] = item
	return n, time.Unix(0, item.Expiration)
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Sweep drops expired entries and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()
	n := 0
	for k, item := range c.items {
		if item.expired(now) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
