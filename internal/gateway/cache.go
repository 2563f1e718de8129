package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// entry is a single cached value. Entries are kept past their primary TTL so
// the stale-fallback path can serve last-good data while a source is down;
// the janitor evicts them only after the stale bound.
type entry struct {
	value      interface{}
	expiresAt  time.Time // primary TTL boundary
	staleUntil time.Time // hard eviction boundary
}

// TTLCache is the gateway's hot tier: a thread-safe in-memory cache with
// per-entry TTL and a retained stale window.
type TTLCache struct {
	mu    sync.RWMutex
	items map[string]*entry
	stop  chan struct{}
	once  sync.Once
}

// NewTTLCache starts a cache whose janitor sweeps at the given interval.
func NewTTLCache(cleanupInterval time.Duration) *TTLCache {
	c := &TTLCache{
		items: make(map[string]*entry),
		stop:  make(chan struct{}),
	}
	go c.janitor(cleanupInterval)
	return c
}

// Set stores a value with its primary TTL and stale retention bound.
func (c *TTLCache) Set(key string, value interface{}, ttl, staleBound time.Duration) {
	now := time.Now()
	c.mu.Lock()
	c.items[key] = &entry{
		value:      value,
		expiresAt:  now.Add(ttl),
		staleUntil: now.Add(staleBound),
	}
	c.mu.Unlock()
}

// Get returns the cached value. fresh is false when the entry is past its
// primary TTL but still within the stale window.
func (c *TTLCache) Get(key string) (value interface{}, fresh bool, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, found := c.items[key]
	if !found {
		return nil, false, false
	}
	now := time.Now()
	if now.After(e.staleUntil) {
		return nil, false, false
	}
	return e.value, now.Before(e.expiresAt), true
}

// Delete removes a key.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len returns the number of retained entries, stale included.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Flush drops every entry past its stale bound and returns the count removed.
func (c *TTLCache) Flush() int {
	now := time.Now()
	removed := 0
	c.mu.Lock()
	for k, e := range c.items {
		if now.After(e.staleUntil) {
			delete(c.items, k)
			removed++
		}
	}
	c.mu.Unlock()
	return removed
}

// Close stops the janitor.
func (c *TTLCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *TTLCache) janitor(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Flush()
		case <-c.stop:
			return
		}
	}
}

// WarmTier is an optional Redis-backed second cache level behind the hot
// in-memory tier. Values are stored as JSON under the same fingerprint keys.
// A nil *WarmTier is a no-op.
type WarmTier struct {
	client redis.Cmdable
	prefix string
}

// NewWarmTier wraps a redis client. prefix namespaces keys per deployment.
func NewWarmTier(client redis.Cmdable, prefix string) *WarmTier {
	if client == nil {
		return nil
	}
	if prefix == "" {
		prefix = "arbscan"
	}
	return &WarmTier{client: client, prefix: prefix}
}

// Get unmarshals the warm-tier value for key into dst.
func (w *WarmTier) Get(ctx context.Context, key string, dst interface{}) bool {
	if w == nil {
		return false
	}
	b, err := w.client.Get(ctx, w.prefix+":"+key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(b, dst) == nil
}

// Set writes the value with the given TTL. Failures are ignored: the warm
// tier is an accelerator, never a source of truth.
func (w *WarmTier) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if w == nil {
		return
	}
	b, err := json.Marshal(value)
	if err != nil {
		return
	}
	w.client.Set(ctx, w.prefix+":"+key, b, ttl)
}
