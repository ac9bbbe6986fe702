package cache

import (
	"context"
	"sync"
	"time"
)

type InMemoryCache struct {
	class      string
	generation int64
	mu         sync.RWMutex
	namespace  string
	segments   map[int64]map[string]memoryCacheEntry
	ttl        time.Duration
}

var _ Cache = (*InMemoryCache)(nil)

func (c *InMemoryCache) Class() string {
	return c.class
}

func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, seg := range c.segments {
		delete(seg, key)
	}
	return nil
}

func (c *InMemoryCache) Generation() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

func (c *InMemoryCache) Get(ctx context.Context, key string) (string, bool, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()

	if entry, found := c.segments[c.generation][key]; found && now.Before(entry.expiry) {
		return entry.value, true, true, nil
	}

	// at most one other segment survives a cycle
	for gen, seg := range c.segments {
		if gen == c.generation {
			continue
		}
		if entry, found := seg[key]; found && now.Before(entry.expiry) {
			return entry.value, true, false, nil
		}
	}

	return "", false, true, nil
}

func (c *InMemoryCache) Namespace() string {
	return c.namespace
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	seg := c.segments[c.generation]
	if seg == nil {
		seg = make(map[string]memoryCacheEntry)
		c.segments[c.generation] = seg
	}

	seg[key] = memoryCacheEntry{
		expiry: time.Now().Add(c.ttl),
		value:  value,
	}
	return nil
}

func (c *InMemoryCache) TTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ttl
}

func (c *InMemoryCache) cycle(generation int64, force bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.generation
	c.generation = generation
	now := time.Now()

	for g, seg := range c.segments {
		if g == generation || (!force && g == previous) {
			for key, entry := range seg {
				if now.After(entry.expiry) {
					delete(seg, key)
				}
			}
			continue
		}
		delete(c.segments, g)
	}
}

type InMemoryCacheManager struct {
	caches     map[string]*InMemoryCache
	generation int64
	mu         sync.RWMutex
	namespace  string
	ttl        time.Duration
}

var _ CacheManager = (*InMemoryCacheManager)(nil)

func (m *InMemoryCacheManager) Cycle(generation int64, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation = generation
	for _, c := range m.caches {
		c.cycle(generation, force)
	}
	return nil
}

func (m *InMemoryCacheManager) GetCache(class string, opts CacheOptions) Cache {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.caches[class]; ok {
		if opts.TTL != nil {
			c.mu.Lock()
			c.ttl = *opts.TTL
			c.mu.Unlock()
		}
		return c
	}

	ttl := m.ttl
	if opts.TTL != nil {
		ttl = *opts.TTL
	}
	c := &InMemoryCache{
		class:      class,
		generation: m.generation,
		namespace:  m.namespace,
		segments:   make(map[int64]map[string]memoryCacheEntry),
		ttl:        ttl,
	}
	m.caches[class] = c
	return c
}

type memoryCacheEntry struct {
	expiry time.Time
	value  string
}
