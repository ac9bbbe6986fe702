package cache

import (
	"context"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
)

type ValkeyCache struct {
	client     valkey.Client
	class      string
	generation int64
	mu         sync.RWMutex
	namespace  string
	prefix     string
	prevPrefix string
	ttl        time.Duration
}

var _ Cache = (*ValkeyCache)(nil)

func (s *ValkeyCache) Class() string {
	return s.class
}

func (s *ValkeyCache) Delete(ctx context.Context, key string) error {
	s.mu.RLock()
	keys := []string{s.prefix + key}
	if s.prevPrefix != "" {
		keys = append(keys, s.prevPrefix+key)
	}
	s.mu.RUnlock()

	cmd := s.client.B().Del().Key(keys...).Build()
	return s.client.Do(ctx, cmd).Error()
}

func (s *ValkeyCache) Generation() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *ValkeyCache) Get(ctx context.Context, key string) (string, bool, bool, error) {
	s.mu.RLock()
	curr := s.prefix
	prev := s.prevPrefix
	s.mu.RUnlock()

	val, found, err := s.getValue(ctx, curr+key)
	if err != nil || found {
		return val, found, true, err
	}

	if prev != "" {
		val, found, err := s.getValue(ctx, prev+key)
		if err != nil {
			return "", false, false, err
		}
		if found {
			return val, true, false, nil
		}
	}

	return "", false, true, nil
}

func (s *ValkeyCache) Namespace() string {
	return s.namespace
}

func (s *ValkeyCache) Set(ctx context.Context, key string, value string) error {
	s.mu.RLock()
	prefix := s.prefix
	ttl := s.ttl
	s.mu.RUnlock()

	cmd := s.client.B().Set().Key(prefix + key).Value(value).Px(ttl).Build()
	return s.client.Do(ctx, cmd).Error()
}

func (s *ValkeyCache) TTL() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ttl
}

func (s *ValkeyCache) getValue(ctx context.Context, fullKey string) (string, bool, error) {
	cmd := s.client.B().Get().Key(fullKey).Build()
	val, err := s.client.Do(ctx, cmd).ToString()
	if valkey.IsValkeyNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

type ValkeyCacheManager struct {
	caches     map[string]*ValkeyCache
	client     valkey.Client
	generation int64
	mu         sync.RWMutex
	namespace  string
	ttl        time.Duration
}

var _ CacheManager = (*ValkeyCacheManager)(nil)

// Cycle only moves key prefixes. Entries of dropped generations are left for
// valkey to expire.
func (m *ValkeyCacheManager) Cycle(generation int64, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation = generation

	for _, c := range m.caches {
		c.mu.Lock()
		if force {
			c.prevPrefix = ""
		} else if c.generation != generation {
			c.prevPrefix = c.prefix
		}
		c.generation = generation
		c.prefix = keyPrefix(m.namespace, c.class, generation)
		c.mu.Unlock()
	}
	return nil
}

func (m *ValkeyCacheManager) GetCache(class string, opts CacheOptions) Cache {
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
	c := &ValkeyCache{
		client:     m.client,
		class:      class,
		generation: m.generation,
		namespace:  m.namespace,
		prefix:     keyPrefix(m.namespace, class, m.generation),
		ttl:        ttl,
	}
	m.caches[class] = c
	return c
}
