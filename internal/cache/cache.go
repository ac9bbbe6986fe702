package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"
)

// Cache is a generation aware key/value store. Entries written during the
// previous generation stay readable until the next cycle, Get reports them as
// not current.
type Cache interface {
	Class() string
	Delete(ctx context.Context, key string) error
	Generation() int64
	Get(ctx context.Context, key string) (value string, found bool, current bool, err error)
	Namespace() string
	Set(ctx context.Context, key string, value string) error
	TTL() time.Duration
}

type CacheOptions struct {
	TTL *time.Duration
}

type CacheManager interface {
	// Cycle moves every cache to generation. With force the previous
	// generation is dropped instead of being kept as a fallback.
	Cycle(generation int64, force bool) error
	GetCache(class string, opts CacheOptions) Cache
}

// NewCacheManager returns a valkey backed manager when addr is set and an in
// process one otherwise. Keys of every cache are scoped by namespace.
func NewCacheManager(addr, namespace string, ttl *time.Duration) (CacheManager, error) {
	if ttl == nil {
		ttl = new(24 * time.Hour)
	}

	if addr == "" {
		return &InMemoryCacheManager{
			caches:    make(map[string]*InMemoryCache),
			namespace: namespace,
			ttl:       *ttl,
		}, nil
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		DisableCache: strings.Contains(addr, "127.0.0.1") || strings.Contains(addr, "localhost"),
		InitAddress:  []string{addr},
	})
	if err != nil {
		return nil, err
	}
	return &ValkeyCacheManager{
		caches:    make(map[string]*ValkeyCache),
		client:    client,
		namespace: namespace,
		ttl:       *ttl,
	}, nil
}

func keyPrefix(namespace, class string, generation int64) string {
	return "{" + namespace + ":" + class + ":" + strconv.FormatInt(generation, 10) + "}:"
}
