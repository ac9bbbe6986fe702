package feature

import (
	"context"
	"encoding/binary"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/go-logr/logr"
	"github.com/kdex-tech/kdex-gadgets/internal/cache"
)

// CacheClass is the cache class checksums are memoized under.
const CacheClass = "feature-checksum"

// Checksum folds the names and contents of resources into a hex token. The
// token only depends on the order of resources, so callers pass them sorted.
func Checksum(resources []Resource) string {
	d := xxhash.New()
	var size [8]byte
	for _, r := range resources {
		_, _ = d.WriteString(r.Name)
		_, _ = d.Write([]byte{0})
		binary.BigEndian.PutUint64(size[:], uint64(len(r.Content)))
		_, _ = d.Write(size[:])
		_, _ = d.Write(r.Content)
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

// Checksummer derives the bundle version token from a registry. Tokens of a
// VersionedRegistry are memoized per registry generation, so a mutation of the
// registry is never answered with a stale token.
type Checksummer struct {
	cache    cache.Cache
	log      logr.Logger
	registry Registry
}

func NewChecksummer(registry Registry, c cache.Cache, log logr.Logger) *Checksummer {
	return &Checksummer{
		cache:    c,
		log:      log,
		registry: registry,
	}
}

func (c *Checksummer) Checksum(ctx context.Context) (string, error) {
	versioned, ok := c.registry.(VersionedRegistry)
	if !ok || c.cache == nil {
		return Checksum(sorted(c.registry.AllFeatures())), nil
	}

	generation, resources := versioned.Snapshot()
	key := checksumKey(generation)

	value, found, _, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Error(err, "reading memoized checksum", "generation", generation)
	} else if found {
		return value, nil
	}

	value = Checksum(resources)
	c.log.V(1).Info("computed checksum",
		"generation", generation,
		"features", len(resources),
		"checksum", value,
		"cache", c.cache.Namespace()+":"+c.cache.Class(),
		"ttl", c.cache.TTL(),
	)

	// the cache has not been cycled to this generation yet
	if c.cache.Generation() != generation {
		return value, nil
	}

	if err := c.cache.Set(ctx, key, value); err != nil {
		c.log.Error(err, "memoizing checksum", "generation", generation)
	}
	if generation > 0 {
		if err := c.cache.Delete(ctx, checksumKey(generation-1)); err != nil {
			c.log.Error(err, "dropping previous checksum", "generation", generation-1)
		}
	}
	return value, nil
}

func checksumKey(generation int64) string {
	return "generation-" + strconv.FormatInt(generation, 10)
}
