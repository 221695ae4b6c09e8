package sellers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	defaultCacheTTL    = 10 * time.Minute
	defaultCachePrefix = "marketplace:seller:"
)

// CachedDirectory is a Redis read-through cache in front of a Directory.
// Seller details change rarely and are read on every checkout. Redis errors
// never fail a lookup; they fall through to the backing directory.
type CachedDirectory struct {
	next   Directory
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// CacheOption customises a CachedDirectory.
type CacheOption func(*CachedDirectory)

// WithTTL sets how long a seller stays cached.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *CachedDirectory) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithPrefix sets the Redis key prefix.
func WithPrefix(prefix string) CacheOption {
	return func(c *CachedDirectory) { c.prefix = prefix }
}

// NewCachedDirectory wraps next with a Redis cache.
func NewCachedDirectory(next Directory, client *redis.Client, opts ...CacheOption) *CachedDirectory {
	c := &CachedDirectory{
		next:   next,
		client: client,
		ttl:    defaultCacheTTL,
		prefix: defaultCachePrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FindByID serves from Redis when possible and populates it on a miss.
// Unknown stores are not cached.
func (c *CachedDirectory) FindByID(ctx context.Context, storeID string) (*Seller, error) {
	key := c.prefix + storeID

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var seller Seller
		if jerr := json.Unmarshal(raw, &seller); jerr == nil {
			return &seller, nil
		}
		log.Printf("[sellers] dropping corrupt cache entry key=%s", key)
		c.client.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		log.Printf("[sellers] cache read failed key=%s err=%v", key, err)
	}

	seller, err := c.next.FindByID(ctx, storeID)
	if err != nil || seller == nil {
		return seller, err
	}

	if data, jerr := json.Marshal(seller); jerr == nil {
		if serr := c.client.Set(ctx, key, data, c.ttl).Err(); serr != nil {
			log.Printf("[sellers] cache write failed key=%s err=%v", key, serr)
		}
	}
	return seller, nil
}

// Invalidate drops a cached seller, used when seller details change.
func (c *CachedDirectory) Invalidate(ctx context.Context, storeID string) error {
	return c.client.Del(ctx, c.prefix+storeID).Err()
}
