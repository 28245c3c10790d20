package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/simaogato/tldpricing-backend/internal/domain"
)

// KeyPrefix namespaces derived price entries
const KeyPrefix = "pricing:derived:"

// Connect builds a client from a redis:// URL or a bare host:port
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisPriceCache stores the last derived set per extension as JSON
type RedisPriceCache struct {
	client redis.Cmdable
	ttl    time.Duration
	clock  clockwork.Clock
}

// NewRedisPriceCache creates a new Redis backed DerivedPriceCache. A zero ttl keeps entries forever.
func NewRedisPriceCache(client redis.Cmdable, ttl time.Duration, clock clockwork.Clock) *RedisPriceCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisPriceCache{client: client, ttl: ttl, clock: clock}
}

// Put stores the derived set, replacing any previous value
func (c *RedisPriceCache) Put(ctx context.Context, extension string, set *domain.DerivedPriceSet) error {
	if set == nil {
		return fmt.Errorf("nil derived set for %s", extension)
	}

	raw, err := json.Marshal(domain.CachedPriceSet{Set: *set, CachedAt: c.clock.Now().UTC().Truncate(time.Second)})
	if err != nil {
		return fmt.Errorf("failed to encode derived prices: %w", err)
	}
	if err := c.client.Set(ctx, KeyPrefix+extension, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache derived prices: %w", err)
	}
	return nil
}

// Get returns nil without error when nothing is cached for the extension
func (c *RedisPriceCache) Get(ctx context.Context, extension string) (*domain.CachedPriceSet, error) {
	raw, err := c.client.Get(ctx, KeyPrefix+extension).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached prices: %w", err)
	}

	var out domain.CachedPriceSet
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode cached prices: %w", err)
	}
	return &out, nil
}
