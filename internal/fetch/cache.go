package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nsemarket-backend/internal/components/assert"
	"nsemarket-backend/internal/components/telemetry"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
)

const report_cache = "cache"

// Cache stores fetched bodies by url.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to redis and pings it once.
func NewRedisCache(ctx context.Context, opts RedisOptions) (RedisCache, error) {
	assert.NotEmptyStr(opts.Addr, "redis address")

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return RedisCache{}, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return RedisCache{client: client}, nil
}

func (c RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (c RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c RedisCache) Close() error {
	return c.client.Close()
}

// MemoryCache is an in-process Cache, entries expire after their ttl.
type MemoryCache struct {
	cache *gocache.Cache
}

func NewMemoryCache(defaultTTL time.Duration) MemoryCache {
	return MemoryCache{cache: gocache.New(defaultTTL, defaultTTL*2)}
}

func (c MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	value, ok := c.cache.Get(key)
	if !ok {
		return "", false, nil
	}
	body, ok := value.(string)
	return body, ok, nil
}

func (c MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.cache.Set(key, value, ttl)
	return nil
}

// CachedFetcher serves repeated urls from a Cache. Cache failures are
// reported and otherwise ignored, the inner fetcher is the source of truth.
type CachedFetcher struct {
	inner Fetcher
	cache Cache
	ttl   time.Duration
	tel   telemetry.API
}

func NewCachedFetcher(inner Fetcher, cache Cache, ttl time.Duration, tel telemetry.API) CachedFetcher {
	return CachedFetcher{
		inner: inner,
		cache: cache,
		ttl:   ttl,
		tel:   telemetry.NewScopedAPI("fetch", tel),
	}
}

func cacheKey(url string) string {
	return "nse:fetch:" + url
}

func (c CachedFetcher) Fetch(ctx context.Context, url string) (string, error) {
	key := cacheKey(url)

	body, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.tel.ReportWarning(report_cache, fmt.Errorf("get %s: %w", url, err))
	}
	if ok {
		c.tel.ReportDebug("cache hit", url)
		return body, nil
	}

	body, err = c.inner.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, body, c.ttl); err != nil {
		c.tel.ReportWarning(report_cache, fmt.Errorf("set %s: %w", url, err))
	}
	return body, nil
}
