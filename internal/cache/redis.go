package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kjstillabower/travel-insights-service/internal/models"
)

// RedisCache stores reports as JSON strings with a Redis-side TTL.
type RedisCache struct {
	client *redis.Client
}

// RedisOptions configures NewRedisCache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

// NewRedisCache creates a client for opts.Addr ("localhost:6379" when empty).
// The connection is established lazily.
func NewRedisCache(opts RedisOptions) *RedisCache {
	addr := opts.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	ro := &redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
	if opts.Timeout > 0 {
		ro.DialTimeout = opts.Timeout
		ro.ReadTimeout = opts.Timeout
		ro.WriteTimeout = opts.Timeout
	}
	return &RedisCache{client: redis.NewClient(ro)}
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (models.WeatherReport, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.WeatherReport{}, false, nil
	}
	if err != nil {
		return models.WeatherReport{}, false, fmt.Errorf("redis get: %w", err)
	}
	v, err := decodeReport(raw)
	if err != nil {
		return models.WeatherReport{}, false, err
	}
	return v, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, value models.WeatherReport, ttl time.Duration) error {
	raw, err := encodeReport(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := c.client.Set(ctx, keyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks that the server answers.
func (c *RedisCache) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

// Close closes the client's connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
