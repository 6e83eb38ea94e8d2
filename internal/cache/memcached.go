package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/travel-insights-service/internal/models"
)

// maxRelativeExpiry is memcached's limit for a relative expiration in seconds;
// larger values are read as unix timestamps.
const maxRelativeExpiry = 30 * 24 * 60 * 60

// maxKeyLen is memcached's key length limit in bytes.
const maxKeyLen = 250

// MemcachedCache stores reports as JSON in memcached.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache connects to a comma-separated server list
// ("localhost:11211" when empty). Zero timeout or maxIdleConns keep the
// client defaults.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) *MemcachedCache {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}
}

// Get implements Cache.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.WeatherReport, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.WeatherReport{}, false, err
	}
	item, err := c.client.Get(memcachedKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return models.WeatherReport{}, false, nil
	}
	if err != nil {
		return models.WeatherReport{}, false, fmt.Errorf("memcached get: %w", err)
	}
	v, err := decodeReport(item.Value)
	if err != nil {
		return models.WeatherReport{}, false, err
	}
	return v, true, nil
}

// Set implements Cache. ttl is rounded up to whole seconds.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.WeatherReport, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := encodeReport(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(&memcache.Item{
		Key:        memcachedKey(key),
		Value:      raw,
		Expiration: expirySeconds(ttl),
	}); err != nil {
		return fmt.Errorf("memcached set: %w", err)
	}
	return nil
}

// memcachedKey maps a cache key onto memcached's key alphabet, which rejects
// spaces and control characters. Escaped keys longer than the limit are hashed.
func memcachedKey(key string) string {
	k := keyPrefix + url.QueryEscape(key)
	if len(k) <= maxKeyLen {
		return k
	}
	sum := sha256.Sum256([]byte(key))
	return keyPrefix + "sha256:" + hex.EncodeToString(sum[:])
}

func expirySeconds(ttl time.Duration) int32 {
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	if secs > maxRelativeExpiry {
		secs = maxRelativeExpiry
	}
	return int32(secs)
}

// Ping checks that every server is reachable.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close releases idle connections.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
