// Package cache stores aggregated weather reports for a bounded time. All
// backends are safe for concurrent use and keyed by Key(city).
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kjstillabower/travel-insights-service/internal/models"
)

// Backend names accepted by configuration.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

const keyPrefix = "weather:"

// Cache is the weather report cache. Get reports a miss as (zero, false, nil);
// an error means the backend itself failed.
type Cache interface {
	Get(ctx context.Context, key string) (models.WeatherReport, bool, error)
	Set(ctx context.Context, key string, value models.WeatherReport, ttl time.Duration) error
}

// Key normalizes a city name into a cache key.
func Key(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

// InMemoryCache is a map with per-entry expiry. Expired entries are dropped
// lazily on Get.
type InMemoryCache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
	now  func() time.Time
}

type cacheEntry struct {
	value     models.WeatherReport
	expiresAt time.Time
}

// Option configures an InMemoryCache.
type Option func(*InMemoryCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *InMemoryCache) { c.now = now }
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache(opts ...Option) *InMemoryCache {
	c := &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the live entry for key.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.WeatherReport, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return models.WeatherReport{}, false, nil
	}

	now := c.now()
	if now.Before(entry.expiresAt) {
		return entry.value, true, nil
	}

	c.mu.Lock()
	// A concurrent Set may have refreshed the entry since the read.
	if cur, ok := c.data[key]; ok && !now.Before(cur.expiresAt) {
		delete(c.data, key)
	}
	c.mu.Unlock()
	return models.WeatherReport{}, false, nil
}

// Set stores value until ttl elapses, replacing any existing entry.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.WeatherReport, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func encodeReport(v models.WeatherReport) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	return raw, nil
}

func decodeReport(raw []byte) (models.WeatherReport, error) {
	var v models.WeatherReport
	if err := json.Unmarshal(raw, &v); err != nil {
		return models.WeatherReport{}, fmt.Errorf("decode cache entry: %w", err)
	}
	return v, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
