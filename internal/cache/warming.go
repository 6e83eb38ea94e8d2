package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/travel-insights-service/internal/models"
)

// WeatherFetcher fetches (and thereby caches) a city's report. The service
// layer implements it; the interface avoids an import cycle.
type WeatherFetcher interface {
	GetWeather(ctx context.Context, city string) (models.WeatherReport, error)
}

// CacheWarmer prefetches reports for a fixed list of cities.
type CacheWarmer struct {
	fetcher WeatherFetcher
	logger  *zap.Logger
}

// NewCacheWarmer returns a warmer. logger may be nil.
func NewCacheWarmer(fetcher WeatherFetcher, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger}
}

// Warm fetches every city concurrently. It returns the joined per-city errors.
func (w *CacheWarmer) Warm(ctx context.Context, cities []string) error {
	if len(cities) == 0 {
		return nil
	}
	start := time.Now()
	w.logger.Info("warming cache", zap.Int("cities", len(cities)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, city := range cities {
		wg.Add(1)
		go func(city string) {
			defer wg.Done()
			if _, err := w.fetcher.GetWeather(ctx, city); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", city, err))
				mu.Unlock()
			}
		}(city)
	}
	wg.Wait()

	w.logger.Info("cache warming complete",
		zap.Int("cities", len(cities)),
		zap.Int("errors", len(errs)),
		zap.Duration("duration", time.Since(start)))
	return errors.Join(errs...)
}

// WarmPeriodic warms once, then again every interval until ctx is done.
// Failures are logged, not returned.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, cities []string, interval time.Duration) {
	if err := w.Warm(ctx, cities); err != nil {
		w.logger.Warn("cache warm failed", zap.Error(err))
	}
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Warm(ctx, cities); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
