package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/travel-insights-service/internal/aqi"
	"github.com/kjstillabower/travel-insights-service/internal/cache"
	"github.com/kjstillabower/travel-insights-service/internal/client"
	"github.com/kjstillabower/travel-insights-service/internal/models"
	"github.com/kjstillabower/travel-insights-service/internal/observability"
	"github.com/kjstillabower/travel-insights-service/internal/validation"
)

const (
	defaultCacheTTL     = 300 * time.Second
	defaultMaxCityLen   = 100
	maxForecastDays     = 5
	forecastDateLayout  = "2006-01-02"
	forecastLabelLayout = "Mon"
)

// WeatherConfig configures a WeatherService. Zero values take defaults.
type WeatherConfig struct {
	CacheTTL        time.Duration
	CacheType       string // metric label for the cache backend
	MockWeather     bool   // serve a fixed report when no weather provider is configured
	MaxCityLength   int
	CoalesceTimeout time.Duration // >0 enables request coalescing on cache misses
	Now             func() time.Time
	Logger          *zap.Logger
}

// WeatherService aggregates current conditions, air quality and a daily
// forecast for a city behind a cache.
type WeatherService struct {
	weather   client.WeatherProvider
	air       client.AirQualityProvider
	cache     cache.Cache
	cfg       WeatherConfig
	coalescer *requestCoalescer[models.WeatherReport]
}

// NewWeatherService wires the providers and cache. weather is nil when no API
// key is configured; air may be nil to skip air quality.
func NewWeatherService(weather client.WeatherProvider, air client.AirQualityProvider, c cache.Cache, cfg WeatherConfig) *WeatherService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.CacheType == "" {
		cfg.CacheType = cache.BackendInMemory
	}
	if cfg.MaxCityLength <= 0 {
		cfg.MaxCityLength = defaultMaxCityLen
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &WeatherService{weather: weather, air: air, cache: c, cfg: cfg}
	if cfg.CoalesceTimeout > 0 {
		s.coalescer = newRequestCoalescer[models.WeatherReport](cfg.CoalesceTimeout)
	}
	return s
}

// GetWeather returns the report for city, from cache when a live entry exists.
// Upstream failures come back as *client.UpstreamError (wrapped).
func (s *WeatherService) GetWeather(ctx context.Context, city string) (models.WeatherReport, error) {
	name, err := validation.ValidateCity(city, s.cfg.MaxCityLength)
	if err != nil {
		if errors.Is(err, validation.ErrCityEmpty) {
			return models.WeatherReport{}, ErrCityRequired
		}
		return models.WeatherReport{}, fmt.Errorf("%w: %v", ErrCityInvalid, err)
	}

	if s.weather == nil {
		if s.cfg.MockWeather {
			return mockReport(), nil
		}
		return models.WeatherReport{}, ErrMissingCredential
	}

	logger := observability.LoggerFrom(ctx, s.cfg.Logger)
	key := cache.Key(name)
	observability.RecordWeatherQuery(key)

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			observability.CacheErrorsTotal.WithLabelValues(s.cfg.CacheType, "get").Inc()
			logger.Warn("cache get failed", zap.String("city", key), zap.Error(err))
		case ok:
			observability.CacheHitsTotal.WithLabelValues(s.cfg.CacheType).Inc()
			logger.Debug("weather served", zap.String("city", key), zap.Bool("cached", true))
			return cached, nil
		default:
			observability.CacheMissesTotal.WithLabelValues(s.cfg.CacheType).Inc()
		}
	}

	start := time.Now()
	var report models.WeatherReport
	if s.coalescer != nil {
		var shared bool
		report, shared, err = s.coalescer.Do(ctx, key, func(ctx context.Context) (models.WeatherReport, error) {
			return s.aggregate(ctx, name)
		})
		if shared {
			logger.Debug("joined in-flight weather fetch", zap.String("city", key))
		}
	} else {
		report, err = s.aggregate(ctx, name)
	}
	if err != nil {
		return models.WeatherReport{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, report, s.cfg.CacheTTL); err != nil {
			observability.CacheErrorsTotal.WithLabelValues(s.cfg.CacheType, "set").Inc()
			logger.Warn("cache set failed", zap.String("city", key), zap.Error(err))
		}
	}
	logger.Debug("weather served",
		zap.String("city", key),
		zap.Bool("cached", false),
		zap.Duration("duration", time.Since(start)))
	return report, nil
}

// aggregate performs one upstream round: current conditions, then air
// quality and forecast in parallel.
func (s *WeatherService) aggregate(ctx context.Context, city string) (models.WeatherReport, error) {
	logger := observability.LoggerFrom(ctx, s.cfg.Logger)

	cur, err := s.weather.CurrentConditions(ctx, city)
	if err != nil {
		return models.WeatherReport{}, fmt.Errorf("current conditions for %s: %w", city, err)
	}

	current := models.CurrentConditions{
		Temp:      cur.Temp,
		Humidity:  cur.Humidity,
		Wind:      cur.Wind,
		Condition: cur.Condition,
		Sunrise:   cur.Sunrise,
		Sunset:    cur.Sunset,
		Timezone:  cur.Timezone,
		LocalDT:   cur.LocalDT,
	}

	var (
		wg     sync.WaitGroup
		air    client.AirQuality
		airErr error
	)
	if cur.Coord != nil && s.air != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			air, airErr = s.air.AirQuality(ctx, cur.Coord.Lat, cur.Coord.Lon)
		}()
	}
	samples, forecastErr := s.weather.Forecast(ctx, city)
	wg.Wait()

	if airErr != nil {
		logger.Warn("air quality unavailable",
			zap.String("city", city),
			zap.String("category", string(client.CategorizeError(airErr))),
			zap.Error(airErr))
	} else {
		current.AQI = air.EuropeanAQI
		current.PM25 = air.PM25
		current.PM10 = air.PM10
		current.USAQI = aqi.USAQI(air.PM25, air.PM10)
	}
	if forecastErr != nil {
		return models.WeatherReport{}, fmt.Errorf("forecast for %s: %w", city, forecastErr)
	}

	return models.WeatherReport{
		Current:  current,
		Forecast: aggregateForecast(samples, s.cfg.Now()),
	}, nil
}

type dayBucket struct {
	date       string
	sum        float64
	n          int
	counts     map[string]int
	conditions []string // first-seen order
}

// aggregateForecast reduces 3-hourly samples to at most five calendar days
// (UTC), excluding today, in chronological order. Each day carries the mean
// temperature to two decimals and the most frequent condition; ties go to the
// condition seen first.
func aggregateForecast(samples []client.ForecastSample, now time.Time) []models.ForecastDay {
	today := now.UTC().Format(forecastDateLayout)
	buckets := make(map[string]*dayBucket)
	for _, smp := range samples {
		date := smp.Time.UTC().Format(forecastDateLayout)
		if date == today {
			continue
		}
		b, ok := buckets[date]
		if !ok {
			b = &dayBucket{date: date, counts: make(map[string]int)}
			buckets[date] = b
		}
		b.sum += smp.Temp
		b.n++
		if smp.Condition == "" {
			continue
		}
		if b.counts[smp.Condition] == 0 {
			b.conditions = append(b.conditions, smp.Condition)
		}
		b.counts[smp.Condition]++
	}

	dates := make([]string, 0, len(buckets))
	for d := range buckets {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	if len(dates) > maxForecastDays {
		dates = dates[:maxForecastDays]
	}

	days := make([]models.ForecastDay, 0, len(dates))
	for _, d := range dates {
		b := buckets[d]
		t, _ := time.Parse(forecastDateLayout, d)
		days = append(days, models.ForecastDay{
			Day:       t.Format(forecastLabelLayout),
			Temp:      math.Round(b.sum/float64(b.n)*100) / 100,
			Condition: b.modalCondition(),
		})
	}
	return days
}

func (b *dayBucket) modalCondition() string {
	best, bestCount := "", 0
	for _, c := range b.conditions {
		if b.counts[c] > bestCount {
			best, bestCount = c, b.counts[c]
		}
	}
	return best
}

// mockReport is served in mock mode when no weather key is configured.
func mockReport() models.WeatherReport {
	return models.WeatherReport{
		Current: models.CurrentConditions{Temp: 22.5, Humidity: 55, Wind: 3.5, Condition: "Clear"},
		Forecast: []models.ForecastDay{
			{Day: "Wed", Temp: 23, Condition: "Clear"},
			{Day: "Thu", Temp: 21, Condition: "Clouds"},
			{Day: "Fri", Temp: 19, Condition: "Rain"},
		},
	}
}
