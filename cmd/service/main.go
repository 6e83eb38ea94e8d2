package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/travel-insights-service/internal/cache"
	"github.com/kjstillabower/travel-insights-service/internal/circuitbreaker"
	"github.com/kjstillabower/travel-insights-service/internal/client"
	"github.com/kjstillabower/travel-insights-service/internal/config"
	httphandler "github.com/kjstillabower/travel-insights-service/internal/http"
	"github.com/kjstillabower/travel-insights-service/internal/lifecycle"
	"github.com/kjstillabower/travel-insights-service/internal/llm"
	"github.com/kjstillabower/travel-insights-service/internal/observability"
	"github.com/kjstillabower/travel-insights-service/internal/service"
	"github.com/kjstillabower/travel-insights-service/internal/traffic"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app is the wired service: everything main starts and later drains.
type app struct {
	server   *http.Server
	weather  *service.WeatherService
	inflight *httphandler.InFlightTracker
	state    *lifecycle.State
	closers  []func() error
	cfg      *config.Config
	logger   *zap.Logger
}

func main() {
	// .env is a local convenience; real deployments set the environment.
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn(".env not loaded", zap.Error(envErr))
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.warm(ctx)

	go func() {
		logger.Info("server starting", zap.String("addr", a.server.Addr), zap.String("version", version))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()
	a.shutdown()
}

// newApp builds clients, caches, services and the router from cfg.
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		inflight: &httphandler.InFlightTracker{},
		state:    lifecycle.New(nil),
		cfg:      cfg,
		logger:   logger,
	}

	cacheSvc, cachePing, err := a.newCache()
	if err != nil {
		return nil, err
	}

	var weatherProvider client.WeatherProvider
	if cfg.WeatherAPIKey != "" {
		owm, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
		if err != nil {
			return nil, fmt.Errorf("weather client: %w", err)
		}
		weatherProvider = owm
	} else if cfg.MockWeather {
		logger.Warn("no weather API key; serving mock weather (DEV_MOCK_WEATHER)")
	} else {
		logger.Warn("no weather API key; /api/weather will answer 500 until WEATHER_API_KEY or OWM_KEY is set")
	}
	var airProvider client.AirQualityProvider
	if cfg.AirQualityEnabled {
		airProvider = client.NewOpenMeteoClient(cfg.AirQualityURL, cfg.WeatherAPITimeout)
	}

	coalesceTimeout := time.Duration(0)
	if cfg.CoalesceEnabled {
		coalesceTimeout = cfg.CoalesceTimeout
	}
	a.weather = service.NewWeatherService(weatherProvider, airProvider, cacheSvc, service.WeatherConfig{
		CacheTTL:        cfg.CacheTTL,
		CacheType:       cfg.CacheBackend,
		MockWeather:     cfg.MockWeather,
		MaxCityLength:   cfg.MaxCityLength,
		CoalesceTimeout: coalesceTimeout,
		Logger:          logger,
	})

	var breaker *circuitbreaker.CircuitBreaker
	if cfg.CircuitBreakerEnabled && cfg.LLMAPIKey != "" {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "llm",
			IsFailure:        llm.IsUnavailable,
			OnStateChange: func(component string, from, to circuitbreaker.State) {
				observability.CircuitBreakerState.WithLabelValues(component).Set(float64(to))
				logger.Warn("circuit breaker state change",
					zap.String("component", component),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		observability.CircuitBreakerState.WithLabelValues("llm").Set(float64(circuitbreaker.StateClosed))
	}
	llmClient, err := llm.NewClient(llm.Config{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.LLMAPIKey,
		BaseURL:  cfg.LLMAPIURL,
		Model:    cfg.LLMModel,
		Timeout:  cfg.LLMTimeout,
		Retries:  cfg.LLMRetries,
		Backoff:  cfg.LLMBackoff,
		Breaker:  breaker,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}
	logger.Info("llm configured", zap.String("provider", llmClient.ProviderName()), zap.Bool("mock", llmClient.Mock()))
	insights := service.NewInsightsService(llmClient, service.InsightsConfig{MaxTokens: cfg.LLMMaxTokens, Logger: logger})

	tracker := traffic.NewTracker(0, nil)
	healthConfig := &httphandler.HealthConfig{
		Version:              version,
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		CachePing:            cachePing,
		LLMStatus: func() string {
			if breaker == nil {
				return llmClient.ProviderName()
			}
			return breaker.State().String()
		},
	}
	handler := httphandler.NewHandler(a.weather, insights, healthConfig, tracker, a.state, logger)

	if err := observability.RegisterGauge("apiRequestsInWindow", "API request outcomes within the overload window",
		func() float64 { return float64(tracker.RequestCount(cfg.OverloadWindow)) }); err != nil {
		logger.Warn("window gauge not registered", zap.Error(err))
	}
	if err := observability.RegisterGauge("apiDenialsInWindow", "Rate-limit denials within the overload window",
		func() float64 { return float64(tracker.DenialCount(cfg.OverloadWindow)) }); err != nil {
		logger.Warn("window gauge not registered", zap.Error(err))
	}
	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedLocations(cfg.TrackedCities)
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		CORSOrigins:    cfg.CORSOrigins,
		InFlight:       a.inflight,
	})

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}
	return a, nil
}

// newCache returns the configured backend and, for remote backends, a ping
// for the health check.
func (a *app) newCache() (cache.Cache, func() error, error) {
	cfg := a.cfg
	switch cfg.CacheBackend {
	case cache.BackendMemcached:
		mc := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		a.closers = append(a.closers, mc.Close)
		a.logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, mc.Ping, nil
	case cache.BackendRedis:
		rc := cache.NewRedisCache(cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Timeout:  cfg.RedisTimeout,
		})
		a.closers = append(a.closers, rc.Close)
		a.logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr))
		return rc, rc.Ping, nil
	case cache.BackendInMemory:
		a.logger.Info("cache backend: in_memory")
		return cache.NewInMemoryCache(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// warm prefetches tracked cities once, and periodically when configured.
func (a *app) warm(ctx context.Context) {
	if !a.cfg.WarmCache || len(a.cfg.TrackedCities) == 0 {
		return
	}
	warmer := cache.NewCacheWarmer(a.weather, a.logger)
	go warmer.WarmPeriodic(ctx, a.cfg.TrackedCities, a.cfg.WarmInterval)
}

// shutdown flips health to shutting-down, stops accepting connections, waits
// for in-flight requests and releases cache connections.
func (a *app) shutdown() {
	logger := a.logger
	logger.Info("graceful shutdown triggered")
	a.state.BeginShutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", a.inflight.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := a.inflight.WaitForZero(waitCtx, a.cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", a.inflight.Count()))
	}

	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			logger.Error("cache close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}
