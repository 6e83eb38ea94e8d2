package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported cache backends and LLM providers. Mirrors the cache and llm
// packages without importing them.
var (
	cacheBackends = []string{"in_memory", "memcached", "redis"}
	llmProviders  = []string{"openai", "groq", "google"}
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string
	LogLevel   string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	MockWeather       bool
	MaxCityLength     int

	AirQualityEnabled bool
	AirQualityURL     string

	RequestTimeout time.Duration
	CORSOrigins    []string

	CacheTTL              time.Duration
	CacheBackend          string
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RedisTimeout          time.Duration

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	LLMProvider  string
	LLMAPIKey    string
	LLMAPIURL    string
	LLMModel     string
	LLMTimeout   time.Duration
	LLMRetries   int
	LLMBackoff   time.Duration
	LLMMaxTokens int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int

	TrackedCities []string
	WarmCache     bool
	WarmInterval  time.Duration
}

type fileConfig struct {
	Server struct {
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	WeatherAPI struct {
		URL           string `yaml:"url"`
		Timeout       string `yaml:"timeout"`
		Mock          bool   `yaml:"mock"`
		MaxCityLength int    `yaml:"max_city_length"`
	} `yaml:"weather_api"`

	AirQuality struct {
		Enabled *bool  `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"air_quality"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr    string `yaml:"addr"`
			DB      int    `yaml:"db"`
			Timeout string `yaml:"timeout"`
		} `yaml:"redis"`
		Coalesce struct {
			Enabled *bool  `yaml:"enabled"`
			Timeout string `yaml:"timeout"`
		} `yaml:"coalesce"`
	} `yaml:"cache"`

	LLM struct {
		Provider  string `yaml:"provider"`
		URL       string `yaml:"url"`
		Model     string `yaml:"model"`
		Timeout   string `yaml:"timeout"`
		Retries   *int   `yaml:"retries"`
		Backoff   string `yaml:"backoff"`
		MaxTokens int    `yaml:"max_tokens"`
	} `yaml:"llm"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Warming struct {
		TrackedCities []string `yaml:"tracked_cities"`
		Enabled       bool     `yaml:"enabled"`
		Interval      string   `yaml:"interval"`
	} `yaml:"warming"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	LLMAPIKey     string `yaml:"llm_api_key"`
	RedisPassword string `yaml:"redis_password"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml under the working directory, then applies environment
// overrides. Both files are optional.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(filepath.Join(cwd, "config"), os.Getenv)
}

// LoadFrom is Load with an explicit config directory and env lookup.
func LoadFrom(dir string, getenv func(string) string) (*Config, error) {
	env := getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	var fc fileConfig
	if err := readYAML(filepath.Join(dir, env+".yaml"), &fc); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	var sec secretsFile
	if err := readYAML(filepath.Join(dir, "secrets.yaml"), &sec); err != nil {
		return nil, fmt.Errorf("secrets file: %w", err)
	}

	cfg := &Config{}
	var errs []error
	envInt := func(key string, fallback int) int {
		s := strings.TrimSpace(getenv(key))
		if s == "" {
			return fallback
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, s))
			return fallback
		}
		return n
	}

	cfg.ServerPort = firstNonEmpty(getenv("PORT"), fc.Server.Port, "8080")
	cfg.LogLevel = firstNonEmpty(getenv("LOG_LEVEL"), fc.Log.Level, "info")
	cfg.CORSOrigins = fc.Server.CORSOrigins

	cfg.WeatherAPIKey = firstNonEmpty(getenv("WEATHER_API_KEY"), getenv("OWM_KEY"), sec.WeatherAPIKey)
	cfg.WeatherAPIURL = firstNonEmpty(getenv("WEATHER_API_URL"), fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.MockWeather = fc.WeatherAPI.Mock
	if v := getenv("DEV_MOCK_WEATHER"); v != "" {
		cfg.MockWeather = v == "1" || strings.EqualFold(v, "true")
	}
	cfg.MaxCityLength = fc.WeatherAPI.MaxCityLength
	if cfg.MaxCityLength <= 0 {
		cfg.MaxCityLength = 100
	}

	cfg.AirQualityEnabled = fc.AirQuality.Enabled == nil || *fc.AirQuality.Enabled
	cfg.AirQualityURL = firstNonEmpty(fc.AirQuality.URL, "https://air-quality-api.open-meteo.com/v1/air-quality")

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 30*time.Second)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 300*time.Second)
	if secs := envInt("WEATHER_CACHE_TTL_SECONDS", 0); secs > 0 {
		cfg.CacheTTL = time.Duration(secs) * time.Second
	}
	cfg.CacheBackend = strings.ToLower(firstNonEmpty(
		strings.TrimSpace(getenv("CACHE_BACKEND")), strings.TrimSpace(fc.Cache.Backend), "in_memory"))
	cfg.MemcachedAddrs = firstNonEmpty(strings.TrimSpace(getenv("MEMCACHED_ADDRS")), strings.TrimSpace(fc.Cache.Memcached.Addrs), "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisAddr = firstNonEmpty(strings.TrimSpace(getenv("REDIS_ADDR")), strings.TrimSpace(fc.Cache.Redis.Addr), "localhost:6379")
	cfg.RedisPassword = firstNonEmpty(getenv("REDIS_PASSWORD"), sec.RedisPassword)
	cfg.RedisDB = fc.Cache.Redis.DB
	cfg.RedisTimeout = parseDuration(fc.Cache.Redis.Timeout, 500*time.Millisecond)
	cfg.CoalesceEnabled = fc.Cache.Coalesce.Enabled == nil || *fc.Cache.Coalesce.Enabled
	cfg.CoalesceTimeout = parseDuration(fc.Cache.Coalesce.Timeout, 10*time.Second)

	cfg.LLMProvider = strings.ToLower(firstNonEmpty(strings.TrimSpace(getenv("LLM_PROVIDER")), strings.TrimSpace(fc.LLM.Provider)))
	cfg.LLMAPIKey = firstNonEmpty(getenv("LLM_API_KEY"), sec.LLMAPIKey)
	cfg.LLMAPIURL = firstNonEmpty(getenv("LLM_API_URL"), fc.LLM.URL)
	cfg.LLMModel = firstNonEmpty(getenv("LLM_MODEL"), fc.LLM.Model)
	cfg.LLMTimeout = parseDuration(fc.LLM.Timeout, 5*time.Second)
	if ms := envInt("LLM_TIMEOUT_MS", 0); ms > 0 {
		cfg.LLMTimeout = time.Duration(ms) * time.Millisecond
	}
	cfg.LLMRetries = 1
	if fc.LLM.Retries != nil {
		cfg.LLMRetries = *fc.LLM.Retries
	}
	cfg.LLMRetries = envInt("LLM_RETRIES", cfg.LLMRetries)
	cfg.LLMBackoff = parseDuration(fc.LLM.Backoff, 100*time.Millisecond)
	cfg.LLMMaxTokens = fc.LLM.MaxTokens
	if cfg.LLMMaxTokens <= 0 {
		cfg.LLMMaxTokens = 700
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled == nil || *cb.Enabled
	cfg.CircuitBreakerFailureThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = cb.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 1
	}
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	cfg.TrackedCities = fc.Warming.TrackedCities
	cfg.WarmCache = fc.Warming.Enabled
	cfg.WarmInterval = parseDurationOrZero(fc.Warming.Interval, 0)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readYAML unmarshals path into out. A missing file leaves out untouched.
func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised to cover
// the weather timeout and the full LLM retry budget.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.LLMRetries < 0 {
		return fmt.Errorf("LLM_RETRIES must be >= 0, got %d", cfg.LLMRetries)
	}
	if !slices.Contains(cacheBackends, cfg.CacheBackend) {
		return fmt.Errorf("cache.backend must be one of %s, got %q", strings.Join(cacheBackends, ", "), cfg.CacheBackend)
	}
	if cfg.LLMProvider != "" && !slices.Contains(llmProviders, cfg.LLMProvider) {
		return fmt.Errorf("LLM_PROVIDER must be one of %s, got %q", strings.Join(llmProviders, ", "), cfg.LLMProvider)
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	if llmBudget := time.Duration(cfg.LLMRetries+1) * cfg.LLMTimeout; cfg.RequestTimeout <= llmBudget {
		cfg.RequestTimeout = llmBudget + time.Second
	}
	return nil
}
