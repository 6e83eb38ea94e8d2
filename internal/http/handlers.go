package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/travel-insights-service/internal/client"
	"github.com/kjstillabower/travel-insights-service/internal/lifecycle"
	"github.com/kjstillabower/travel-insights-service/internal/models"
	"github.com/kjstillabower/travel-insights-service/internal/observability"
	"github.com/kjstillabower/travel-insights-service/internal/service"
	"github.com/kjstillabower/travel-insights-service/internal/traffic"
)

// maxInsightsBody caps the POST /api/generateInsights payload.
const maxInsightsBody = 1 << 20

// User-facing error messages.
const (
	msgCityRequired     = "City is required"
	msgInvalidCity      = "Invalid city"
	msgMissingKey       = "Server misconfiguration: missing API key (set WEATHER_API_KEY or OWM_KEY)"
	msgMissingFields    = "Missing required fields: current and forecast"
	msgInvalidBody      = "Request body must be a JSON object"
	msgMethodNotAllowed = "Method Not Allowed. Use POST."
	msgTimeout          = "Request timed out"
	msgServerError      = "Server error"
)

// WeatherGetter is the weather aggregation the handlers depend on.
type WeatherGetter interface {
	GetWeather(ctx context.Context, city string) (models.WeatherReport, error)
}

// InsightsGenerator is the insights orchestration the handlers depend on.
type InsightsGenerator interface {
	Generate(ctx context.Context, req models.InsightsRequest) (models.Insights, error)
}

// HealthConfig holds thresholds and probes for the health handler.
type HealthConfig struct {
	Version              string
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	// CachePing, when set, is called to check cache reachability (memcached, redis).
	CachePing func() error
	// LLMStatus, when set, reports the LLM path: "mock" or the breaker state.
	LLMStatus func() string
	Now       func() time.Time
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather          WeatherGetter
	insights         InsightsGenerator
	healthConfig     *HealthConfig
	traffic          *traffic.Tracker
	lifecycle        *lifecycle.State
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. healthConfig may be nil; tracker and
// state are created when nil.
func NewHandler(
	weather WeatherGetter,
	insights InsightsGenerator,
	healthConfig *HealthConfig,
	tracker *traffic.Tracker,
	state *lifecycle.State,
	logger *zap.Logger,
) *Handler {
	if tracker == nil {
		tracker = traffic.NewTracker(0, nil)
	}
	if state == nil {
		state = lifecycle.New(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weather:      weather,
		insights:     insights,
		healthConfig: healthConfig,
		traffic:      tracker,
		lifecycle:    state,
		logger:       logger,
	}
}

// GetWeather handles GET /api/weather?city=.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	report, err := h.weather.GetWeather(r.Context(), r.URL.Query().Get("city"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GenerateInsights handles POST /api/generateInsights. Other methods get 405
// from here rather than the router so CORS preflight still reaches the
// middleware chain.
func (h *Handler) GenerateInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", msgMethodNotAllowed)
		return
	}

	var req models.InsightsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInsightsBody))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		observability.LoggerFrom(r.Context(), h.logger).Debug("undecodable insights body", zap.Error(err))
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", msgInvalidBody)
		return
	}

	insights, err := h.insights.Generate(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	if result.status == "degraded" {
		checks["weatherApi"] = "unhealthy"
	}
	version := "dev"
	now := time.Now
	if cfg := h.healthConfig; cfg != nil {
		if cfg.CachePing != nil {
			if cfg.CachePing() == nil {
				checks["cache"] = "healthy"
			} else {
				checks["cache"] = "unhealthy"
			}
		}
		if cfg.LLMStatus != nil {
			checks["llm"] = cfg.LLMStatus()
		}
		if cfg.Version != "" {
			version = cfg.Version
		}
		if cfg.Now != nil {
			now = cfg.Now
		}
	}
	writeJSON(w, result.statusCode, map[string]any{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   version,
		"checks":    checks,
		"uptime":    h.lifecycle.Uptime().String(),
		"timestamp": now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if h.lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	cfg := h.healthConfig
	if cfg == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	// Overloaded: outcomes in the window exceed a share of what the limiter admits.
	if cfg.RateLimitRPS > 0 && cfg.OverloadWindow > 0 && cfg.OverloadThresholdPct > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.OverloadWindow.Seconds() * float64(cfg.OverloadThresholdPct) / 100
		if float64(h.traffic.RequestCount(cfg.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 {
		errs, total := h.traffic.ErrorRate(cfg.DegradedWindow)
		if total > 0 && float64(errs)*100/float64(total) >= float64(cfg.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message, "code": code, "requestId": id}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":     message,
		"code":      code,
		"requestId": observability.CorrelationID(r.Context()),
	})
}

// writeServiceError maps service and upstream errors to a status and message.
// Upstream weather errors forward the provider's status and message.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFrom(r.Context(), h.logger)
	var upstream *client.UpstreamError
	switch {
	case errors.Is(err, service.ErrCityRequired):
		writeError(w, r, http.StatusBadRequest, "CITY_REQUIRED", msgCityRequired)
	case errors.Is(err, service.ErrCityInvalid):
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", msgInvalidCity)
	case errors.Is(err, service.ErrMissingFields):
		writeError(w, r, http.StatusBadRequest, "MISSING_FIELDS", msgMissingFields)
	case errors.Is(err, service.ErrMissingCredential):
		logger.Error("weather API key not configured")
		writeError(w, r, http.StatusInternalServerError, "CONFIGURATION_ERROR", msgMissingKey)
	case errors.As(err, &upstream):
		logger.Warn("upstream error",
			zap.Error(err),
			zap.String("category", string(client.CategorizeError(err))))
		writeError(w, r, upstream.StatusCode, "UPSTREAM_ERROR", upstream.Message)
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timed out", zap.Error(err))
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", msgTimeout)
	default:
		logger.Error("request failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", msgServerError)
	}
}
