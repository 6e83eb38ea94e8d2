package http

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/travel-insights-service/internal/observability"
)

// RouterConfig holds the cross-cutting settings applied by NewRouter.
type RouterConfig struct {
	Limiter        *rate.Limiter // nil disables rate limiting on /api
	RequestTimeout time.Duration
	CORSOrigins    []string // defaults to "*"
	InFlight       *InFlightTracker
}

// NewRouter mounts the API, health and metrics routes with their middleware.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(h.logger))
	router.Use(MetricsMiddleware(cfg.InFlight))
	router.Use(RecoverMiddleware(h.logger))
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/api").Subrouter()
	api.Use(handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", correlationHeader}),
		handlers.ExposedHeaders([]string{correlationHeader}),
	))
	api.Use(RateLimitMiddleware(cfg.Limiter, h.traffic))
	api.Use(TrafficMiddleware(h.traffic))
	api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/weather", h.GetWeather).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/generateInsights", h.GenerateInsights)

	return router
}
