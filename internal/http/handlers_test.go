package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/travel-insights-service/internal/client"
	"github.com/kjstillabower/travel-insights-service/internal/lifecycle"
	"github.com/kjstillabower/travel-insights-service/internal/models"
	"github.com/kjstillabower/travel-insights-service/internal/observability"
	"github.com/kjstillabower/travel-insights-service/internal/service"
	"github.com/kjstillabower/travel-insights-service/internal/traffic"
)

type mockWeather struct {
	report models.WeatherReport
	err    error
	city   string
}

func (m *mockWeather) GetWeather(ctx context.Context, city string) (models.WeatherReport, error) {
	m.city = city
	return m.report, m.err
}

type mockInsights struct {
	out    models.Insights
	err    error
	got    models.InsightsRequest
	called bool
}

func (m *mockInsights) Generate(ctx context.Context, req models.InsightsRequest) (models.Insights, error) {
	m.called = true
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	return m.out, nil
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId"`
}

func withCorrelation(r *http.Request, id string) *http.Request {
	return r.WithContext(observability.WithRequest(r.Context(), id, zap.NewNop()))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func sampleReport() models.WeatherReport {
	aqi := 28
	return models.WeatherReport{
		Current: models.CurrentConditions{Temp: 18.4, Humidity: 60, Wind: 4.1, Condition: "Clouds", AQI: &aqi},
		Forecast: []models.ForecastDay{
			{Day: "Thu", Temp: 19.5, Condition: "Clear"},
			{Day: "Fri", Temp: 17, Condition: "Rain"},
		},
	}
}

// TestHandler_GetWeather_Success verifies the report is returned as-is with
// the city taken from the query string.
func TestHandler_GetWeather_Success(t *testing.T) {
	// Arrange
	weather := &mockWeather{report: sampleReport()}
	handler := NewHandler(weather, &mockInsights{}, nil, nil, nil, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/api/weather?city=Lisbon", nil)
	w := httptest.NewRecorder()

	// Act
	handler.GetWeather(w, req)

	// Assert
	if w.Code != http.StatusOK {
		t.Fatalf("GetWeather() status = %d, want 200", w.Code)
	}
	if weather.city != "Lisbon" {
		t.Errorf("city passed to service = %q, want Lisbon", weather.city)
	}
	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	current, _ := got["current"].(map[string]any)
	if current["aqi"] != float64(28) || current["condition"] != "Clouds" {
		t.Errorf("current = %v", current)
	}
	if _, ok := current["us_aqi"]; !ok {
		t.Error("us_aqi should be present as null")
	}
	if forecast, _ := got["forecast"].([]any); len(forecast) != 2 {
		t.Errorf("forecast = %v, want 2 days", got["forecast"])
	}
}

// TestHandler_GetWeather_ErrorMapping verifies each service error maps to
// the documented status, code and message.
func TestHandler_GetWeather_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"city required", service.ErrCityRequired, http.StatusBadRequest, "CITY_REQUIRED", "City is required"},
		{"city invalid", fmt.Errorf("%w: city too long", service.ErrCityInvalid), http.StatusBadRequest, "INVALID_CITY", "Invalid city"},
		{"missing key", service.ErrMissingCredential, http.StatusInternalServerError, "CONFIGURATION_ERROR", msgMissingKey},
		{
			"upstream not found forwarded",
			fmt.Errorf("current conditions: %w", &client.UpstreamError{Endpoint: "current", StatusCode: 404, Message: "city not found"}),
			http.StatusNotFound, "UPSTREAM_ERROR", "city not found",
		},
		{
			"upstream 502 forwarded",
			&client.UpstreamError{Endpoint: "forecast", StatusCode: 502, Message: "Forecast not available"},
			http.StatusBadGateway, "UPSTREAM_ERROR", "Forecast not available",
		},
		{"request deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT", "Request timed out"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", "Server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(&mockWeather{err: tt.err}, &mockInsights{}, nil, nil, nil, zap.NewNop())
			req := withCorrelation(httptest.NewRequest(http.MethodGet, "/api/weather?city=x", nil), "corr-123")
			w := httptest.NewRecorder()

			handler.GetWeather(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := decodeError(t, w)
			if body.Code != tt.wantCode || body.Error != tt.wantMsg {
				t.Errorf("body = %+v, want code %q error %q", body, tt.wantCode, tt.wantMsg)
			}
			if body.RequestID != "corr-123" {
				t.Errorf("requestId = %q, want corr-123", body.RequestID)
			}
		})
	}
}

// TestHandler_GetWeather_LogsUpstreamCategory verifies upstream failures are
// logged with their error category on the request logger.
func TestHandler_GetWeather_LogsUpstreamCategory(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	err := &client.UpstreamError{Endpoint: "current", StatusCode: 401, Message: "Invalid API key"}
	handler := NewHandler(&mockWeather{err: err}, &mockInsights{}, nil, nil, nil, zap.New(core))

	handler.GetWeather(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/weather?city=x", nil))

	entries := logs.FilterMessage("upstream error").All()
	if len(entries) != 1 {
		t.Fatalf("upstream error logs = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["category"]; got != "invalid_api_key" {
		t.Errorf("category = %v, want invalid_api_key", got)
	}
}

func TestHandler_GenerateInsights_MethodNotAllowed(t *testing.T) {
	insights := &mockInsights{}
	handler := NewHandler(&mockWeather{}, insights, nil, nil, nil, zap.NewNop())
	w := httptest.NewRecorder()

	handler.GenerateInsights(w, httptest.NewRequest(http.MethodGet, "/api/generateInsights", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
	if allow := w.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("Allow = %q, want POST", allow)
	}
	if body := decodeError(t, w); body.Error != "Method Not Allowed. Use POST." {
		t.Errorf("error = %q", body.Error)
	}
	if insights.called {
		t.Error("insights service should not be called for non-POST")
	}
}

func TestHandler_GenerateInsights_BadInput(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
		wantMsg    string
	}{
		{"malformed json", `{"current":`, nil, http.StatusBadRequest, msgInvalidBody},
		{"array body", `[1,2]`, nil, http.StatusBadRequest, msgInvalidBody},
		{"scalar body", `5`, nil, http.StatusBadRequest, msgInvalidBody},
		{"empty body", ``, service.ErrMissingFields, http.StatusBadRequest, "Missing required fields: current and forecast"},
		{"missing forecast", `{"current":{"temp":20}}`, service.ErrMissingFields, http.StatusBadRequest, "Missing required fields: current and forecast"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(&mockWeather{}, &mockInsights{err: tt.serviceErr}, nil, nil, nil, zap.NewNop())
			req := httptest.NewRequest(http.MethodPost, "/api/generateInsights", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handler.GenerateInsights(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := decodeError(t, w); body.Error != tt.wantMsg {
				t.Errorf("error = %q, want %q", body.Error, tt.wantMsg)
			}
		})
	}
}

func TestHandler_GenerateInsights_Success(t *testing.T) {
	insights := &mockInsights{out: models.Insights{
		"summary":    "Pleasant day.",
		"advisories": []string{"Rain expected — bring rain gear for outdoor plans"},
	}}
	handler := NewHandler(&mockWeather{}, insights, nil, nil, nil, zap.NewNop())
	payload := `{"city":"Porto","current":{"temp":"31","humidity":40,"wind":3,"condition":"Clear"},
		"forecast":[{"day":"Thu","temp":22,"condition":"Rain"}]}`
	w := httptest.NewRecorder()

	handler.GenerateInsights(w, httptest.NewRequest(http.MethodPost, "/api/generateInsights", strings.NewReader(payload)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	if insights.got.City != "Porto" || insights.got.Current == nil || len(insights.got.Forecast) != 1 {
		t.Fatalf("request passed to service = %+v", insights.got)
	}
	if temp, ok := insights.got.Current.Temp.Float(); !ok || temp != 31 {
		t.Errorf("numeric string temp = (%v, %v), want (31, true)", temp, ok)
	}

	var resp struct {
		Insights map[string]any `json:"insights"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Insights["summary"] != "Pleasant day." {
		t.Errorf("insights = %v", resp.Insights)
	}
}

func TestHandler_GenerateInsights_LooselyTypedFields(t *testing.T) {
	insights := &mockInsights{out: models.Insights{"summary": "ok"}}
	handler := NewHandler(&mockWeather{}, insights, nil, nil, nil, zap.NewNop())
	payload := `{"city":7,"current":5,"forecast":[{"day":"Thu","temp":22,"condition":5}]}`
	w := httptest.NewRecorder()

	handler.GenerateInsights(w, httptest.NewRequest(http.MethodPost, "/api/generateInsights", strings.NewReader(payload)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	if insights.got.Current == nil {
		t.Error("scalar current should decode as present")
	}
	if insights.got.City != "7" || insights.got.Forecast[0].Condition != "5" {
		t.Errorf("request passed to service = %+v", insights.got)
	}
}

func newHealthHandler(cfg *HealthConfig) (*Handler, *traffic.Tracker, *lifecycle.State) {
	tracker := traffic.NewTracker(0, nil)
	state := lifecycle.New(nil)
	return NewHandler(&mockWeather{}, &mockInsights{}, cfg, tracker, state, zap.NewNop()), tracker, state
}

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	return body
}

func TestHandler_GetHealth_Healthy(t *testing.T) {
	fixed := time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)
	handler, _, _ := newHealthHandler(&HealthConfig{
		Version:   "1.2.3",
		CachePing: func() error { return nil },
		LLMStatus: func() string { return "mock" },
		Now:       func() time.Time { return fixed },
	})
	w := httptest.NewRecorder()

	handler.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeHealth(t, w)
	if body["status"] != "healthy" || body["service"] != "travel-insights-service" || body["version"] != "1.2.3" {
		t.Errorf("body = %v", body)
	}
	if body["timestamp"] != "2024-06-12T10:00:00Z" {
		t.Errorf("timestamp = %v", body["timestamp"])
	}
	checks, _ := body["checks"].(map[string]any)
	if checks["cache"] != "healthy" || checks["llm"] != "mock" || checks["weatherApi"] != "healthy" {
		t.Errorf("checks = %v", checks)
	}
}

func TestHandler_GetHealth_States(t *testing.T) {
	tests := []struct {
		name       string
		cfg        *HealthConfig
		setup      func(*traffic.Tracker, *lifecycle.State)
		wantStatus string
		wantCode   int
	}{
		{
			name:       "no config is healthy",
			setup:      func(*traffic.Tracker, *lifecycle.State) {},
			wantStatus: "healthy",
			wantCode:   http.StatusOK,
		},
		{
			name:       "shutting down wins",
			cfg:        &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 10},
			setup:      func(tr *traffic.Tracker, s *lifecycle.State) { tr.RecordError(); s.BeginShutdown() },
			wantStatus: "shutting-down",
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name: "overloaded above threshold",
			cfg:  &HealthConfig{RateLimitRPS: 1, OverloadWindow: 10 * time.Second, OverloadThresholdPct: 50},
			setup: func(tr *traffic.Tracker, _ *lifecycle.State) {
				for i := 0; i < 6; i++ {
					tr.RecordDenied()
				}
			},
			wantStatus: "overloaded",
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name: "at overload threshold stays healthy",
			cfg:  &HealthConfig{RateLimitRPS: 1, OverloadWindow: 10 * time.Second, OverloadThresholdPct: 50},
			setup: func(tr *traffic.Tracker, _ *lifecycle.State) {
				for i := 0; i < 5; i++ {
					tr.RecordSuccess()
				}
			},
			wantStatus: "healthy",
			wantCode:   http.StatusOK,
		},
		{
			name:       "degraded at error threshold",
			cfg:        &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50},
			setup:      func(tr *traffic.Tracker, _ *lifecycle.State) { tr.RecordSuccess(); tr.RecordError() },
			wantStatus: "degraded",
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name: "below error threshold",
			cfg:  &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50},
			setup: func(tr *traffic.Tracker, _ *lifecycle.State) {
				tr.RecordSuccess()
				tr.RecordSuccess()
				tr.RecordError()
			},
			wantStatus: "healthy",
			wantCode:   http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, tracker, state := newHealthHandler(tt.cfg)
			tt.setup(tracker, state)
			w := httptest.NewRecorder()

			handler.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			body := decodeHealth(t, w)
			if body["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", body["status"], tt.wantStatus)
			}
			if tt.wantStatus == "degraded" {
				if checks, _ := body["checks"].(map[string]any); checks["weatherApi"] != "unhealthy" {
					t.Errorf("weatherApi check = %v, want unhealthy", checks["weatherApi"])
				}
			}
		})
	}
}

func TestHandler_GetHealth_CacheUnreachable(t *testing.T) {
	handler, _, _ := newHealthHandler(&HealthConfig{CachePing: func() error { return errors.New("dial tcp: refused") }})
	w := httptest.NewRecorder()

	handler.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	checks, _ := decodeHealth(t, w)["checks"].(map[string]any)
	if checks["cache"] != "unhealthy" {
		t.Errorf("cache check = %v, want unhealthy", checks["cache"])
	}
}

// TestHandler_GetHealth_LogsTransition verifies a status change is logged
// once with the previous and current status.
func TestHandler_GetHealth_LogsTransition(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tracker := traffic.NewTracker(0, nil)
	state := lifecycle.New(nil)
	handler := NewHandler(&mockWeather{}, &mockInsights{}, &HealthConfig{}, tracker, state, zap.New(core))

	handler.GetHealth(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	state.BeginShutdown()
	handler.GetHealth(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	handler.GetHealth(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("transition logs = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["previous_status"] != "healthy" || fields["current_status"] != "shutting-down" {
		t.Errorf("fields = %v", fields)
	}
}
