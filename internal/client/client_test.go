package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const currentBody = `{
	"coord": {"lon": 2.3488, "lat": 48.8534},
	"weather": [{"main": "Clouds", "description": "broken clouds"}],
	"main": {"temp": 17.4, "humidity": 72},
	"wind": {"speed": 4.1},
	"sys": {"sunrise": 1718337000, "sunset": 1718395000},
	"timezone": 7200,
	"dt": 1718360000,
	"name": "Paris"
}`

const forecastBody = `{"list": [
	{"dt": 1718366400, "main": {"temp": 18.1}, "weather": [{"main": "Clear"}]},
	{"dt": 1718377200, "main": {"temp": 16.9}, "weather": [{"main": "Rain"}]}
]}`

func TestNewOpenWeatherClient_RequiresKey(t *testing.T) {
	if _, err := NewOpenWeatherClient("  ", "", time.Second); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("NewOpenWeatherClient(empty key) error = %v, want ErrInvalidAPIKey", err)
	}
	c, err := NewOpenWeatherClient("key", "", 0)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	if c.baseURL != DefaultOpenWeatherURL {
		t.Errorf("baseURL = %q, want default", c.baseURL)
	}
}

func TestOpenWeatherClient_CurrentConditions(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/weather" {
			t.Errorf("path = %q, want /weather", r.URL.Path)
		}
		q := r.URL.Query()
		gotQuery = map[string]string{"q": q.Get("q"), "units": q.Get("units"), "appid": q.Get("appid")}
		_, _ = w.Write([]byte(currentBody))
	}))
	defer srv.Close()

	c, _ := NewOpenWeatherClient("test-key", srv.URL, time.Second)
	cur, err := c.CurrentConditions(context.Background(), "Paris")
	if err != nil {
		t.Fatalf("CurrentConditions() error = %v", err)
	}
	if gotQuery["q"] != "Paris" || gotQuery["units"] != "metric" || gotQuery["appid"] != "test-key" {
		t.Errorf("query = %v", gotQuery)
	}
	if cur.Temp != 17.4 || cur.Humidity != 72 || cur.Wind != 4.1 || cur.Condition != "Clouds" {
		t.Errorf("current = %+v", cur)
	}
	if cur.Sunrise == nil || *cur.Sunrise != 1718337000 || cur.Timezone == nil || *cur.Timezone != 7200 {
		t.Errorf("sun/timezone not mapped: %+v", cur)
	}
	if cur.LocalDT == nil || *cur.LocalDT != 1718360000 {
		t.Errorf("LocalDT = %v", cur.LocalDT)
	}
	if cur.Coord == nil || cur.Coord.Lat != 48.8534 || cur.Coord.Lon != 2.3488 {
		t.Errorf("Coord = %+v", cur.Coord)
	}
}

func TestOpenWeatherClient_CurrentConditions_NoCoord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"weather":[],"main":{"temp":1},"wind":{"speed":0}}`))
	}))
	defer srv.Close()

	c, _ := NewOpenWeatherClient("k", srv.URL, time.Second)
	cur, err := c.CurrentConditions(context.Background(), "Nowhere")
	if err != nil {
		t.Fatalf("CurrentConditions() error = %v", err)
	}
	if cur.Coord != nil || cur.Sunrise != nil || cur.Condition != "" {
		t.Errorf("absent fields should stay empty: %+v", cur)
	}
}

func TestOpenWeatherClient_ErrorStatus(t *testing.T) {
	tests := []struct {
		name        string
		call        func(c *OpenWeatherClient) error
		status      int
		body        string
		wantMessage string
		wantIs      error
	}{
		{
			name:        "current forwards provider message",
			call:        func(c *OpenWeatherClient) error { _, err := c.CurrentConditions(context.Background(), "Atlantis"); return err },
			status:      http.StatusNotFound,
			body:        `{"cod":"404","message":"city not found"}`,
			wantMessage: "city not found",
			wantIs:      ErrLocationNotFound,
		},
		{
			name:        "current default message",
			call:        func(c *OpenWeatherClient) error { _, err := c.CurrentConditions(context.Background(), "Atlantis"); return err },
			status:      http.StatusNotFound,
			body:        `not json`,
			wantMessage: "City not found",
			wantIs:      ErrLocationNotFound,
		},
		{
			name:        "forecast default message",
			call:        func(c *OpenWeatherClient) error { _, err := c.Forecast(context.Background(), "Paris"); return err },
			status:      http.StatusBadGateway,
			body:        ``,
			wantMessage: "Forecast not available",
			wantIs:      ErrUpstreamFailure,
		},
		{
			name:        "invalid key",
			call:        func(c *OpenWeatherClient) error { _, err := c.CurrentConditions(context.Background(), "Paris"); return err },
			status:      http.StatusUnauthorized,
			body:        `{"cod":401,"message":"Invalid API key."}`,
			wantMessage: "Invalid API key.",
			wantIs:      ErrInvalidAPIKey,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, _ := NewOpenWeatherClient("k", srv.URL, time.Second)
			err := tt.call(c)
			var ue *UpstreamError
			if !errors.As(err, &ue) {
				t.Fatalf("error = %v, want *UpstreamError", err)
			}
			if ue.StatusCode != tt.status || ue.Message != tt.wantMessage {
				t.Errorf("UpstreamError = %+v, want status %d message %q", ue, tt.status, tt.wantMessage)
			}
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.wantIs)
			}
		})
	}
}

func TestOpenWeatherClient_Forecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forecast" {
			t.Errorf("path = %q, want /forecast", r.URL.Path)
		}
		_, _ = w.Write([]byte(forecastBody))
	}))
	defer srv.Close()

	c, _ := NewOpenWeatherClient("k", srv.URL, time.Second)
	samples, err := c.Forecast(context.Background(), "Paris")
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("len(samples) = %d, want 2", len(samples))
	}
	if !samples[0].Time.Equal(time.Unix(1718366400, 0)) || samples[0].Temp != 18.1 || samples[0].Condition != "Clear" {
		t.Errorf("samples[0] = %+v", samples[0])
	}
	if samples[1].Condition != "Rain" {
		t.Errorf("samples[1] = %+v", samples[1])
	}
}

func TestOpenWeatherClient_TimeoutIs504(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, _ := NewOpenWeatherClient("k", srv.URL, 20*time.Millisecond)
	_, err := c.CurrentConditions(context.Background(), "Paris")
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("error = %v, want 504 UpstreamError", err)
	}
	if !errors.Is(err, ErrTimeout) {
		t.Error("timeout should match ErrTimeout")
	}
}

func TestOpenMeteoClient_AirQuality(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("latitude") != "48.85" || q.Get("longitude") != "2.35" || q.Get("hourly") != "pm2_5,pm10,european_aqi" {
			t.Errorf("query = %v", q)
		}
		_, _ = w.Write([]byte(`{"hourly":{"time":["t0","t1"],"pm2_5":[8.4,9.1],"pm10":[null,15],"european_aqi":[31.6,33]}}`))
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(srv.URL, time.Second)
	aq, err := c.AirQuality(context.Background(), 48.85, 2.35)
	if err != nil {
		t.Fatalf("AirQuality() error = %v", err)
	}
	if aq.PM25 == nil || *aq.PM25 != 8.4 {
		t.Errorf("PM25 = %v, want 8.4", aq.PM25)
	}
	if aq.PM10 != nil {
		t.Errorf("PM10 = %v, want nil for null first sample", *aq.PM10)
	}
	if aq.EuropeanAQI == nil || *aq.EuropeanAQI != 32 {
		t.Errorf("EuropeanAQI = %v, want 32", aq.EuropeanAQI)
	}
}

func TestOpenMeteoClient_EmptyAndError(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hourly":{}}`))
	}))
	defer empty.Close()

	aq, err := NewOpenMeteoClient(empty.URL, time.Second).AirQuality(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("AirQuality() error = %v", err)
	}
	if aq.PM25 != nil || aq.PM10 != nil || aq.EuropeanAQI != nil {
		t.Errorf("empty hourly should give nil fields: %+v", aq)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	_, err = NewOpenMeteoClient(failing.URL, time.Second).AirQuality(context.Background(), 0, 0)
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("error = %v, want ErrUpstreamFailure", err)
	}
}
