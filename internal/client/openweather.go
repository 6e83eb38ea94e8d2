package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/travel-insights-service/internal/observability"
)

// DefaultOpenWeatherURL is the OpenWeather 2.5 API root.
const DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5"

const (
	endpointCurrent  = "current"
	endpointForecast = "forecast"

	defaultCurrentMessage  = "City not found"
	defaultForecastMessage = "Forecast not available"
	timeoutMessage         = "Weather provider timed out"
)

// Coordinates locate a city for the air-quality lookup.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Current is the provider's current-conditions payload reduced to what the
// service aggregates. Coord is nil when the provider omitted it.
type Current struct {
	Temp      float64
	Humidity  int
	Wind      float64
	Condition string
	Sunrise   *int64
	Sunset    *int64
	Timezone  *int
	LocalDT   *int64
	Coord     *Coordinates
}

// ForecastSample is one 3-hourly forecast point.
type ForecastSample struct {
	Time      time.Time
	Temp      float64
	Condition string
}

// WeatherProvider fetches current conditions and the multi-day forecast for a city.
type WeatherProvider interface {
	CurrentConditions(ctx context.Context, city string) (Current, error)
	Forecast(ctx context.Context, city string) ([]ForecastSample, error)
}

// OpenWeatherClient talks to the OpenWeather REST API. It does not retry.
type OpenWeatherClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewOpenWeatherClient returns a client for baseURL (DefaultOpenWeatherURL when
// empty). timeout bounds each call.
func NewOpenWeatherClient(apiKey, baseURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultOpenWeatherURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OpenWeatherClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{},
	}, nil
}

type owmCurrentResponse struct {
	Coord *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Sys struct {
		Sunrise *int64 `json:"sunrise"`
		Sunset  *int64 `json:"sunset"`
	} `json:"sys"`
	Timezone *int   `json:"timezone"`
	Dt       *int64 `json:"dt"`
}

type owmForecastResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Main string `json:"main"`
		} `json:"weather"`
	} `json:"list"`
}

// CurrentConditions calls /weather for city.
func (c *OpenWeatherClient) CurrentConditions(ctx context.Context, city string) (Current, error) {
	var resp owmCurrentResponse
	if err := c.get(ctx, endpointCurrent, "/weather", city, defaultCurrentMessage, &resp); err != nil {
		return Current{}, err
	}

	cur := Current{
		Temp:     resp.Main.Temp,
		Humidity: resp.Main.Humidity,
		Wind:     resp.Wind.Speed,
		Sunrise:  resp.Sys.Sunrise,
		Sunset:   resp.Sys.Sunset,
		Timezone: resp.Timezone,
		LocalDT:  resp.Dt,
	}
	if len(resp.Weather) > 0 {
		cur.Condition = resp.Weather[0].Main
	}
	if resp.Coord != nil {
		cur.Coord = &Coordinates{Lat: resp.Coord.Lat, Lon: resp.Coord.Lon}
	}
	return cur, nil
}

// Forecast calls /forecast for city and returns the samples in provider order.
func (c *OpenWeatherClient) Forecast(ctx context.Context, city string) ([]ForecastSample, error) {
	var resp owmForecastResponse
	if err := c.get(ctx, endpointForecast, "/forecast", city, defaultForecastMessage, &resp); err != nil {
		return nil, err
	}

	samples := make([]ForecastSample, 0, len(resp.List))
	for _, item := range resp.List {
		s := ForecastSample{
			Time: time.Unix(item.Dt, 0).UTC(),
			Temp: item.Main.Temp,
		}
		if len(item.Weather) > 0 {
			s.Condition = item.Weather[0].Main
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func (c *OpenWeatherClient) get(ctx context.Context, endpoint, path, city, defaultMessage string, out any) error {
	params := url.Values{}
	params.Set("q", city)
	params.Set("units", "metric")
	params.Set("appid", c.apiKey)

	body, status, err := doGet(ctx, c.client, c.timeout, endpoint, c.baseURL+path+"?"+params.Encode())
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return &UpstreamError{Endpoint: endpoint, StatusCode: status, Message: providerMessage(body, defaultMessage)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse %s response: %w", endpoint, err)
	}
	return nil
}

// doGet performs one GET under its own timeout and records metrics. A timeout
// becomes a 504 UpstreamError; other transport failures are returned wrapped.
func doGet(ctx context.Context, hc *http.Client, timeout time.Duration, endpoint, rawURL string) ([]byte, int, error) {
	start := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if id := observability.CorrelationID(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}

	resp, err := hc.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(duration)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, &UpstreamError{Endpoint: endpoint, StatusCode: http.StatusGatewayTimeout, Message: timeoutMessage}
		}
		return nil, 0, fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	duration := time.Since(start).Seconds()
	status := observability.StatusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(duration)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	return body, resp.StatusCode, nil
}

// providerMessage returns the provider's "message" field, or def.
func providerMessage(body []byte, def string) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && strings.TrimSpace(parsed.Message) != "" {
		return parsed.Message
	}
	return def
}
