package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultOpenMeteoURL is the Open-Meteo air-quality endpoint.
const DefaultOpenMeteoURL = "https://air-quality-api.open-meteo.com/v1/air-quality"

const endpointAirQuality = "air_quality"

// AirQuality is the first hourly air-quality sample. Nil fields had no data.
type AirQuality struct {
	EuropeanAQI *int
	PM25        *float64
	PM10        *float64
}

// AirQualityProvider fetches air quality at a coordinate.
type AirQualityProvider interface {
	AirQuality(ctx context.Context, lat, lon float64) (AirQuality, error)
}

// OpenMeteoClient talks to the keyless Open-Meteo air-quality API.
type OpenMeteoClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewOpenMeteoClient returns a client for baseURL (DefaultOpenMeteoURL when empty).
func NewOpenMeteoClient(baseURL string, timeout time.Duration) *OpenMeteoClient {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OpenMeteoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{},
	}
}

type openMeteoResponse struct {
	Hourly struct {
		PM25        []*float64 `json:"pm2_5"`
		PM10        []*float64 `json:"pm10"`
		EuropeanAQI []*float64 `json:"european_aqi"`
	} `json:"hourly"`
}

// AirQuality requests hourly pm2_5, pm10 and european_aqi and returns the first sample.
func (c *OpenMeteoClient) AirQuality(ctx context.Context, lat, lon float64) (AirQuality, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("hourly", "pm2_5,pm10,european_aqi")

	body, status, err := doGet(ctx, c.client, c.timeout, endpointAirQuality, c.baseURL+"?"+params.Encode())
	if err != nil {
		return AirQuality{}, err
	}
	if status < 200 || status >= 300 {
		return AirQuality{}, &UpstreamError{
			Endpoint:   endpointAirQuality,
			StatusCode: status,
			Message:    providerMessage(body, http.StatusText(status)),
		}
	}

	var resp openMeteoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return AirQuality{}, fmt.Errorf("parse %s response: %w", endpointAirQuality, err)
	}

	aq := AirQuality{
		PM25: first(resp.Hourly.PM25),
		PM10: first(resp.Hourly.PM10),
	}
	if v := first(resp.Hourly.EuropeanAQI); v != nil {
		n := int(math.Round(*v))
		aq.EuropeanAQI = &n
	}
	return aq, nil
}

func first(values []*float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	return values[0]
}
