package models

// CurrentConditions is the aggregated snapshot returned for a city. Air-quality
// fields are null when the air-quality provider had no data or failed.
type CurrentConditions struct {
	Temp      float64 `json:"temp"`
	Humidity  int     `json:"humidity"`
	Wind      float64 `json:"wind"`
	Condition string  `json:"condition"`
	Sunrise   *int64  `json:"sunrise,omitempty"`
	Sunset    *int64  `json:"sunset,omitempty"`
	Timezone  *int    `json:"timezone,omitempty"` // seconds offset from UTC
	LocalDT   *int64  `json:"local_dt,omitempty"`

	AQI   *int     `json:"aqi"` // European AQI
	PM25  *float64 `json:"pm2_5"`
	PM10  *float64 `json:"pm10"`
	USAQI *int     `json:"us_aqi"`
}

// ForecastDay is one calendar day reduced from 3-hourly forecast samples.
type ForecastDay struct {
	Day       string  `json:"day"`
	Temp      float64 `json:"temp"`
	Condition string  `json:"condition"`
}

// WeatherReport is the value served by /api/weather and stored in the cache.
type WeatherReport struct {
	Current  CurrentConditions `json:"current"`
	Forecast []ForecastDay     `json:"forecast"`
}
