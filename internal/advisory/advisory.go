// Package advisory derives evidence-based caution strings from current
// conditions and the daily forecast. Every function here is pure.
package advisory

import (
	"strings"

	"github.com/kjstillabower/travel-insights-service/internal/models"
)

// Advisory strings. Callers may compare against these; the LLM merge step
// de-duplicates on exact text.
const (
	CurrentMissing  = "Current weather missing"
	ExtremeHeat     = "Extreme heat — avoid prolonged sun exposure"
	HighTemperature = "High temperature — stay hydrated and prefer morning/evening activities"
	HumidDiscomfort = "High humidity with warm temperature — strenuous outdoor activities may be uncomfortable"
	HighWinds       = "High winds — secure loose items and exercise caution outdoors"
	StrongWinds     = "Strong winds — consider sheltered activities if sensitive to wind"
	RainExpected    = "Rain expected — bring rain gear for outdoor plans"
	CloudyForecast  = "Cloudy forecast — photography conditions may be diffused"
)

// Rule thresholds. Temperatures in °C, wind in m/s (~61 km/h and ~36 km/h).
const (
	extremeHeatC = 35
	highTempC    = 30
	humidPct     = 85
	humidTempC   = 25
	highWindMS   = 17
	strongWindMS = 10
)

// Compute returns the advisories that apply to current and forecast, in rule
// order with duplicates removed. A nil current yields only CurrentMissing.
func Compute(current *models.ConditionsInput, forecast []models.ForecastInput) []string {
	if current == nil {
		return []string{CurrentMissing}
	}

	var out []string
	temp, tempOK := current.Temp.Float()
	if tempOK {
		if temp >= extremeHeatC {
			out = append(out, ExtremeHeat)
		} else if temp >= highTempC {
			out = append(out, HighTemperature)
		}
	}

	if humidity, ok := current.Humidity.Float(); ok && tempOK {
		if humidity >= humidPct && temp >= humidTempC {
			out = append(out, HumidDiscomfort)
		}
	}

	if wind, ok := current.Wind.Float(); ok {
		if wind >= highWindMS {
			out = append(out, HighWinds)
		} else if wind >= strongWindMS {
			out = append(out, StrongWinds)
		}
	}

	wet, cloudy := 0, 0
	for _, day := range forecast {
		c := strings.ToLower(day.Condition)
		if strings.Contains(c, "rain") || strings.Contains(c, "thunderstorm") || strings.Contains(c, "drizzle") {
			wet++
		}
		if strings.Contains(c, "cloud") {
			cloudy++
		}
	}
	if wet > 0 {
		out = append(out, RainExpected)
	}
	if cloudy >= max(1, len(forecast)/2) {
		out = append(out, CloudyForecast)
	}

	return Dedupe(out)
}

// Dedupe returns lists concatenated with repeats removed, keeping the first
// occurrence of each entry. The result is never nil.
func Dedupe(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
