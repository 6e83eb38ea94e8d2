package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	mockCityPattern = regexp.MustCompile(`City:\s*([^\n]+)`)
	mockTempPattern = regexp.MustCompile(`Temperature:\s*(-?[0-9]+(?:\.[0-9]+)?)`)
)

type mockWindow struct {
	Period string `json:"period"`
	Reason string `json:"reason"`
}

type mockActivity struct {
	Activity    string `json:"activity"`
	Suitability string `json:"suitability"`
	Reason      string `json:"reason"`
}

type mockInsights struct {
	Summary             string         `json:"summary"`
	BestTimeOfDay       mockWindow     `json:"best_time_of_day"`
	ActivitySuitability []mockActivity `json:"activity_suitability"`
	Recommendations     []string       `json:"recommendations"`
	Advisories          []string       `json:"advisories"`
}

// MockResponse returns deterministic insights JSON derived from the prompt's
// "City:" and "Temperature:" lines. The output passes insights validation.
func MockResponse(prompt string) string {
	city := "Unknown city"
	if m := mockCityPattern.FindStringSubmatch(prompt); m != nil {
		if c := strings.TrimSpace(m[1]); c != "" {
			city = c
		}
	}

	out := mockInsights{Advisories: []string{}}
	temp, hasTemp := mockTemperature(prompt)
	switch {
	case hasTemp && temp >= 30:
		out.Summary = fmt.Sprintf("Mock: Hot day in %s, plan outdoor time for the morning", city)
		out.BestTimeOfDay = mockWindow{Period: "morning", Reason: "Temperatures peak later in the day"}
		out.ActivitySuitability = []mockActivity{
			{Activity: "morning sightseeing", Suitability: "good", Reason: "Cooler before midday"},
			{Activity: "indoor museums", Suitability: "good", Reason: "Shelter from afternoon heat"},
			{Activity: "afternoon hiking", Suitability: "poor", Reason: "Heat exposure"},
		}
		out.Recommendations = []string{"morning sightseeing", "indoor museums"}
	case hasTemp && temp <= 5:
		out.Summary = fmt.Sprintf("Mock: Cold day in %s, favour indoor activities", city)
		out.BestTimeOfDay = mockWindow{Period: "afternoon", Reason: "Warmest part of a cold day"}
		out.ActivitySuitability = []mockActivity{
			{Activity: "museums and galleries", Suitability: "good", Reason: "Indoors and heated"},
			{Activity: "cafes", Suitability: "good", Reason: "Warm breaks between outings"},
			{Activity: "long outdoor walks", Suitability: "fair", Reason: "Cold exposure"},
		}
		out.Recommendations = []string{"museums and galleries", "cafes"}
	default:
		out.Summary = fmt.Sprintf("Mock: Good day for sightseeing in %s", city)
		out.BestTimeOfDay = mockWindow{Period: "no strong preference", Reason: "Conditions are mild throughout the day"}
		out.ActivitySuitability = []mockActivity{
			{Activity: "outdoor sightseeing", Suitability: "good", Reason: "Mild conditions"},
			{Activity: "photography", Suitability: "good", Reason: "Steady light"},
		}
		out.Recommendations = []string{"outdoor sightseeing", "photography"}
	}

	b, err := json.Marshal(out)
	if err != nil {
		return `{"summary":"Mock insights unavailable","best_time_of_day":{"period":"no strong preference","reason":"-"},"activity_suitability":[],"advisories":[]}`
	}
	return string(b)
}

func mockTemperature(prompt string) (float64, bool) {
	m := mockTempPattern.FindStringSubmatch(prompt)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
