// Package prompt renders the constrained travel-insights prompt sent to the LLM.
package prompt

import (
	"fmt"
	"strings"

	"github.com/kjstillabower/travel-insights-service/internal/models"
)

// SchemaVersion identifies the output contract embedded in the prompt. Bump it
// together with validation.ValidateInsights when required fields change.
const SchemaVersion = "2"

// Placeholder is rendered for any field the caller did not supply.
const Placeholder = "-"

// outputSchema is the response shape the model must produce. Fields checked by
// validation.ValidateInsights: summary, best_time_of_day, activity_suitability, advisories.
const outputSchema = `{
  "summary": string,

  "comfort_analysis": {
    "walking_comfort": "good" | "moderate" | "poor",
    "heat_fatigue_risk": "low" | "moderate" | "high",
    "explanation": string
  },

  "best_time_of_day": {
    "period": "morning" | "afternoon" | "evening" | "no strong preference",
    "reason": string
  },

  "time_window_breakdown": {
    "morning": "good" | "fair" | "poor",
    "afternoon": "good" | "fair" | "poor",
    "evening": "good" | "fair" | "poor"
  },

  "activity_suitability": [
    {
      "activity": string,
      "suitability": "good" | "fair" | "poor",
      "reason": string
    }
  ],

  "photography_conditions": {
    "quality": "excellent" | "good" | "fair" | "poor",
    "reason": string
  },

  "air_quality_insights": {
    "status": "good" | "moderate" | "poor" | "unknown",
    "guidance": string
  },

  "planning_notes": string,

  "advisories": [ string ]
}`

const header = `You are a travel-intelligence assistant. Your job is to interpret the provided weather and air-quality data into actionable, evidence-based travel insights.

STRICT OUTPUT RULES:
- Respond ONLY with a single valid JSON object matching the exact structure below.
- Do NOT return an array, string, markdown, or any text outside the JSON object.
- Do NOT include explanations, commentary, or formatting outside the JSON.
- Do NOT invent weather, air quality, UV, crowd levels, or local facts.
- Do NOT predict beyond the provided forecast.
- If data is missing, explicitly state that it is unavailable in the relevant field.
- Keep all explanations concise, factual, and grounded in the inputs.`

const task = `TASK:
Generate structured travel insights that help a tourist decide:
- Whether today is suitable for travel activities
- When outdoor activities are most comfortable
- What kinds of activities are appropriate
- What limitations or cautions apply (especially due to air quality)`

const guidelines = `GUIDELINES FOR EACH FIELD:

- summary:
  One concise sentence describing overall travel suitability.

- comfort_analysis:
  Base walking comfort and fatigue risk ONLY on temperature, humidity, and wind.

- best_time_of_day:
  Choose based on temperature trends, sun timing (if available),
  weather condition, and air quality.

- time_window_breakdown:
  Rate morning / afternoon / evening comfort using available data.
  If sun timing is missing, make conservative judgments.

- activity_suitability:
  Include 3-5 concrete activities (e.g., sightseeing, walking tours,
  outdoor cafes, indoor museums).
  Each must include a short, data-backed reason.

- photography_conditions:
  Consider cloud cover, weather condition, wind, and air quality
  (PM2.5 / PM10 / AQI).

- air_quality_insights:
  If AQI or particulate data is missing, mark status as "unknown".
  If AQI or particulates are elevated, suggest reduced exertion or indoor activities.

- planning_notes:
  A short note that helps with same-day or near-term planning,
  possibly referencing forecast trends if present.

- advisories:
  Short, cautionary statements ONLY if supported by data
  (heat, wind, poor air quality, missing data).

FINAL RULES:
- Do NOT output explanations outside JSON.
- Do NOT include speculative health advice.
- Do NOT repeat the same advisory multiple times.
- Keep language neutral, helpful, and factual.

Now generate the JSON output for the provided input.`

// Input is the data rendered into the prompt.
type Input struct {
	City     string
	Current  models.ConditionsInput
	Forecast []models.ForecastInput
}

// BuildInsightsPrompt renders in. Output is deterministic for equal input.
func BuildInsightsPrompt(in Input) string {
	c := in.Current
	var b strings.Builder

	b.WriteString(header)
	b.WriteString("\n\nCITY:\n")
	fmt.Fprintf(&b, "City: %s\n", text(in.City))

	b.WriteString("\nCURRENT CONDITIONS:\n")
	fmt.Fprintf(&b, "- Temperature: %s°C\n", reading(c.Temp))
	fmt.Fprintf(&b, "- Weather condition: %s\n", text(c.Condition))
	fmt.Fprintf(&b, "- Humidity: %s%%\n", reading(c.Humidity))
	fmt.Fprintf(&b, "- Wind speed: %s m/s\n", reading(c.Wind))
	fmt.Fprintf(&b, "- Sunrise (unix): %s\n", reading(c.Sunrise))
	fmt.Fprintf(&b, "- Sunset (unix): %s\n", reading(c.Sunset))
	fmt.Fprintf(&b, "- Local timestamp (unix): %s\n", reading(c.LocalDT))
	fmt.Fprintf(&b, "- Timezone offset (seconds): %s\n", reading(c.Timezone))
	fmt.Fprintf(&b, "- Air Quality Index (AQI): %s\n", reading(c.AQI))
	fmt.Fprintf(&b, "- US AQI (EPA): %s\n", reading(c.USAQI))
	fmt.Fprintf(&b, "- PM2.5: %s\n", reading(c.PM25))
	fmt.Fprintf(&b, "- PM10: %s\n", reading(c.PM10))

	b.WriteString("\nFORECAST (NEXT DAYS):\n")
	if len(in.Forecast) == 0 {
		b.WriteString("- Forecast not available\n")
	}
	for _, f := range in.Forecast {
		fmt.Fprintf(&b, "- %s: %s°C, %s\n", text(f.Day), reading(f.Temp), text(f.Condition))
	}

	b.WriteString("\n")
	b.WriteString(task)
	fmt.Fprintf(&b, "\n\nOUTPUT FORMAT (STRICT JSON, schema v%s):\n\n", SchemaVersion)
	b.WriteString(outputSchema)
	b.WriteString("\n\n")
	b.WriteString(guidelines)

	return b.String()
}

func reading(r models.Reading) string {
	if !r.IsSet() {
		return Placeholder
	}
	return text(r.String())
}

func text(s string) string {
	if s == "" {
		return Placeholder
	}
	return s
}
