package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// Insights is the JSON object returned under "insights". Validated LLM output
// keeps every field the model produced, so the type stays open.
type Insights map[string]any

// InsightsRequest is the body of POST /api/generateInsights. Current and Forecast
// are nil when the caller omitted them (or sent null).
type InsightsRequest struct {
	City     string           `json:"city"`
	Current  *ConditionsInput `json:"current"`
	Forecast []ForecastInput  `json:"forecast"`
}

// errNotObject is returned when the request body is not a JSON object.
var errNotObject = errors.New("insights request must be a JSON object")

// UnmarshalJSON implements json.Unmarshaler. A non-string scalar city is kept
// as its literal text.
func (r *InsightsRequest) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if !isObject(b) {
		return errNotObject
	}
	type plain InsightsRequest
	aux := struct {
		*plain
		City json.RawMessage `json:"city"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.City = scalarText(aux.City)
	return nil
}

// ConditionsInput mirrors CurrentConditions but accepts whatever the caller sent
// for numeric fields.
type ConditionsInput struct {
	Temp      Reading `json:"temp"`
	Humidity  Reading `json:"humidity"`
	Wind      Reading `json:"wind"`
	Condition string  `json:"condition"`
	Sunrise   Reading `json:"sunrise"`
	Sunset    Reading `json:"sunset"`
	LocalDT   Reading `json:"local_dt"`
	Timezone  Reading `json:"timezone"`
	AQI       Reading `json:"aqi"`
	PM25      Reading `json:"pm2_5"`
	PM10      Reading `json:"pm10"`
	USAQI     Reading `json:"us_aqi"`
}

// UnmarshalJSON implements json.Unmarshaler. A non-object value decodes as
// present but empty, and a non-string scalar condition keeps its literal text.
func (c *ConditionsInput) UnmarshalJSON(b []byte) error {
	*c = ConditionsInput{}
	if !isObject(b) {
		return nil
	}
	type plain ConditionsInput
	aux := struct {
		*plain
		Condition json.RawMessage `json:"condition"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	c.Condition = scalarText(aux.Condition)
	return nil
}

// ForecastInput is one caller-supplied forecast day.
type ForecastInput struct {
	Day       string  `json:"day"`
	Temp      Reading `json:"temp"`
	Condition string  `json:"condition"`
}

// UnmarshalJSON implements json.Unmarshaler with the same tolerance as
// ConditionsInput.
func (f *ForecastInput) UnmarshalJSON(b []byte) error {
	*f = ForecastInput{}
	if !isObject(b) {
		return nil
	}
	type plain ForecastInput
	aux := struct {
		*plain
		Day       json.RawMessage `json:"day"`
		Condition json.RawMessage `json:"condition"`
	}{plain: (*plain)(f)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	f.Day = scalarText(aux.Day)
	f.Condition = scalarText(aux.Condition)
	return nil
}

func isObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}

// scalarText returns a JSON string's value or a number/bool literal as sent.
// Null, objects and arrays give "".
func scalarText(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	switch {
	case s == "" || s == "null":
		return ""
	case s[0] == '"':
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return ""
		}
		return str
	case s[0] == '{' || s[0] == '[':
		return ""
	}
	return s
}

// Reading is a loosely typed numeric field. It accepts a JSON number or a numeric
// string, keeps the literal text for rendering, and reports whether the value is
// a usable number. Absent and null readings are not Set.
type Reading struct {
	raw    string
	quoted bool
	value  float64
	ok     bool
	set    bool
}

// NewReading returns a Set, numeric Reading.
func NewReading(v float64) Reading {
	return Reading{
		raw:   strconv.FormatFloat(v, 'f', -1, 64),
		value: v,
		ok:    true,
		set:   true,
	}
}

// TextReading returns a Set Reading holding caller text, numeric if s parses.
func TextReading(s string) Reading {
	r := Reading{raw: s, quoted: true, set: true}
	r.value, r.ok = parseNumber(s)
	return r
}

// Float returns the numeric value and whether the reading parsed as a finite number.
func (r Reading) Float() (float64, bool) {
	return r.value, r.ok
}

// IsSet reports whether the caller supplied a non-null value.
func (r Reading) IsSet() bool {
	return r.set
}

// String returns the literal value as sent, or "" when unset.
func (r Reading) String() string {
	return r.raw
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Reading) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*r = Reading{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*r = TextReading(str)
		return nil
	}
	*r = Reading{raw: s, set: true}
	r.value, r.ok = parseNumber(s)
	return nil
}

// MarshalJSON implements json.Marshaler, echoing the value in its original form.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.set {
		return []byte("null"), nil
	}
	if r.quoted {
		return json.Marshal(r.raw)
	}
	return []byte(r.raw), nil
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
