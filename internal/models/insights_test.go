package models

import (
	"encoding/json"
	"testing"
)

func TestReading_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantSet   bool
		wantOK    bool
		wantValue float64
		wantText  string
	}{
		{"number", `21.5`, true, true, 21.5, "21.5"},
		{"integer keeps literal", `30`, true, true, 30, "30"},
		{"numeric string", `"31"`, true, true, 31, "31"},
		{"padded numeric string", `" 12.0 "`, true, true, 12, " 12.0 "},
		{"non-numeric string", `"warm"`, true, false, 0, "warm"},
		{"bool is set but not numeric", `true`, true, false, 0, "true"},
		{"null", `null`, false, false, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Reading
			if err := json.Unmarshal([]byte(tt.in), &r); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.in, err)
			}
			if r.IsSet() != tt.wantSet {
				t.Errorf("IsSet() = %v, want %v", r.IsSet(), tt.wantSet)
			}
			v, ok := r.Float()
			if ok != tt.wantOK || v != tt.wantValue {
				t.Errorf("Float() = (%v, %v), want (%v, %v)", v, ok, tt.wantValue, tt.wantOK)
			}
			if r.String() != tt.wantText {
				t.Errorf("String() = %q, want %q", r.String(), tt.wantText)
			}
		})
	}
}

func TestReading_AbsentFieldIsUnset(t *testing.T) {
	var c ConditionsInput
	if err := json.Unmarshal([]byte(`{"temp": 20, "condition": "Clear"}`), &c); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if !c.Temp.IsSet() {
		t.Error("temp should be set")
	}
	if c.Humidity.IsSet() || c.AQI.IsSet() {
		t.Error("absent fields should not be set")
	}
}

func TestReading_MarshalEchoesOriginalForm(t *testing.T) {
	in := `{"temp":"18","humidity":70,"wind":null}`
	var c struct {
		Temp     Reading `json:"temp"`
		Humidity Reading `json:"humidity"`
		Wind     Reading `json:"wind"`
	}
	if err := json.Unmarshal([]byte(in), &c); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	out, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	if string(out) != in {
		t.Errorf("Marshal = %s, want %s", out, in)
	}
}

func TestInsightsRequest_NullCurrentStaysNil(t *testing.T) {
	var req InsightsRequest
	if err := json.Unmarshal([]byte(`{"city":"Oslo","current":null,"forecast":[]}`), &req); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if req.Current != nil {
		t.Error("null current should decode to nil")
	}
	if req.Forecast == nil || len(req.Forecast) != 0 {
		t.Errorf("empty forecast should decode to a non-nil empty slice, got %#v", req.Forecast)
	}
}

func TestNewReading(t *testing.T) {
	r := NewReading(-3.25)
	if v, ok := r.Float(); !ok || v != -3.25 {
		t.Errorf("Float() = (%v, %v)", v, ok)
	}
	if r.String() != "-3.25" {
		t.Errorf("String() = %q", r.String())
	}
	b, _ := json.Marshal(r)
	if string(b) != "-3.25" {
		t.Errorf("Marshal = %s", b)
	}
}

func TestInsightsRequest_LooselyTypedFields(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantCity      string
		wantCondition string
		wantForecast  []string
	}{
		{"strings", `{"city":"Oslo","current":{"condition":"Snow"},"forecast":[{"day":"Thu","condition":"Rain"}]}`, "Oslo", "Snow", []string{"Rain"}},
		{"numeric condition", `{"city":"Oslo","current":{"condition":5},"forecast":[{"day":"Thu","condition":7}]}`, "Oslo", "5", []string{"7"}},
		{"bool and null", `{"city":true,"current":{"condition":null},"forecast":[{"condition":false}]}`, "true", "", []string{"false"}},
		{"object condition", `{"city":null,"current":{"condition":{"a":1}},"forecast":[{"condition":[1]}]}`, "", "", []string{""}},
		{"scalar current and entry", `{"city":3,"current":5,"forecast":[5,null]}`, "3", "", []string{"", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req InsightsRequest
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatalf("Unmarshal error = %v", err)
			}
			if req.City != tt.wantCity {
				t.Errorf("City = %q, want %q", req.City, tt.wantCity)
			}
			if req.Current == nil {
				t.Fatal("Current = nil, want present")
			}
			if req.Current.Condition != tt.wantCondition {
				t.Errorf("Current.Condition = %q, want %q", req.Current.Condition, tt.wantCondition)
			}
			if len(req.Forecast) != len(tt.wantForecast) {
				t.Fatalf("Forecast = %+v, want %d entries", req.Forecast, len(tt.wantForecast))
			}
			for i, want := range tt.wantForecast {
				if req.Forecast[i].Condition != want {
					t.Errorf("Forecast[%d].Condition = %q, want %q", i, req.Forecast[i].Condition, want)
				}
			}
		})
	}
}

func TestInsightsRequest_KeepsReadings(t *testing.T) {
	var req InsightsRequest
	body := `{"current":{"temp":"31","wind":4.5},"forecast":[{"day":"Fri","temp":20}]}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if v, ok := req.Current.Temp.Float(); !ok || v != 31 {
		t.Errorf("Temp = (%v, %v), want (31, true)", v, ok)
	}
	if v, ok := req.Forecast[0].Temp.Float(); !ok || v != 20 || req.Forecast[0].Day != "Fri" {
		t.Errorf("Forecast[0] = %+v", req.Forecast[0])
	}
}

func TestInsightsRequest_RejectsNonObject(t *testing.T) {
	for _, body := range []string{`5`, `"x"`, `[1]`} {
		var req InsightsRequest
		if err := json.Unmarshal([]byte(body), &req); err == nil {
			t.Errorf("Unmarshal(%s) error = nil, want error", body)
		}
	}
}
