package validation

import (
	"fmt"
	"strings"
)

// InsightsValidation is the outcome of ValidateInsights. Errors lists every
// violation found, in check order.
type InsightsValidation struct {
	OK     bool
	Errors []string
}

// ValidateInsights checks a decoded JSON value (as produced by encoding/json
// into an any) against the required insights shape. Every check runs so the
// caller sees all violations; a non-object value stops at the first.
func ValidateInsights(v any) InsightsValidation {
	var errs []string

	obj, ok := v.(map[string]any)
	if !ok || obj == nil {
		return InsightsValidation{Errors: []string{"insights must be an object"}}
	}

	if s, ok := obj["summary"].(string); !ok || strings.TrimSpace(s) == "" {
		errs = append(errs, "summary must be a non-empty string")
	}

	if !hasStringFields(obj["best_time_of_day"], "period", "reason") {
		errs = append(errs, "best_time_of_day must be an object with string period and reason")
	}

	if items, ok := obj["activity_suitability"].([]any); !ok {
		errs = append(errs, "activity_suitability must be an array")
	} else {
		for i, item := range items {
			if !hasStringFields(item, "activity", "suitability", "reason") {
				errs = append(errs, fmt.Sprintf("activity_suitability[%d] must be an object with string activity, suitability and reason", i))
			}
		}
	}

	if !isStringArray(obj["advisories"]) {
		errs = append(errs, "advisories must be an array of strings")
	}

	return InsightsValidation{OK: len(errs) == 0, Errors: errs}
}

func hasStringFields(v any, fields ...string) bool {
	obj, ok := v.(map[string]any)
	if !ok || obj == nil {
		return false
	}
	for _, f := range fields {
		if _, ok := obj[f].(string); !ok {
			return false
		}
	}
	return true
}

func isStringArray(v any) bool {
	items, ok := v.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if _, ok := item.(string); !ok {
			return false
		}
	}
	return true
}
