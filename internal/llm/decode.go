package llm

import (
	"encoding/json"
	"strings"
)

// DecodeJSON parses model output. The whole text is tried first; failing that,
// the span from the first '{' to the last '}' is tried, which recovers JSON
// wrapped in prose or code fences. ErrNoJSON is returned when both fail.
func DecodeJSON(text string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &v); err == nil {
		return v, nil
	}
	obj, ok := ExtractObject(text)
	if !ok {
		return nil, ErrNoJSON
	}
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return nil, ErrNoJSON
	}
	return v, nil
}

// ExtractObject returns the text between the first '{' and the last '}' inclusive.
func ExtractObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
