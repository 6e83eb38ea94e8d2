package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrTimeout marks an attempt aborted by the per-call timeout.
var ErrTimeout = errors.New("llm request timed out")

// ErrUnknownProvider is returned for an explicit provider name that has no strategy.
var ErrUnknownProvider = errors.New("unknown llm provider")

// ErrNoJSON is returned by DecodeJSON when the text holds no parseable JSON.
var ErrNoJSON = errors.New("no JSON object in model output")

// ProviderError is returned by Client.Call once the retry policy gives up.
// StatusCode is 0 when no HTTP response was received.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode > 0:
		return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s API request failed: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the attempt was aborted by the call timeout.
func (e *ProviderError) Timeout() bool {
	return errors.Is(e.Err, ErrTimeout)
}

// ClientError reports a 4xx response.
func (e *ProviderError) ClientError() bool {
	return e.StatusCode >= http.StatusBadRequest && e.StatusCode < http.StatusInternalServerError
}

// IsRetryable reports whether err is worth another attempt. Timeouts, 4xx
// responses and caller cancellation are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return !pe.Timeout() && !pe.ClientError()
	}
	return true
}
