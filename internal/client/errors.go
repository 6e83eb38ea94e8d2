package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrTimeout          = errors.New("upstream timeout")
)

// UpstreamError is a non-2xx (or timed out) weather provider response. The
// HTTP layer forwards StatusCode and Message to the caller.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Unwrap maps the status to a sentinel so callers can use errors.Is.
func (e *UpstreamError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return ErrInvalidAPIKey
	case e.StatusCode == http.StatusNotFound:
		return ErrLocationNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode == http.StatusGatewayTimeout:
		return ErrTimeout
	case e.StatusCode >= http.StatusInternalServerError:
		return ErrUpstreamFailure
	}
	return nil
}
