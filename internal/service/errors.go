package service

import "errors"

var (
	// ErrCityRequired is returned for an empty or whitespace-only city.
	ErrCityRequired = errors.New("city is required")
	// ErrCityInvalid is returned for an over-long city or one with disallowed characters.
	ErrCityInvalid = errors.New("invalid city")
	// ErrMissingCredential is returned when no weather API key is configured and mock mode is off.
	ErrMissingCredential = errors.New("weather API key not configured")
	// ErrMissingFields is returned when an insights request lacks current or forecast data.
	ErrMissingFields = errors.New("missing required fields: current and forecast")
)
