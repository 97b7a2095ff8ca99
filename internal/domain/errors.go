package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when a query is empty or malformed. It is the only
	// error that fails a request outright.
	ErrValidation = errors.New("invalid medication query")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrRateLimited is returned when the limiter denies an outbound call
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInsufficientData marks a run that produced too few records to answer
	ErrInsufficientData = errors.New("insufficient data")

	// ErrProviderFailure is returned when a search or geocoding provider fails
	ErrProviderFailure = errors.New("provider request failed")

	// ErrServiceUnavailable is returned when the pipeline has not been configured
	ErrServiceUnavailable = errors.New("pharmacy service not configured")
)

// ProviderErrorKind classifies a failed provider call.
type ProviderErrorKind string

const (
	ProviderTimeout     ProviderErrorKind = "timeout"
	ProviderRateLimited ProviderErrorKind = "rate_limited"
	ProviderServerError ProviderErrorKind = "server_error"
	ProviderNotFound    ProviderErrorKind = "not_found"
	ProviderBadResponse ProviderErrorKind = "bad_response"
)

// ProviderError is returned by the search and geocoding clients.
type ProviderError struct {
	Provider   string
	Kind       ProviderErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrProviderFailure) match any provider error.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderFailure
}

// Retryable reports whether a single retry with backoff makes sense.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case ProviderTimeout, ProviderRateLimited, ProviderServerError:
		return true
	default:
		return false
	}
}

// NewProviderError builds a ProviderError.
func NewProviderError(provider string, kind ProviderErrorKind, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, StatusCode: status, Err: err}
}

// Reasons attached to payloads whose data is incomplete.
const (
	ReasonRateLimited         = "rate_limited"
	ReasonProviderFailure     = "provider_failure"
	ReasonPartialResults      = "partial_results"
	ReasonNoResults           = "no_results"
	ReasonInsufficientSamples = "insufficient_samples"
)
