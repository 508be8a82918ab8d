package domain

import (
	"errors"
	"fmt"
)

// ProviderErrorKind classifies why a ranking provider attempt failed.
type ProviderErrorKind string

const (
	ProviderUnavailable ProviderErrorKind = "UNAVAILABLE" // network error, non-2xx, timeout, open breaker
	ProviderParseError  ProviderErrorKind = "PARSE_ERROR" // malformed or out-of-contract payload
)

// ProviderError is a recoverable per-provider failure. The ranking pipeline
// logs it and advances the fallback chain; it is never surfaced to callers.
type ProviderError struct {
	Provider ProviderTag
	Kind     ProviderErrorKind
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s %s: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderUnavailable wraps a transport-level provider failure.
func NewProviderUnavailable(provider ProviderTag, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ProviderUnavailable, Err: err}
}

// NewProviderParseError wraps a malformed-payload provider failure.
func NewProviderParseError(provider ProviderTag, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ProviderParseError, Err: err}
}

// IsProviderError reports whether err is a per-provider ranking failure and
// returns it when so.
func IsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// CandidateFetchError marks a candidate search failure. The orchestrator
// degrades to a best-effort empty summary instead of propagating it.
type CandidateFetchError struct {
	Err error
}

// Error implements the error interface.
func (e *CandidateFetchError) Error() string {
	return fmt.Sprintf("candidate fetch failed: %v", e.Err)
}

// Unwrap exposes the underlying cause.
func (e *CandidateFetchError) Unwrap() error {
	return e.Err
}
