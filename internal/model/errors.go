package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the failure classes callers branch on.
var (
	// ErrStorage wraps token persistence failures so they are never
	// mistaken for an invalid credential.
	ErrStorage = errors.New("token storage unavailable")
	// ErrValidation marks a local precondition failure; nothing was sent.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a 409 from the platform. For like/repost it means
	// the desired state already holds.
	ErrConflict = errors.New("conflict")
	// ErrConfiguration marks missing required settings at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrRateLimited marks a 429 that survived the retry budget.
	ErrRateLimited = errors.New("rate limited")
)

// NetworkError is a transport failure or server-side error that survived
// the client's retry budget.
type NetworkError struct {
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is a non-retryable platform response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("platform status %d", e.Status)
	}
	return fmt.Sprintf("platform status %d: %s", e.Status, e.Body)
}

// AuthAttempt records one strategy's outcome during the cascade.
type AuthAttempt struct {
	Strategy string
	Err      error
}

// AuthExhaustedError reports that every configured strategy failed.
type AuthExhaustedError struct {
	Attempts []AuthAttempt
}

func (e *AuthExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Strategy, a.Err))
	}
	return "all authentication strategies failed: " + strings.Join(parts, "; ")
}
