package service

import (
	"fmt"
	"time"
)

// ValidationError is returned for malformed, missing or out-of-bounds input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// RateLimitedError is returned when the caller exceeded its request budget.
type RateLimitedError struct {
	Limit   int
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.ResetAt.UTC().Format(time.RFC3339))
}

// AuthError is returned for bad credentials or an invalid session/signature.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return "unauthorized: " + e.Message
}

// ConflictError is returned when a transition guard fails because the record
// has already moved on. It is what makes repeated approvals a safe no-op.
type ConflictError struct {
	Resource string
	ID       string
	Status   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s already processed (status %s)", e.Resource, e.ID, e.Status)
}

// ConfigurationError is returned when a required transport is not configured.
type ConfigurationError struct {
	Component string
}

func (e *ConfigurationError) Error() string {
	return e.Component + " is not configured"
}

// TransportError wraps a failed call to the reply transport.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}
