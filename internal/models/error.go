package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication verdicts
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrWeakPassword       = errors.New("password does not meet strength requirements")

	// ErrMalformedCredential marks a stored credential that cannot be parsed.
	// It is a data-integrity fault for operators, never a failed login.
	ErrMalformedCredential = errors.New("stored credential is malformed")

	ErrUnknownEndpointClass = errors.New("unknown endpoint class")
)

// StrengthViolationError lists the rule IDs a candidate password violated
type StrengthViolationError struct {
	Violations []string
	Score      int
	Tier       string
}

func (e *StrengthViolationError) Error() string {
	if len(e.Violations) == 0 {
		return ErrWeakPassword.Error()
	}
	return fmt.Sprintf("%s: %s", ErrWeakPassword.Error(), strings.Join(e.Violations, ", "))
}

// Is reports whether target is ErrWeakPassword
func (e *StrengthViolationError) Is(target error) bool {
	return target == ErrWeakPassword
}

// AccountLockedError carries the remaining lock duration, which is safe to disclose
type AccountLockedError struct {
	Remaining time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("%s (retry in %s)", ErrAccountLocked.Error(), e.Remaining.Round(time.Second))
}

// Is reports whether target is ErrAccountLocked
func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// TooManyRequestsError carries a retry-after hint for the caller
type TooManyRequestsError struct {
	EndpointClass string
	RetryAfter    time.Duration
}

func (e *TooManyRequestsError) Error() string {
	return fmt.Sprintf("%s for %s (retry in %s)", ErrRateLimitExceeded.Error(), e.EndpointClass, e.RetryAfter.Round(time.Second))
}

// Is reports whether target is ErrRateLimitExceeded
func (e *TooManyRequestsError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}
