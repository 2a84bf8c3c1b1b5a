package http

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error      string   `json:"error"`                 // Machine-readable error code
	Message    string   `json:"message"`               // Human-readable message
	Details    string   `json:"details,omitempty"`     // Optional additional context
	Violations []string `json:"violations,omitempty"`  // Failed password rules
	RetryAfter int      `json:"retry_after,omitempty"` // Seconds until the request may be retried
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: errorCode, Message: message})
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: errorCode, Message: message, Details: details})
}

// RetryAfterSeconds rounds d up to whole seconds, never below 1
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}

// writeRetryable sets Retry-After and mirrors it in the body
func writeRetryable(w http.ResponseWriter, statusCode int, errorCode, message string, retryAfter time.Duration) {
	secs := RetryAfterSeconds(retryAfter)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	WriteJSON(w, statusCode, ErrorResponse{Error: errorCode, Message: message, RetryAfter: secs})
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

// WriteWeakPassword reports a password rejected by the strength policy
func WriteWeakPassword(w http.ResponseWriter, violations []string) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:      "weak_password",
		Message:    "password does not meet strength requirements",
		Violations: violations,
	})
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteInvalidCredentials(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

// WriteLocked reports a temporarily locked account
func WriteLocked(w http.ResponseWriter, retryAfter time.Duration) {
	writeRetryable(w, http.StatusLocked, "account_locked", "account temporarily locked", retryAfter)
}

func WriteTooManyRequests(w http.ResponseWriter, message string, retryAfter time.Duration) {
	writeRetryable(w, http.StatusTooManyRequests, "rate_limit_exceeded", message, retryAfter)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}
