// Package utils provides common utility functions for HTTP response handling,
// request ID management, and cookie operations. It includes standardized response
// formats with automatic request ID injection for distributed tracing.
package utils

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// requestIDKey is the context key for request ID
const requestIDKey contextKey = "request_id"

// Response status values carried in every JSON envelope.
const (
	StatusSuccess = "SUCCESS"
	StatusFail    = "FAIL"  // client errors (4xx)
	StatusError   = "ERROR" // server errors (5xx)
)

// GetRequestID retrieves the request ID from the context.
// Returns an empty string if the context is nil or no request ID is present.
//
// Example:
//
//	requestID := utils.GetRequestID(r.Context())
//	if requestID != "" {
//	    log.Info().Str("request_id", requestID).Msg("Processing request")
//	}
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithRequestID adds a request ID to the context for distributed tracing.
// This is typically called by middleware to inject a unique identifier for each request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ErrorResponse represents a standard error response structure.
// Status is FAIL for client errors and ERROR for server errors; Code carries
// the tagged error code (e.g. "UNAUTHORIZED", "BAD_FILTER") when one exists.
type ErrorResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error"`                // HTTP status text (e.g., "Bad Request")
	Message   string `json:"message,omitempty"`    // Detailed error message
	Code      string `json:"code,omitempty"`       // Tagged error code
	RequestID string `json:"request_id,omitempty"` // Request ID for distributed tracing
}

// SuccessResponse represents a standard success response structure.
// It wraps response data with an optional message and request ID.
type SuccessResponse struct {
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// RespondWithError sends a JSON error response with automatic request ID extraction.
//
// Example:
//
//	if err != nil {
//	    utils.RespondWithError(w, r, http.StatusBadRequest, "Invalid input")
//	    return
//	}
func RespondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	RespondWithErrorCode(w, r, statusCode, "", message)
}

// RespondWithErrorCode sends a JSON error response that also names a tagged
// error code.
//
// Example:
//
//	utils.RespondWithErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication failed. Please log in!")
func RespondWithErrorCode(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	requestID := GetRequestID(r.Context())

	status := StatusFail
	if statusCode >= http.StatusInternalServerError {
		status = StatusError
	}

	response := ErrorResponse{
		Status:    status,
		Error:     http.StatusText(statusCode),
		Message:   message,
		Code:      code,
		RequestID: requestID,
	}

	writeJSON(w, statusCode, response, requestID)
}

// RespondWithJSON sends a JSON response with the given status code and data.
// The request ID is automatically extracted from the request context.
//
// Example:
//
//	utils.RespondWithJSON(w, r, http.StatusOK, health)
func RespondWithJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	writeJSON(w, statusCode, data, GetRequestID(r.Context()))
}

// RespondWithSuccess sends a standardized success envelope with the given
// status code, message and data.
//
// Example:
//
//	utils.RespondWithSuccess(w, r, http.StatusCreated, "Tweet created successfully", tweet)
func RespondWithSuccess(w http.ResponseWriter, r *http.Request, statusCode int, message string, data interface{}) {
	requestID := GetRequestID(r.Context())

	response := SuccessResponse{
		Status:    StatusSuccess,
		Message:   message,
		Data:      data,
		RequestID: requestID,
	}

	writeJSON(w, statusCode, response, requestID)
}

// RespondWithMessage sends a success envelope that only carries a message.
//
// Example:
//
//	utils.RespondWithMessage(w, r, http.StatusOK, "Logged out successfully")
func RespondWithMessage(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	RespondWithSuccess(w, r, statusCode, message, nil)
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("Failed to encode JSON response")
	}
}

// SetAuthCookie sets an authentication cookie with appropriate security settings.
// In production, the cookie is marked as Secure (HTTPS only). The cookie is always
// HttpOnly and uses SameSite=Lax for CSRF protection.
//
// Example:
//
//	utils.SetAuthCookie(w, "session", token, result.ExpiresAt, cfg.Session.SecureCookie)
func SetAuthCookie(w http.ResponseWriter, name, value string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
}

// ClearAuthCookie clears a specific authentication cookie by setting MaxAge to -1.
// This instructs the browser to immediately delete the cookie.
func ClearAuthCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
