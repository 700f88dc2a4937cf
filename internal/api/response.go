// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/highscore/internal/logging"
)

// APIResponse is the envelope of every API response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    APIMeta     `json:"meta"`
}

// APIError is the error part of the envelope.
type APIError struct {
	// Code is a machine-readable error code
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// APIMeta is attached to every response.
type APIMeta struct {
	Timestamp   int64  `json:"timestamp"` // unix milliseconds
	RequestID   string `json:"request_id,omitempty"`
	QueryTimeMs int64  `json:"query_time_ms"`
}

// Error codes for API responses
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeInvalidDeviceID   = "INVALID_DEVICE_ID"
	ErrCodeInvalidLimit      = "INVALID_LIMIT"
	ErrCodeInvalidOffset     = "INVALID_OFFSET"
	ErrCodeInvalidRankType   = "INVALID_RANKING_TYPE"
	ErrCodeDeviceNotFound    = "DEVICE_NOT_FOUND"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeIPBlocked         = "IP_BLOCKED"
	ErrCodeDatabaseError     = "DATABASE_ERROR"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	ErrCodeUnavailable       = "SERVICE_UNAVAILABLE"
)

// ResponseWriter writes enveloped responses and stamps the query time.
type ResponseWriter struct {
	w         http.ResponseWriter
	r         *http.Request
	startTime time.Time
}

// NewResponseWriter creates a new response writer.
func NewResponseWriter(w http.ResponseWriter, r *http.Request) *ResponseWriter {
	return &ResponseWriter{
		w:         w,
		r:         r,
		startTime: time.Now(),
	}
}

// Success writes a 200 response with data.
func (rw *ResponseWriter) Success(data interface{}) {
	rw.write(http.StatusOK, APIResponse{Success: true, Data: data})
}

// SuccessWithStatus writes data with a custom status, e.g. a degraded health report.
func (rw *ResponseWriter) SuccessWithStatus(status int, data interface{}) {
	rw.write(status, APIResponse{Success: status < http.StatusBadRequest, Data: data})
}

// Error writes an error response with the given status code.
func (rw *ResponseWriter) Error(statusCode int, code, message string) {
	rw.ErrorWithDetails(statusCode, code, message, nil)
}

// ErrorWithDetails writes an error response with additional details.
func (rw *ResponseWriter) ErrorWithDetails(statusCode int, code, message string, details interface{}) {
	rw.write(statusCode, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message, Details: details},
	})
}

// BadRequest writes a 400 error with the given code.
func (rw *ResponseWriter) BadRequest(code, message string) {
	rw.Error(http.StatusBadRequest, code, message)
}

// NotFound writes a 404 error.
func (rw *ResponseWriter) NotFound(code, message string) {
	rw.Error(http.StatusNotFound, code, message)
}

// TooManyRequests writes a 429 error.
func (rw *ResponseWriter) TooManyRequests(message string) {
	rw.Error(http.StatusTooManyRequests, ErrCodeRateLimitExceeded, message)
}

// InternalError writes a 500 error.
func (rw *ResponseWriter) InternalError(message string) {
	rw.Error(http.StatusInternalServerError, ErrCodeInternalError, message)
}

// DatabaseError logs err and writes a 500 without leaking it.
func (rw *ResponseWriter) DatabaseError(err error) {
	logging.Ctx(rw.r.Context()).Error().Err(err).Str("path", rw.r.URL.Path).Msg("Database error")
	rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, "A database error occurred")
}

func (rw *ResponseWriter) write(statusCode int, resp APIResponse) {
	resp.Meta = APIMeta{
		Timestamp:   time.Now().UnixMilli(),
		RequestID:   logging.RequestIDFromContext(rw.r.Context()),
		QueryTimeMs: time.Since(rw.startTime).Milliseconds(),
	}

	data, err := json.Marshal(resp)
	if err != nil {
		logging.Ctx(rw.r.Context()).Error().Err(err).Msg("Failed to marshal JSON response")
		rw.w.WriteHeader(http.StatusInternalServerError)
		return
	}

	rw.w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.w.WriteHeader(statusCode)
	if _, err := rw.w.Write(data); err != nil {
		logging.Ctx(rw.r.Context()).Debug().Err(err).Msg("Failed to write JSON response")
	}
}

// WriteError is a convenience function for router-level errors.
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	NewResponseWriter(w, r).Error(statusCode, code, message)
}
