// Package errors defines the failure kinds the service reports and how each
// maps onto an HTTP status and an analytics error kind.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrEmptyInput       = errors.New("no usable text")
	ErrDecodeFailure    = errors.New("document text could not be decoded")
	ErrUnreadable       = errors.New("document unreadable")
	ErrUnknownCharacter = errors.New("character missing from code table")
	ErrTruncatedStream  = errors.New("bit stream ends mid-code")
	ErrInvalidInput     = errors.New("invalid input")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTimeout          = errors.New("operation timed out")
	ErrInternal         = errors.New("internal error")
)

// Checked in order; the first sentinel in an error's chain decides.
var kinds = []struct {
	sentinel error
	name     string
	status   int
}{
	{ErrNotFound, "not_found", http.StatusNotFound},
	{ErrForbidden, "forbidden", http.StatusForbidden},
	{ErrEmptyInput, "empty_input", http.StatusBadRequest},
	{ErrDecodeFailure, "decode_failure", http.StatusBadRequest},
	{ErrInvalidInput, "invalid_input", http.StatusBadRequest},
	{ErrUnknownCharacter, "unknown_character", http.StatusUnprocessableEntity},
	{ErrTruncatedStream, "truncated_stream", http.StatusUnprocessableEntity},
	{ErrUnreadable, "unreadable", http.StatusInternalServerError},
	{ErrRateLimited, "rate_limited", http.StatusTooManyRequests},
	{ErrUnauthorized, "unauthorized", http.StatusUnauthorized},
	{ErrTimeout, "timeout", http.StatusServiceUnavailable},
}

// AppError pairs a sentinel with a client-facing message and a status.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return e.Err.Error() + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// New overrides the status the sentinel would map to.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

// Wrap takes its status from the sentinel.
func Wrap(sentinel error, message string) *AppError {
	return New(sentinel, HTTPStatusCode(sentinel), message)
}

func Wrapf(sentinel error, format string, args ...any) *AppError {
	return Wrap(sentinel, fmt.Sprintf(format, args...))
}

// HTTPStatusCode prefers an AppError's explicit status, then the sentinel
// table, then 500.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// Kind names err's failure class for metrics and analytics events.
// Unclassified errors are "internal".
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.name
		}
	}
	return "internal"
}
