// Package errhandling provides error types, classification, and retry utilities.
// This file defines error categories and classification of the failures a
// collection fetch can surface to its caller.
package errhandling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrAborted is returned by a fetch that was superseded by a newer fetch on the
// same collection. Its response, if any, is discarded.
var ErrAborted = errors.New("request aborted")

// ErrorCategory represents the type/category of an error.
type ErrorCategory string

// Error categories for classification.
const (
	// CategoryNetwork represents network-related errors (timeout, connection refused, DNS).
	CategoryNetwork ErrorCategory = "network"

	// CategoryAuthentication represents authentication errors (401, 403).
	CategoryAuthentication ErrorCategory = "authentication"

	// CategoryValidation represents validation errors (400, 422, other 4xx).
	CategoryValidation ErrorCategory = "validation"

	// CategoryRateLimit represents rate limiting errors (429).
	CategoryRateLimit ErrorCategory = "rate_limit"

	// CategoryServer represents server errors (5xx).
	CategoryServer ErrorCategory = "server"

	// CategoryNotFound represents not found errors (404).
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryAborted represents a request superseded by a newer one.
	// Aborts are never retried: the newer request owns the outcome.
	CategoryAborted ErrorCategory = "aborted"

	// CategoryUnknown represents unclassified errors.
	CategoryUnknown ErrorCategory = "unknown"
)

// ClassifiedError wraps an error with classification metadata.
type ClassifiedError struct {
	// Category is the error classification category.
	Category ErrorCategory

	// Retryable indicates whether a caller may sensibly re-fetch.
	Retryable bool

	// StatusCode is the HTTP status code (0 if not an HTTP error).
	StatusCode int

	// Message is a human-readable error message.
	Message string

	// OriginalErr is the underlying error that was classified.
	OriginalErr error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Category, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Category, e.Message)
}

// Unwrap returns the original error for use with errors.Is and errors.As.
func (e *ClassifiedError) Unwrap() error {
	return e.OriginalErr
}

// statusMessages holds the messages for status codes with a dedicated classification.
var statusMessages = map[int]string{
	400: "bad request",
	401: "unauthorized",
	403: "forbidden",
	404: "not found",
	422: "unprocessable entity",
	429: "rate limited",
	500: "internal server error",
	502: "bad gateway",
	503: "service unavailable",
	504: "gateway timeout",
}

// ClassifyHTTPStatus classifies an HTTP error based on status code.
//
// Classification rules:
//   - 401, 403: Authentication errors (not retryable)
//   - 404: Not found errors (not retryable)
//   - 429: Rate limit errors (retryable)
//   - 5xx: Server errors (retryable)
//   - Other 4xx: Validation errors (not retryable)
//   - Anything else: CategoryUnknown (retryable)
func ClassifyHTTPStatus(statusCode int, message string) *ClassifiedError {
	msg, ok := statusMessages[statusCode]
	if !ok {
		msg = message
	}

	ce := &ClassifiedError{StatusCode: statusCode, Message: msg}
	switch {
	case statusCode == 401 || statusCode == 403:
		ce.Category = CategoryAuthentication
	case statusCode == 404:
		ce.Category = CategoryNotFound
	case statusCode == 429:
		ce.Category, ce.Retryable = CategoryRateLimit, true
	case statusCode >= 500:
		ce.Category, ce.Retryable = CategoryServer, true
		if !ok {
			ce.Message = "server error"
		}
	case statusCode >= 400:
		ce.Category = CategoryValidation
		if !ok {
			ce.Message = "client error"
		}
	default:
		ce.Category, ce.Retryable = CategoryUnknown, true
	}
	return ce
}

// ClassifyNetworkError classifies a transport-level error.
func ClassifyNetworkError(err error) *ClassifiedError {
	if err == nil {
		return &ClassifiedError{Category: CategoryUnknown, Message: "nil error"}
	}

	if errors.Is(err, ErrAborted) {
		return &ClassifiedError{
			Category:    CategoryAborted,
			Message:     "superseded by a newer request",
			OriginalErr: err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewNetworkError("request timeout", err)
	}

	// Caller-initiated cancellation is not worth retrying.
	if errors.Is(err, context.Canceled) {
		return &ClassifiedError{
			Category:    CategoryNetwork,
			Message:     "context canceled",
			OriginalErr: err,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NewNetworkError(fmt.Sprintf("DNS error: %s", dnsErr.Name), err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NewNetworkError(fmt.Sprintf("network error: %s %s", opErr.Op, opErr.Net), err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return NewNetworkError("timeout", err)
		}
		return NewNetworkError(fmt.Sprintf("URL error: %s %s", urlErr.Op, urlErr.URL), err)
	}

	return &ClassifiedError{
		Category:    CategoryUnknown,
		Retryable:   true,
		Message:     err.Error(),
		OriginalErr: err,
	}
}

// ClassifyError classifies any error into a ClassifiedError.
// Already classified errors are returned as-is.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return &ClassifiedError{Category: CategoryUnknown, Message: "nil error"}
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	return ClassifyNetworkError(err)
}

// IsRetryable returns true if the error is classified as retryable.
// Nil errors return false.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return ClassifyError(err).Retryable
}

// IsAborted reports whether err is the result of a superseded request.
func IsAborted(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrAborted) || GetErrorCategory(err) == CategoryAborted
}

// IsFatal returns true if the error is classified as fatal (should not be retried).
// Fatal categories: Authentication, Validation, NotFound.
func IsFatal(err error) bool {
	switch GetErrorCategory(err) {
	case CategoryAuthentication, CategoryValidation, CategoryNotFound:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the error category for a given error.
// Returns CategoryUnknown for nil or unclassified errors.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Category
	}

	return CategoryUnknown
}

// NewNetworkError creates a ClassifiedError for network errors.
func NewNetworkError(message string, originalErr error) *ClassifiedError {
	return &ClassifiedError{
		Category:    CategoryNetwork,
		Retryable:   true,
		Message:     message,
		OriginalErr: originalErr,
	}
}
