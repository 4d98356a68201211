package vision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

var (
	// ErrDetection wraps every dialogue-box detection failure. Callers keep
	// their previous box when they see it.
	ErrDetection = errors.New("dialogue box detection failed")
	// ErrRetriesExhausted is returned once every attempt hit a transient error.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrMalformedResponse marks a 2xx response whose body could not be used.
	ErrMalformedResponse = errors.New("malformed response")
)

// APIError is a non-2xx response from the Messages API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("vision api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("vision api: %d %s: %s", e.StatusCode, e.Type, e.Message)
}

// ErrorClass says whether a failed call may be attempted again.
type ErrorClass int

const (
	// ErrorClassRetryable covers timeouts and connection failures.
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassRateLimited is retryable with a longer backoff.
	ErrorClassRateLimited
	// ErrorClassFatal is returned to the caller immediately.
	ErrorClassFatal
	// ErrorClassUnknown is only used for a nil error.
	ErrorClassUnknown
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassRateLimited:
		return "rate_limited"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify sorts err into an ErrorClass.
//
// Retryable:
//   - per-call deadline exceeded (read timeout)
//   - dial, reset and other transport errors
//
// Rate limited:
//   - HTTP 429
//
// Fatal:
//   - caller cancellation
//   - any other API status (auth, bad request, server errors)
//   - malformed responses and everything unrecognized
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	if errors.Is(err, context.Canceled) {
		return ErrorClassFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassRetryable
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return ErrorClassRateLimited
		}
		return ErrorClassFatal
	}
	if errors.Is(err, ErrMalformedResponse) {
		return ErrorClassFatal
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassRetryable
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return ErrorClassRetryable
	}
	return ErrorClassFatal
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	c := Classify(err)
	return c == ErrorClassRetryable || c == ErrorClassRateLimited
}
