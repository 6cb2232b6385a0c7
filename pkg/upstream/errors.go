package upstream

import (
	"fmt"
)

// ErrorClass represents a classification of upstream call failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassThrottle represents 429 call-limit errors.
	ErrorClassThrottle ErrorClass = "throttle"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// UpstreamError represents a failed admin API call with enough context for
// callers to decide how to surface it. Callers never retry; the aggregation
// and mutation contracts are stop-the-world on any upstream failure.
type UpstreamError struct {
	StatusCode int
	ErrorClass ErrorClass
	Method     string
	Path       string
	Body       []byte
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error: %s %s: %v",
			e.ErrorClass, e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("upstream %s error (status %d): %s %s",
		e.ErrorClass, e.StatusCode, e.Method, e.Path)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// classifyStatus categorizes an HTTP status for observability and handling.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassThrottle
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
