// Package errors defines the error taxonomy for portfolio refreshes.
package errors

import (
	"fmt"
	"strings"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryInvalidAddress represents local wallet validation failures (no network attempted)
	CategoryInvalidAddress ErrorCategory = "invalid_address"
	// CategoryUpstream represents non-2xx responses from the data API
	CategoryUpstream ErrorCategory = "upstream"
	// CategoryRPC represents JSON-RPC error envelopes from the Polygon node
	CategoryRPC ErrorCategory = "rpc"
	// CategoryFormat represents malformed or unexpected payload shapes
	CategoryFormat ErrorCategory = "format"
	// CategoryPartialFailure represents refreshes where some but not all fetchers failed
	CategoryPartialFailure ErrorCategory = "partial_failure"
	// CategoryTotalFailure represents refreshes where every fetcher failed
	CategoryTotalFailure ErrorCategory = "total_failure"
)

// CategorizedError represents an error with category and machine-readable code
type CategorizedError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// NewInvalidAddressError creates an invalid wallet address error
func NewInvalidAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryInvalidAddress,
		Code:     "INVALID_ADDRESS",
		Message:  "No valid 0x address set.",
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// NewUpstreamError creates an error for a non-2xx HTTP status from an upstream endpoint
func NewUpstreamError(request string, status int) *CategorizedError {
	return &CategorizedError{
		Category: CategoryUpstream,
		Code:     "UPSTREAM_ERROR",
		Message:  fmt.Sprintf("%s failed with HTTP %d", request, status),
		Details: map[string]interface{}{
			"request": request,
			"status":  status,
		},
	}
}

// NewTransportError creates an error for a request that never produced a response
func NewTransportError(request string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryUpstream,
		Code:     "TRANSPORT_ERROR",
		Message:  fmt.Sprintf("%s failed", request),
		Cause:    cause,
		Details: map[string]interface{}{
			"request": request,
		},
	}
}

// NewRPCError creates an error for a JSON-RPC level error response
func NewRPCError(message string, cause error) *CategorizedError {
	if message == "" {
		message = "Polygon RPC error"
	}
	return &CategorizedError{
		Category: CategoryRPC,
		Code:     "RPC_ERROR",
		Message:  message,
		Cause:    cause,
	}
}

// NewFormatError creates an error for an unexpected payload shape
func NewFormatError(message string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryFormat,
		Code:     "FORMAT_ERROR",
		Message:  message,
	}
}

// NewPartialFailureError creates a non-fatal error summarizing the fetchers that failed.
// The refresh still succeeds with the available subset; the message is surfaced as a warning.
func NewPartialFailureError(reasons []string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryPartialFailure,
		Code:     "PARTIAL_FAILURE",
		Message:  strings.Join(reasons, "; "),
		Details: map[string]interface{}{
			"failedCount": len(reasons),
		},
	}
}

// NewTotalFailureError creates an error for a refresh where every fetcher failed
func NewTotalFailureError(reasons []string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryTotalFailure,
		Code:     "TOTAL_FAILURE",
		Message:  strings.Join(reasons, "; "),
		Details: map[string]interface{}{
			"failedCount": len(reasons),
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	if catErr, ok := err.(*CategorizedError); ok {
		return catErr
	}

	return &CategorizedError{
		Category: CategoryUpstream,
		Code:     "UNEXPECTED_ERROR",
		Message:  "unexpected error",
		Cause:    err,
	}
}

// Is reports whether err belongs to the given category
func Is(err error, category ErrorCategory) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.Category == category
}

// IsRetryable determines if an error is worth retrying on a later refresh tick
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryUpstream, CategoryRPC, CategoryPartialFailure, CategoryTotalFailure:
		return true
	default:
		// Invalid addresses and malformed payloads will not fix themselves
		return false
	}
}
