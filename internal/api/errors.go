package api

import (
	"encoding/json"
	"net/http"

	"github.com/portfolio-tracker/internal/errors"
)

// APIError is the JSON shape of one error
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeUpstream      = "UPSTREAM_ERROR"
	ErrCodeRefreshBusy   = "REFRESH_IN_PROGRESS"
)

// mapRefreshError maps a categorized refresh error to an HTTP status.
func mapRefreshError(err error) (int, string, string) {
	if catErr, ok := err.(*errors.CategorizedError); ok {
		switch catErr.Category {
		case errors.CategoryInvalidAddress:
			return http.StatusBadRequest, ErrCodeInvalidInput, catErr.Message
		case errors.CategoryUpstream, errors.CategoryRPC, errors.CategoryFormat, errors.CategoryTotalFailure:
			return http.StatusBadGateway, ErrCodeUpstream, catErr.Message
		}
	}
	return http.StatusInternalServerError, ErrCodeInternalError, err.Error()
}
