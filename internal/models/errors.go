package models

import (
	"fmt"
	"net/http"
)

// APIError represents an error response returned from the administrative
// endpoints. It implements the error interface and carries the HTTP status
// code to respond with. Infrastructure failures (store unavailable, job
// wiring problems) are deliberately NOT modeled here: those degrade softly
// inside the components and never reach an end user as an error body.
type APIError struct {
	// Code is the machine-readable error code (e.g. "missing_parameter").
	Code string `json:"error"`
	// Description provides additional human-readable error information.
	Description string `json:"error_description,omitempty"`
	// StatusCode is the HTTP status code to return (excluded from JSON).
	StatusCode int `json:"-"`
}

// Error returns a string representation of the API error.
// It implements the error interface.
func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// WithDescription sets the error_description field and returns the error
// for chaining.
func (e *APIError) WithDescription(description string) *APIError {
	e.Description = description
	return e
}

// NewMissingParameter creates an APIError for an administrative request that
// omits a required parameter (e.g. a key or pattern). Returns HTTP 400.
func NewMissingParameter(name string) *APIError {
	return &APIError{
		Code:        "missing_parameter",
		Description: fmt.Sprintf("required parameter %q is missing", name),
		StatusCode:  http.StatusBadRequest,
	}
}

// NewInvalidParameter creates an APIError for a parameter that is present
// but malformed. Returns HTTP 400.
func NewInvalidParameter(name, reason string) *APIError {
	return &APIError{
		Code:        "invalid_parameter",
		Description: fmt.Sprintf("parameter %q is invalid: %s", name, reason),
		StatusCode:  http.StatusBadRequest,
	}
}

// NewNotFound creates an APIError for a requested entry that does not exist.
// Absence is distinct from an empty stored value. Returns HTTP 404.
func NewNotFound(what string) *APIError {
	return &APIError{
		Code:        "not_found",
		Description: what + " not found",
		StatusCode:  http.StatusNotFound,
	}
}

// NewJobError creates an APIError for a manually triggered job whose action
// failed. Scheduled occurrences log and continue; only the out-of-band
// trigger surfaces the failure to the caller. Returns HTTP 500.
func NewJobError(jobName string, err error) *APIError {
	return &APIError{
		Code:        "job_error",
		Description: fmt.Sprintf("job %q failed: %v", jobName, err),
		StatusCode:  http.StatusInternalServerError,
	}
}

// ErrUnknownJob indicates a trigger request for a job name that is not
// registered with the scheduler. Returns HTTP 404.
var ErrUnknownJob = &APIError{
	Code:       "unknown_job",
	StatusCode: http.StatusNotFound,
}
