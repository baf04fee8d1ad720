package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/oracle/oci-go-sdk/v65/common"
)

// AuthenticationError reports a missing, malformed or unusable credential source
type AuthenticationError struct {
	Source string
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	msg := fmt.Sprintf("authentication failed (%s): %s", e.Source, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// RemoteListError reports a failed OCI listing call
type RemoteListError struct {
	Operation     string
	Category      Category
	CompartmentID string
	Err           error
}

func (e *RemoteListError) Error() string {
	var b strings.Builder
	b.WriteString(e.Operation)
	if e.Category != "" {
		fmt.Fprintf(&b, " [%s]", e.Category)
	}
	if e.CompartmentID != "" {
		fmt.Fprintf(&b, " in %s", e.CompartmentID)
	}
	b.WriteString(" failed: ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *RemoteListError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status of the underlying service error, or 0
func (e *RemoteListError) StatusCode() int {
	return serviceStatus(e.Err)
}

// RenderError reports a diagram that could not be laid out or written
type RenderError struct {
	Title string
	Path  string
	Err   error
}

func (e *RenderError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("render %q to %s: %v", e.Title, e.Path, e.Err)
	}
	return fmt.Sprintf("render %q: %v", e.Title, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// EnvironmentError reports a missing or unusable local prerequisite
type EnvironmentError struct {
	Component string
	Err       error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("environment: %s unavailable: %v", e.Component, e.Err)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// serviceStatus extracts the HTTP status code from an OCI service error
func serviceStatus(err error) int {
	var se common.ServiceError
	if errors.As(err, &se) {
		return se.GetHTTPStatusCode()
	}
	return 0
}

// isRetriableError reports errors that mean "this resource type is not visible here"
// (missing, not authorized). They should not fail the whole run.
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}

	switch serviceStatus(err) {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "NotAuthorized") ||
		strings.Contains(errStr, "Forbidden") ||
		strings.Contains(errStr, "does not exist")
}

// isTransientError checks if the error is transient and should be retried
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if status := serviceStatus(err); status != 0 {
		return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "internal server error")
}
