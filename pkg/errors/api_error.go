package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// APIError describes a controller call that did not succeed: either an HTTP
// error status, a transport failure after the retry budget, or a 2xx body
// that reports status "failed".
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       []byte
	Attempts   int
	Duration   time.Duration
	// ErrorCode and Message are extracted from the controller error body
	ErrorCode string
	Message   string
	// ControllerFailed is set when the body carried status "failed"
	ControllerFailed bool
	// Payload is the decoded response body when it was JSON
	Payload interface{}
	Err     error
}

// NewAPIError creates an APIError for a completed request
func NewAPIError(method, url string, statusCode int, status string, body []byte, attempts int, duration time.Duration, err error) *APIError {
	return &APIError{
		Method:     method,
		URL:        url,
		StatusCode: statusCode,
		Status:     status,
		Body:       body,
		Attempts:   attempts,
		Duration:   duration,
		Err:        err,
	}
}

func (e *APIError) Error() string {
	switch {
	case e.ControllerFailed:
		return fmt.Sprintf("%s %s reported failure: %s", e.Method, e.URL, e.Message)
	case e.StatusCode > 0 && e.Message != "":
		return fmt.Sprintf("%s %s returned %d %s: %s (attempts=%d)", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Message, e.Attempts)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s %s returned %d %s (attempts=%d)", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Attempts)
	case e.Err != nil:
		return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Method, e.URL, e.Attempts, e.Err)
	default:
		return fmt.Sprintf("%s %s failed after %d attempt(s)", e.Method, e.URL, e.Attempts)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500
}

func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

func (e *APIError) IsForbidden() bool {
	return e.StatusCode == http.StatusForbidden
}

func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsControllerFailure reports a body-level status "failed"
func (e *APIError) IsControllerFailure() bool {
	return e.ControllerFailed
}

// IsAPIError unwraps err into an *APIError
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
