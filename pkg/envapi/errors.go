package envapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidVariable marks a key or value the service would reject
var ErrInvalidVariable = errors.New("invalid variable")

// APIError is a non-2xx response from the service API
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	// Message is the service's "error" field when the body carried one
	Message string
	Body    string
}

func (e *APIError) Error() string {
	detail := e.Message
	if detail == "" {
		detail = e.Body
	}
	if detail == "" {
		detail = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.URL, e.StatusCode, detail)
}

// IsNotFound reports whether err is a 404 from the service
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether the service rejected the API key or its permissions
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}
