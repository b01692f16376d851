package hnasapi

import "fmt"

// ConnectionError means the HNAS host could not be reached at all (DNS, TCP,
// TLS). It aborts the whole invocation rather than a single filesystem.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot reach HNAS %s: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthError means the API rejected the configured credentials.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("HNAS rejected credentials (status %d)", e.StatusCode)
}

// APIError is any other non-2xx response from the HNAS API.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("HNAS API %s %s returned status %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// NotFoundError is returned by lookups for resources that do not exist.
type NotFoundError struct{ Resource, ID string }

func (e *NotFoundError) Error() string { return e.Resource + " not found: " + e.ID }

// ConflictError is returned when creating a resource whose name is taken.
type ConflictError struct{ Resource, Name string }

func (e *ConflictError) Error() string { return e.Resource + " conflict: " + e.Name }
