package transport

import "fmt"

// APIError is returned for any non-2xx response. The raw body is kept so
// callers can surface the server's message without this package guessing
// at its shape.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nocodb: %s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}
