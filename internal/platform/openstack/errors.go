package openstack

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication is returned when the identity service response
	// carries no X-Subject-Token header.
	ErrAuthentication = errors.New("authentication failed")

	// ErrDecode wraps failures to encode a request or decode a response body.
	ErrDecode = errors.New("failed to decode response")

	// ErrNoAddress is returned when a server has no address on the
	// external network.
	ErrNoAddress = errors.New("server has no address on the external network")
)

// StatusError reports a response whose status differs from the expected one.
type StatusError struct {
	Method   string
	URL      string
	Expected int
	Actual   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: expected status %d, got %d: %s", e.Method, e.URL, e.Expected, e.Actual, e.Body)
}

// IsStatus reports whether err is a *StatusError with the given actual code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Actual == code
	}
	return false
}

// IsNotFound reports whether the API answered 404.
func IsNotFound(err error) bool {
	return IsStatus(err, 404)
}
