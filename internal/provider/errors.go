package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for provider operations.
var (
	// ErrUpstreamRejected indicates a non-2xx response. Always wrapped by *StatusError.
	ErrUpstreamRejected = errors.New("upstream rejected request")

	// ErrUpstreamTransport indicates the connection failed or broke mid-stream.
	ErrUpstreamTransport = errors.New("upstream transport error")

	// ErrTimeout indicates the upstream did not answer or finish in time.
	ErrTimeout = errors.New("upstream timeout")

	// ErrEmptyReply indicates the stream ended without any content.
	ErrEmptyReply = errors.New("upstream returned an empty reply")
)

// StatusError carries the status and diagnostic body of a rejected request.
type StatusError struct {
	Code int
	Body string
}

// Error renders "<status> <body-or-reason>".
func (e *StatusError) Error() string {
	reason := strings.TrimSpace(e.Body)
	if reason == "" {
		reason = http.StatusText(e.Code)
	}
	return fmt.Sprintf("%d %s", e.Code, reason)
}

// Unwrap lets errors.Is match ErrUpstreamRejected.
func (e *StatusError) Unwrap() error {
	return ErrUpstreamRejected
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Kind returns a short stable label for err, used as a metrics label and
// log attribute.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrUpstreamRejected):
		return "rejected"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUpstreamTransport):
		return "transport"
	case errors.Is(err, ErrEmptyReply):
		return "empty"
	default:
		return "other"
	}
}
