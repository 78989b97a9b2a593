// Package httperrors is the shared handler for failed backend requests.
// It classifies a failure, records it for display, logs and counts it, and
// settles the waiting completion.
package httperrors

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"go.agentconsole.tech/internal/backend"
)

// Kind classifies a failed backend request
type Kind string

const (
	// KindStatus is a response outside the 2xx range
	KindStatus Kind = "status"
	// KindConnection is a transport failure or timeout
	KindConnection Kind = "connection"
	// KindCircuitOpen is a request rejected by the circuit breaker
	KindCircuitOpen Kind = "circuit_open"
	// KindCanceled is a request abandoned by the caller
	KindCanceled Kind = "canceled"
)

// Failure is one recorded backend request failure
type Failure struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	Method       string    `json:"method,omitempty"`
	Path         string    `json:"path,omitempty"`
	StatusCode   int       `json:"statusCode,omitempty"`
	Message      string    `json:"message"`
	Detail       string    `json:"detail,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}

// Classify maps an error returned by the backend client to a Kind
func Classify(err error) Kind {
	if _, ok := backend.IsHTTPError(err); ok {
		return KindStatus
	}
	if errors.Is(err, backend.ErrCircuitOpen) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) {
		return KindCircuitOpen
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindConnection
}

// describe builds the display message for a failure
func describe(kind Kind, err error) (message string, statusCode int, method, path, detail string) {
	switch kind {
	case KindStatus:
		httpErr, _ := backend.IsHTTPError(err)
		text := http.StatusText(httpErr.StatusCode)
		if text == "" {
			text = "Unexpected status"
		}
		return "Request failed with status " + text, httpErr.StatusCode, httpErr.Method, httpErr.Path, httpErr.Body
	case KindCircuitOpen:
		return "Backend is unavailable, requests are paused", 0, "", "", err.Error()
	case KindCanceled:
		return "Request was canceled", 0, "", "", ""
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "Request to backend timed out", 0, "", "", err.Error()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "Request to backend timed out", 0, "", "", err.Error()
		}
		return "Unable to connect to backend", 0, "", "", err.Error()
	}
}

// StatusFor returns the console HTTP status used to report a failure
func StatusFor(f Failure) int {
	switch f.Kind {
	case KindStatus:
		if f.StatusCode >= 400 && f.StatusCode < 500 {
			return f.StatusCode
		}
		return http.StatusBadGateway
	case KindCanceled:
		return 499
	default:
		return http.StatusServiceUnavailable
	}
}

// RequestError is the rejection passed to a completion by the handler
type RequestError struct {
	Failure Failure
	Err     error
}

func (e *RequestError) Error() string { return e.Failure.Message + ": " + e.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }
