package places

import (
	"errors"
	"fmt"
	"net/http"
)

// Provider outcome sentinels. A *StatusError unwraps to exactly one of them.
var (
	ErrQuotaExceeded     = errors.New("places quota exceeded")
	ErrAuth              = errors.New("places request denied")
	ErrInvalidRequest    = errors.New("places invalid request")
	ErrUnavailable       = errors.New("places temporarily unavailable")
	ErrUnexpectedStatus  = errors.New("places unexpected status")
	ErrMalformedResponse = errors.New("places malformed response")
)

// StatusError describes a failed provider call.
type StatusError struct {
	Endpoint   string
	Status     string
	HTTPStatus int
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("places %s: %v", e.Endpoint, e.Err)
	if e.Status != "" {
		msg += " (status " + e.Status + ")"
	}
	if e.HTTPStatus != 0 {
		msg += fmt.Sprintf(" (http %d)", e.HTTPStatus)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *StatusError) Unwrap() error { return e.Err }

// Retryable reports whether a later run is expected to succeed where this
// call failed.
func Retryable(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrUnavailable)
}

// sentinelForStatus maps a provider status string. OK and ZERO_RESULTS are
// handled by the caller.
func sentinelForStatus(status string) error {
	switch status {
	case "OVER_QUERY_LIMIT", "RESOURCE_EXHAUSTED":
		return ErrQuotaExceeded
	case "REQUEST_DENIED":
		return ErrAuth
	case "INVALID_REQUEST":
		return ErrInvalidRequest
	case "UNKNOWN_ERROR":
		return ErrUnavailable
	default:
		return ErrUnexpectedStatus
	}
}

func sentinelForHTTP(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrAuth
	case code == http.StatusTooManyRequests:
		return ErrQuotaExceeded
	case code >= 500:
		return ErrUnavailable
	default:
		return ErrUnexpectedStatus
	}
}
