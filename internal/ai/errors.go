package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// StatusError is returned by providers when the backend answers with a
// non-success status code.
type StatusError struct {
	Provider string
	Code     int
	Err      error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s api returned status %d: %v", e.Provider, e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	switch e.Code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsRetryable classifies generator errors for WithRetry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
