package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrServiceUnavailable = errors.New("ai service unavailable")
	ErrRateLimited        = errors.New("ai rate limit exceeded")
	ErrMalformedResponse  = errors.New("malformed ai response")
	ErrTimeout            = errors.New("ai request timed out")
	ErrTransport          = errors.New("ai request failed")
	ErrVisionFailed       = errors.New("vision analysis failed")
)

// APIError is a vendor error response other than 429 and 502.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ai api error (status %d): %s", e.Status, e.Message)
}

// statusError maps a non-200 vendor status to an error kind.
func statusError(status int, message string) error {
	switch status {
	case http.StatusBadGateway:
		return ErrServiceUnavailable
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &APIError{Status: status, Message: message}
}

// transportError classifies a failure to get any response at all.
func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}
