package reliability

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Failure reasons used as metric labels.
const (
	ReasonNone        = "none"
	ReasonCanceled    = "canceled"
	ReasonTimeout     = "timeout"
	ReasonRateLimited = "rate_limited"
	ReasonServer      = "server_error"
	ReasonClient      = "client_error"
	ReasonNetwork     = "network"
	ReasonEmpty       = "empty_response"
	ReasonOther       = "other"
)

// ErrEmptyResponse marks a backend call that succeeded but produced no text.
var ErrEmptyResponse = errors.New("empty response")

// StatusError carries an upstream HTTP status through error wrapping.
type StatusError struct {
	Backend string
	Code    int
	Err     error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: status %d", e.Backend, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %v", e.Backend, e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// IsRetryableHTTPStatus classifies transient HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Classify maps a backend error to a stable reason label.
func Classify(err error) string {
	if err == nil {
		return ReasonNone
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	if errors.Is(err, ErrEmptyResponse) {
		return ReasonEmpty
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == 429:
			return ReasonRateLimited
		case IsRetryableHTTPStatus(statusErr.Code) || statusErr.Code >= 500:
			return ReasonServer
		case statusErr.Code >= 400:
			return ReasonClient
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ReasonTimeout
		}
		return ReasonNetwork
	}
	return ReasonOther
}
