package reliability

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Error classes used as metric labels.
const (
	ClassRateLimited    = "rate_limited"
	ClassUnavailable    = "unavailable"
	ClassTimeout        = "timeout"
	ClassAuth           = "auth"
	ClassInvalidRequest = "invalid_request"
	ClassCanceled       = "canceled"
	ClassUnknown        = "unknown"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Classify maps a backend failure to a coarse class. status is the HTTP
// status the backend answered with, or 0 when none is known.
func Classify(err error, status int) string {
	if err == nil {
		return ""
	}
	switch {
	case status == 429:
		return ClassRateLimited
	case status == 401 || status == 403:
		return ClassAuth
	case status == 408:
		return ClassTimeout
	case IsRetryableHTTPStatus(status):
		return ClassUnavailable
	case status >= 400 && status < 500:
		return ClassInvalidRequest
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassUnavailable
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "rate_limit"):
		return ClassRateLimited
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline"):
		return ClassTimeout
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "overloaded"):
		return ClassUnavailable
	}
	return ClassUnknown
}

// IsRetryable reports whether a failure of this class is worth handing to
// a fallback backend.
func IsRetryable(class string) bool {
	switch class {
	case ClassRateLimited, ClassUnavailable, ClassTimeout, ClassUnknown:
		return true
	default:
		return false
	}
}
