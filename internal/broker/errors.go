package broker

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotConfigured is returned by every operation when the broker integration is disabled
var ErrNotConfigured = errors.New("whatsapp broker is not configured")

// TimeoutError is returned when a broker request exceeds its deadline
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("broker %s timed out after %s", e.Operation, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// RateLimitedError is returned when the broker answers 429
type RateLimitedError struct {
	Operation  string
	RetryAfter time.Duration
	RequestID  string
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("broker %s rate limited, retry after %s", e.Operation, e.RetryAfter)
	}
	return fmt.Sprintf("broker %s rate limited", e.Operation)
}

// AuthRejectedError is returned when the broker rejects the configured credentials
type AuthRejectedError struct {
	Operation  string
	StatusCode int
	RequestID  string
}

func (e *AuthRejectedError) Error() string {
	return fmt.Sprintf("broker %s rejected credentials (HTTP %d)", e.Operation, e.StatusCode)
}

// Error is a generic broker failure carrying the upstream status and identifiers
type Error struct {
	Operation  string
	StatusCode int
	Code       string
	Message    string
	RequestID  string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("broker %s failed", e.Operation)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsServerError reports whether err is a broker error with a 5xx status
func IsServerError(err error) bool {
	var brokerErr *Error
	if errors.As(err, &brokerErr) {
		return brokerErr.StatusCode >= 500 && brokerErr.StatusCode <= 599
	}
	return false
}

// RequestIDFromError extracts the broker request id carried by a typed error, if any
func RequestIDFromError(err error) string {
	var (
		brokerErr *Error
		rateErr   *RateLimitedError
		authErr   *AuthRejectedError
	)
	switch {
	case errors.As(err, &brokerErr):
		return brokerErr.RequestID
	case errors.As(err, &rateErr):
		return rateErr.RequestID
	case errors.As(err, &authErr):
		return authErr.RequestID
	}
	return ""
}
