package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/sony/gobreaker"
)

// ErrorKind classifies provider failures for retry and reporting decisions.
type ErrorKind string

const (
	ErrorAuthentication ErrorKind = "authentication"
	ErrorRateLimit      ErrorKind = "rate_limit"
	ErrorServer         ErrorKind = "server"
	ErrorNetwork        ErrorKind = "network"
	ErrorTimeout        ErrorKind = "timeout"
	ErrorParse          ErrorKind = "parse"
	ErrorQuota          ErrorKind = "quota"
	ErrorInvalidRequest ErrorKind = "invalid_request"
	ErrorUnknown        ErrorKind = "unknown"
)

// APIError is a non-2xx HTTP response from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// ParseError is a response the client could not decode.
type ParseError struct {
	Provider string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s parse error: %v", e.Provider, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Classify maps a provider error to its ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return ErrorAuthentication
		case apiErr.StatusCode == 429:
			body := strings.ToLower(apiErr.Body)
			if strings.Contains(body, "quota") || strings.Contains(body, "billing") {
				return ErrorQuota
			}
			return ErrorRateLimit
		case apiErr.StatusCode == 400 || apiErr.StatusCode == 404 ||
			apiErr.StatusCode == 405 || apiErr.StatusCode == 422:
			return ErrorInvalidRequest
		case apiErr.StatusCode >= 500:
			return ErrorServer
		default:
			return ErrorUnknown
		}
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return ErrorParse
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTimeout
		}
		return ErrorNetwork
	}

	// A tripped breaker means the provider is benched, not that the request
	// itself was malformed.
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrorNetwork
	}

	if errors.Is(err, context.Canceled) {
		return ErrorTimeout
	}

	return ErrorUnknown
}

// Retryable reports whether an error of the given kind is worth retrying.
// Authentication, parse and invalid-request failures never improve on retry.
func Retryable(kind ErrorKind) bool {
	switch kind {
	case ErrorAuthentication, ErrorParse, ErrorInvalidRequest:
		return false
	default:
		return true
	}
}
