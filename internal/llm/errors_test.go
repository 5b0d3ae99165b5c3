package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type connRefusedErr struct{}

func (connRefusedErr) Error() string   { return "connection refused" }
func (connRefusedErr) Timeout() bool   { return false }
func (connRefusedErr) Temporary() bool { return false }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"unauthorized", &APIError{Provider: "openai", StatusCode: 401}, ErrorAuthentication},
		{"forbidden", &APIError{Provider: "openai", StatusCode: 403}, ErrorAuthentication},
		{"rate limited", &APIError{Provider: "openai", StatusCode: 429, Body: "rate limit exceeded"}, ErrorRateLimit},
		{"quota exhausted", &APIError{Provider: "openai", StatusCode: 429, Body: "you exceeded your current quota"}, ErrorQuota},
		{"bad request", &APIError{Provider: "anthropic", StatusCode: 400}, ErrorInvalidRequest},
		{"not found", &APIError{Provider: "ollama", StatusCode: 404}, ErrorInvalidRequest},
		{"server error", &APIError{Provider: "ollama", StatusCode: 500}, ErrorServer},
		{"bad gateway", &APIError{Provider: "openai", StatusCode: 502}, ErrorServer},
		{"parse failure", &ParseError{Provider: "ollama", Err: errors.New("unexpected EOF")}, ErrorParse},
		{"wrapped parse failure", fmt.Errorf("chat: %w", &ParseError{Provider: "openai", Err: errors.New("no choices")}), ErrorParse},
		{"deadline", context.DeadlineExceeded, ErrorTimeout},
		{"net timeout", timeoutErr{}, ErrorTimeout},
		{"conn refused", connRefusedErr{}, ErrorNetwork},
		{"unknown", errors.New("something else"), ErrorUnknown},
		{"nil", nil, ErrorKind("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{ErrorAuthentication, false},
		{ErrorParse, false},
		{ErrorInvalidRequest, false},
		{ErrorRateLimit, true},
		{ErrorServer, true},
		{ErrorNetwork, true},
		{ErrorTimeout, true},
		{ErrorQuota, true},
		{ErrorUnknown, true},
	}

	for _, tt := range tests {
		if got := Retryable(tt.kind); got != tt.want {
			t.Errorf("Retryable(%q) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
