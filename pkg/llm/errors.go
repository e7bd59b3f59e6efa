// Package llm wraps the generative-AI backend used by the report pipeline:
// a provider-neutral request type, error classification and a rate-limit aware caller.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"google.golang.org/genai"
)

// ErrorType classifies backend failures for retry decisions.
type ErrorType int8

const (
	// ErrorTypeRateLimit is a quota or throttling failure (429, RESOURCE_EXHAUSTED).
	// It stops the whole run.
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient covers 5xx, timeouts and dropped connections.
	ErrorTypeTransient
	// ErrorTypeEmptyResponse is a successful call that produced no text.
	ErrorTypeEmptyResponse
	// ErrorTypeAuth is a rejected credential (401/403).
	ErrorTypeAuth
	// ErrorTypeBadPrompt is a request the backend refuses to process (400).
	ErrorTypeBadPrompt
	// ErrorTypeUnknown is anything not classified above.
	ErrorTypeUnknown
	// ErrorTypeExhausted is returned by the Caller once every retry failed.
	ErrorTypeExhausted
)

func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	case ErrorTypeExhausted:
		return "exhausted"
	default:
		return "invalid"
	}
}

// Retryable reports whether another attempt may succeed.
func (et ErrorType) Retryable() bool {
	return et == ErrorTypeTransient || et == ErrorTypeEmptyResponse || et == ErrorTypeUnknown
}

// Error is a classified backend error.
type Error struct {
	Err        error
	Message    string
	Type       ErrorType
	StatusCode int
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("llm error (%s): %s", e.Type, e.Message)
	}

	if e.Err != nil {
		return fmt.Sprintf("llm error (%s): %v", e.Type, e.Err)
	}

	return fmt.Sprintf("llm error (%s)", e.Type)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(errType ErrorType, message string) *Error {
	return &Error{Type: errType, Message: message}
}

// Wrap classifies err and wraps it. An err that is already an *Error is returned as is.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	errType, status := classify(err)

	return &Error{Err: err, Type: errType, StatusCode: status}
}

// TypeOf returns the classification of err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}

	errType, _ := classify(err)

	return errType
}

// Is reports whether err is classified as errType.
func Is(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	return TypeOf(err) == errType
}

// IsRateLimit reports whether err means the backend quota is exhausted.
func IsRateLimit(err error) bool {
	return Is(err, ErrorTypeRateLimit)
}

// Status codes only match as whole words so "5000 tokens" stays unclassified.
var (
	rateLimitPattern = regexp.MustCompile(`(?i)\b429\b|rate ?limit|quota|resource[ _]exhausted|too many requests`)
	transientPattern = regexp.MustCompile(`(?i)\b50[0234]\b|\beof\b|timeout|timed out|deadline exceeded|connection (reset|refused)|\bunavailable\b|broken pipe`)
)

func classify(err error) (ErrorType, int) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, apiErr.Status+" "+apiErr.Message), apiErr.Code
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTransient, 0
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTypeTransient, 0
	}

	return classifyMessage(err.Error()), 0
}

func classifyStatus(code int, message string) ErrorType {
	switch {
	case code == 429:
		return ErrorTypeRateLimit
	case code == 401 || code == 403:
		return ErrorTypeAuth
	case code == 400:
		if rateLimitPattern.MatchString(message) {
			return ErrorTypeRateLimit
		}

		return ErrorTypeBadPrompt
	case code >= 500:
		return ErrorTypeTransient
	default:
		return classifyMessage(message)
	}
}

func classifyMessage(message string) ErrorType {
	lower := strings.ToLower(message)

	switch {
	case rateLimitPattern.MatchString(message):
		return ErrorTypeRateLimit
	case transientPattern.MatchString(message):
		return ErrorTypeTransient
	case strings.Contains(lower, "api key") || strings.Contains(lower, "permission denied") || strings.Contains(lower, "unauthenticated"):
		return ErrorTypeAuth
	default:
		return ErrorTypeUnknown
	}
}
