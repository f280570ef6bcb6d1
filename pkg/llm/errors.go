package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies LLM failures.
type ErrorType string

const (
	ErrorTypeEndpoint    ErrorType = "endpoint"    // unreachable, timeouts, 5xx
	ErrorTypeAuth        ErrorType = "auth"        // bad or missing key
	ErrorTypeModel       ErrorType = "model"       // unknown model or unsupported operation
	ErrorTypeResponse    ErrorType = "response"    // reply could not be used
	ErrorTypeUnavailable ErrorType = "unavailable" // circuit open or no client configured
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a structured LLM error with classification.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int    // HTTP status code if applicable
	Model      string // Model name if known
	Endpoint   string // Endpoint URL if known
}

// Error implements the error interface.
func (e *Error) Error() string {
	parts := []string{string(e.Type)}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	parts = append(parts, e.Message)

	msg := strings.Join(parts, " ")
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewErrorWithContext creates a new structured LLM error with additional context.
func NewErrorWithContext(errType ErrorType, message string, retryable bool, cause error, model, endpoint string, statusCode int) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		Retryable:  retryable,
		Cause:      cause,
		Model:      model,
		Endpoint:   endpoint,
		StatusCode: statusCode,
	}
}

type classifyRule struct {
	match     func(raw, lower string) bool
	errType   ErrorType
	message   string
	retryable bool
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Rules are checked in order; the first match wins.
var classifyRules = []classifyRule{
	{
		match:   func(raw, lower string) bool { return containsAny(raw, "401") || containsAny(lower, "unauthorized", "invalid api key", "authentication") },
		errType: ErrorTypeAuth, message: "authentication failed",
	},
	{
		match: func(raw, lower string) bool {
			return strings.Contains(lower, "model") && containsAny(lower, "not found", "does not exist")
		},
		errType: ErrorTypeModel, message: "model not found",
	},
	{
		match:   func(raw, lower string) bool { return strings.Contains(raw, "404") },
		errType: ErrorTypeEndpoint, message: "endpoint not found",
	},
	{
		match:   func(raw, lower string) bool { return containsAny(lower, "connection refused", "no such host") },
		errType: ErrorTypeEndpoint, message: "connection failed", retryable: true,
	},
	{
		match:   func(raw, lower string) bool { return containsAny(lower, "timeout", "deadline exceeded") },
		errType: ErrorTypeEndpoint, message: "request timeout", retryable: true,
	},
	{
		match:   func(raw, lower string) bool { return strings.Contains(raw, "429") || containsAny(lower, "rate limit", "overloaded") },
		errType: ErrorTypeEndpoint, message: "rate limited", retryable: true,
	},
	{
		match:   func(raw, lower string) bool { return containsAny(raw, "500", "502", "503", "504", "529") },
		errType: ErrorTypeEndpoint, message: "server error", retryable: true,
	},
}

// ClassifyError categorizes an error and returns a structured Error.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	raw := err.Error()
	lower := strings.ToLower(raw)

	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504, 529} {
		if strings.Contains(raw, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	for _, rule := range classifyRules {
		if rule.match(raw, lower) {
			out := NewError(rule.errType, rule.message, rule.retryable, err)
			out.StatusCode = statusCode
			return out
		}
	}

	out := NewError(ErrorTypeUnknown, "llm error", false, err)
	out.StatusCode = statusCode
	return out
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}
