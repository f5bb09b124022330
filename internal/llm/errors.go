package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// LLMError is a coded model call failure
type LLMError struct {
	Code    int    // error code
	Message string // error message
}

// Error implements error
func (e LLMError) Error() string {
	return fmt.Sprintf("llm error (code=%d): %s", e.Code, e.Message)
}

// Retryable reports whether repeating the call can succeed
func (e LLMError) Retryable() bool {
	switch e.Code {
	case ErrCodeNetworkError, ErrCodeRateLimited, ErrCodeServerError, ErrCodeTimeout, ErrCodeModelOverload:
		return true
	}
	return false
}

// Error codes
const (
	ErrCodeInvalidAPIKey   = 1001
	ErrCodeInvalidRequest  = 1002
	ErrCodeNetworkError    = 1003
	ErrCodeRateLimited     = 1004
	ErrCodeServerError     = 1005
	ErrCodeTimeout         = 1006
	ErrCodeEmptyPrompt     = 1007
	ErrCodeContentFilter   = 1008
	ErrCodeModelOverload   = 1009
	ErrCodeContextTooLong  = 1010
	ErrCodeInvalidResponse = 1011 // reply missing or not in the requested shape
)

// Error messages
const (
	ErrMsgInvalidAPIKey   = "invalid API key"
	ErrMsgInvalidRequest  = "invalid request parameters"
	ErrMsgRateLimited     = "too many requests, rate limit exceeded"
	ErrMsgServerError     = "server error occurred"
	ErrMsgTimeout         = "request timed out"
	ErrMsgEmptyPrompt     = "prompt cannot be empty"
	ErrMsgNetworkError    = "network connection error"
	ErrMsgModelOverload   = "model is currently overloaded"
	ErrMsgEmptyCompletion = "model returned no choices"
)

// NewLLMError creates a coded error
func NewLLMError(code int, message string) LLMError {
	return LLMError{
		Code:    code,
		Message: message,
	}
}

// WrapError converts err into an LLMError, keeping an existing code
func WrapError(err error, code int) LLMError {
	if err == nil {
		return LLMError{Code: code, Message: "unknown error"}
	}

	var llmErr LLMError
	if errors.As(err, &llmErr) {
		return llmErr
	}

	return LLMError{
		Code:    code,
		Message: err.Error(),
	}
}

// IsRetryable reports whether err is an LLMError worth retrying
func IsRetryable(err error) bool {
	var llmErr LLMError
	if errors.As(err, &llmErr) {
		return llmErr.Retryable()
	}
	return false
}

// codeForStatus maps an HTTP status from the provider to an error code
func codeForStatus(status int) int {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeInvalidAPIKey
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrCodeTimeout
	case status == http.StatusServiceUnavailable:
		return ErrCodeModelOverload
	case status >= 500:
		return ErrCodeServerError
	default:
		return ErrCodeInvalidRequest
	}
}
