package embedding

import (
	"errors"
	"fmt"
)

// EmbeddingError is a coded embedding failure
type EmbeddingError struct {
	Code    int
	Message string
}

// Error implements error
func (e EmbeddingError) Error() string {
	return fmt.Sprintf("embedding error (code=%d): %s", e.Code, e.Message)
}

// Error codes
const (
	ErrCodeInvalidAPIKey   = 1001
	ErrCodeInvalidRequest  = 1002
	ErrCodeNetworkError    = 1003
	ErrCodeRateLimited     = 1004
	ErrCodeServerError     = 1005
	ErrCodeTimeout         = 1006
	ErrCodeEmptyInput      = 1007
	ErrCodeInvalidResponse = 1008
)

// Error messages
const (
	ErrMsgInvalidAPIKey = "invalid API key"
	ErrMsgEmptyInput    = "input text cannot be empty"
)

var (
	// ErrEmptyText is returned when asked to embed an empty string
	ErrEmptyText = NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	// ErrBatchTooLarge is returned when a batch exceeds the configured size
	ErrBatchTooLarge = errors.New("embedding batch exceeds configured batch size")
)

// NewEmbeddingError creates a coded error
func NewEmbeddingError(code int, message string) EmbeddingError {
	return EmbeddingError{
		Code:    code,
		Message: message,
	}
}
