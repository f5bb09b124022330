package models

import "errors"

var (
	// ErrRunNotFound is returned for unknown run IDs
	ErrRunNotFound = errors.New("run not found")

	// ErrChatSessionNotFound is returned for unknown chat sessions
	ErrChatSessionNotFound = errors.New("chat session not found")
)
