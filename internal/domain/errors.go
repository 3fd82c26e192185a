package domain

import "errors"

// ErrValidation rejects a send with a missing or empty sender/receiver
// before anything is persisted. Not retryable as-is.
var ErrValidation = errors.New("sender and receiver are required")

// APIResponse is the envelope for all request/response payloads.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
