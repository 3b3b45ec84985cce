// Package models defines the core data structures for InterviewPipe.
//
// It includes the conversation session, booking, candidate and platform types
// shared between the store, flow and api modules.
package models

import (
	"errors"
)

// Validation constants for input validation
const (
	// MaxMessageBodyLength defines the maximum inbound body length processed by the flow
	MaxMessageBodyLength = 4096
	// MaxCancelReasonLength defines the maximum length of a booking cancellation reason
	MaxCancelReasonLength = 500
)

// Error variables for better error handling and testability
var (
	ErrEmptyRecipient       = errors.New("recipient cannot be empty")
	ErrEmptySubject         = errors.New("subject id cannot be empty")
	ErrSessionNotFound      = errors.New("session not found")
	ErrCandidateNotFound    = errors.New("candidate not found")
	ErrCandidateUnavailable = errors.New("candidate is not available")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrPlatformNotFound     = errors.New("platform not found")
	ErrIncompleteContext    = errors.New("booking context is incomplete")
	ErrInvalidTransition    = errors.New("invalid booking status transition")
	ErrInvalidScheduleTime  = errors.New("invalid schedule time")
	ErrCancelReasonTooLong  = errors.New("cancel reason exceeds maximum length")
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
