// Package models defines the core data structures for the MSI-A intake service.
//
// It includes the field catalog types used by the collection engine, the per-conversation
// checkpoint state, escalation records, and the shared API response envelope.
package models

import (
	"errors"
)

// Validation constants for catalog and inbound payloads
const (
	// MaxFieldKeyLength defines the maximum allowed length for a field key
	MaxFieldKeyLength = 64
	// MaxMessageLength defines the maximum inbound message length kept in history
	MaxMessageLength = 4096
	// MaxHistoryMessages bounds the rolling message history kept in ConversationState
	MaxHistoryMessages = 40
)

// Error variables for better error handling and testability
var (
	ErrEmptyConversationID  = errors.New("conversation id cannot be empty")
	ErrEmptyFieldKey        = errors.New("field key cannot be empty")
	ErrFieldKeyTooLong      = errors.New("field key exceeds maximum length")
	ErrDuplicateFieldKey    = errors.New("duplicate field key")
	ErrDanglingDependency   = errors.New("dependency references unknown field")
	ErrSelfDependency       = errors.New("field cannot depend on itself")
	ErrDependencyCycle      = errors.New("field dependencies form a cycle")
	ErrUnknownElement       = errors.New("unknown catalog element")
	ErrInvalidFieldType     = errors.New("invalid field type")
	ErrMissingChoices       = errors.New("choice field requires options")
	ErrInvalidStatus        = errors.New("invalid escalation status")
	ErrInvalidTransition    = errors.New("invalid escalation status transition")
	ErrEscalationNotFound   = errors.New("escalation not found")
	ErrNonNumericChannelID  = errors.New("conversation id is not a numeric channel id")
	ErrUnsupportedOperator  = errors.New("unsupported dependency operator")
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusIgnored indicates the request was accepted but intentionally not processed.
	APIStatusIgnored APIStatus = "ignored"
)

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

// Ignored creates a response for webhook events that were accepted but skipped.
func Ignored(reason string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusIgnored).
		WithMessage(reason).
		Build()
}
