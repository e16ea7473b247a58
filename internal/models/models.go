// Package models defines the core data structures for TripPipe.
//
// It includes the inbound turn, outbound directives, booking requests and the
// API response envelope, which are shared across modules.
package models

import (
	"strings"
	"time"
)

// Entity is one typed value extracted from an utterance.
type Entity struct {
	Type    EntityType `json:"type" validate:"required"`
	Value   string     `json:"value"`
	Role    string     `json:"role,omitempty"`
	Ordinal string     `json:"ordinal,omitempty"`
}

// Turn is one inbound user turn after language understanding.
type Turn struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	TurnID    string    `json:"turn_id,omitempty"`
	Intent    string    `json:"intent"`
	Entities  []Entity  `json:"entities,omitempty"`
	Received  time.Time `json:"received"`
}

// Intents splits a multi-intent label such as "help+inform".
func (t Turn) Intents() []Intent {
	parts := strings.Split(t.Intent, "+")
	out := make([]Intent, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToLower(p))
		if p != "" {
			out = append(out, Intent(p))
		}
	}
	return out
}

// HasIntent reports whether any part of the label equals i.
func (t Turn) HasIntent(i Intent) bool {
	for _, got := range t.Intents() {
		if got == i {
			return true
		}
	}
	return false
}

// EntitiesOf returns the entities of one type, in utterance order.
func (t Turn) EntitiesOf(typ EntityType) []Entity {
	var out []Entity
	for _, e := range t.Entities {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Validate checks the fields every turn needs.
func (t Turn) Validate() error {
	if t.SessionID == "" {
		return ErrEmptySessionID
	}
	if len(t.Intents()) == 0 {
		return ErrEmptyIntent
	}
	return nil
}

// TurnRequest is the body of POST /sessions/{id}/turns.
type TurnRequest struct {
	UserID   string   `json:"user_id,omitempty" validate:"omitempty,max=128"`
	TurnID   string   `json:"turn_id,omitempty" validate:"omitempty,max=128"`
	Intent   string   `json:"intent" validate:"required,max=128"`
	Entities []Entity `json:"entities,omitempty" validate:"omitempty,dive"`
}

// MessageRequest is the body of POST /sessions/{id}/messages.
type MessageRequest struct {
	UserID string `json:"user_id,omitempty" validate:"omitempty,max=128"`
	TurnID string `json:"turn_id,omitempty" validate:"omitempty,max=128"`
	Text   string `json:"text" validate:"required,max=2000"`
}

// PreferenceRequest is the body of PUT /users/{id}/preferences/{key}.
type PreferenceRequest struct {
	Value string `json:"value" validate:"required,max=256"`
}

// TurnResult is what the controller returns for one turn.
type TurnResult struct {
	SessionID  string      `json:"session_id"`
	Directives []Directive `json:"directives"`
	Flow       FlowKind    `json:"flow,omitempty"`
	Stage      StageType   `json:"stage,omitempty"`
	Pending    FieldName   `json:"pending_field,omitempty"`
}

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
