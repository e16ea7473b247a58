package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptySessionID   = errors.New("session id cannot be empty")
	ErrEmptyIntent      = errors.New("intent cannot be empty")
	ErrEmptyUserID      = errors.New("user id cannot be empty")
	ErrEmptyPreference  = errors.New("preference key cannot be empty")
	ErrSessionNotFound  = errors.New("session not found")
	ErrDuplicateTurn    = errors.New("turn already processed")
	ErrProviderNotFound = errors.New("provider not configured")
	ErrNoSearchResults  = errors.New("search returned no results")
)

// ValidationError means a value failed its type or range rules. The same field is
// asked again.
type ValidationError struct {
	Field  FieldName
	Reason string
	Value  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %s", e.Value, e.Field, e.Reason)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field FieldName, reason, value string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Value: value}
}

// AmbiguityError means a location resolved to several codes or only to a fuzzy
// suggestion. It is handled by the ambiguity resolver, never shown as a failure.
type AmbiguityError struct {
	Field      FieldName
	Text       string
	Candidates []Location
	Suggestion string
}

func (e *AmbiguityError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%q for %s did not match, suggestion %q", e.Text, e.Field, e.Suggestion)
	}
	codes := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		codes = append(codes, c.Code)
	}
	return fmt.Sprintf("%q for %s is ambiguous: %s", e.Text, e.Field, strings.Join(codes, ", "))
}

// ServiceError wraps a failed or timed out external call. State is left as it was.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// FlowStateError is an internal invariant violation. It only aborts the current turn.
type FlowStateError struct {
	Op     string
	Detail string
}

func (e *FlowStateError) Error() string {
	return fmt.Sprintf("flow state error in %s: %s", e.Op, e.Detail)
}
