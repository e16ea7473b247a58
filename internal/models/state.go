// Package models defines state management structures for TripPipe conversations.
package models

import "time"

// Location is a resolved place: a display name and its canonical code.
type Location struct {
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

// Value is the content of one collected field. Only the members meaningful for the
// field are set.
type Value struct {
	Text     string     `json:"text,omitempty"`
	Number   int        `json:"number,omitempty"`
	Code     string     `json:"code,omitempty"`
	Items    []Location `json:"items,omitempty"`
	Flag     *bool      `json:"flag,omitempty"`
	Declined bool       `json:"declined,omitempty"`
}

// TextValue wraps a plain string.
func TextValue(s string) Value { return Value{Text: s} }

// NumberValue wraps an integer.
func NumberValue(n int) Value { return Value{Number: n} }

// LocationValue wraps a resolved location.
func LocationValue(loc Location) Value { return Value{Text: loc.Name, Code: loc.Code} }

// FlagValue wraps a yes/no answer.
func FlagValue(b bool) Value { return Value{Flag: &b} }

// DeclinedValue marks an optional field the user chose to skip.
func DeclinedValue() Value { return Value{Declined: true} }

// Location returns the value as a Location.
func (v Value) Location() Location { return Location{Name: v.Text, Code: v.Code} }

// AmbiguousLocationContext is open while the user picks one of several codes.
type AmbiguousLocationContext struct {
	OriginalText string     `json:"original_text"`
	Candidates   []Location `json:"candidates"`
	TargetField  FieldName  `json:"target_field"`
	TargetIndex  int        `json:"target_index"` // itinerary slot, -1 appends
}

// SuggestedCorrection is open while the user confirms a typo suggestion.
type SuggestedCorrection struct {
	TypedText     string    `json:"typed_text"`
	SuggestedText string    `json:"suggested_text"`
	TargetField   FieldName `json:"target_field"`
	TargetIndex   int       `json:"target_index"`
}

// SuspendedFlow is a snapshot taken when a side conversation interrupts a flow.
// Collected shares the map with the owning ConversationState.
type SuspendedFlow struct {
	Flow         FlowKind            `json:"flow"`
	Collected    map[FieldName]Value `json:"-"`
	PendingField FieldName           `json:"pending_field,omitempty"`
	Stage        StageType           `json:"stage,omitempty"`
	Reason       Intent              `json:"reason"`
	SuspendedAt  time.Time           `json:"suspended_at"`
}

// FollowUpOffer is the booking offered after a completed flow, kept for one turn.
type FollowUpOffer struct {
	Flow        FlowKind `json:"flow"`
	Destination string   `json:"destination,omitempty"`
}

// ConversationState is the complete dialogue state of one session.
type ConversationState struct {
	SessionID           string                    `json:"session_id"`
	UserID              string                    `json:"user_id"`
	ActiveFlow          FlowKind                  `json:"active_flow,omitempty"`
	Stage               StageType                 `json:"stage,omitempty"`
	Collected           map[FieldName]Value       `json:"collected"`
	FieldOrder          []FieldName               `json:"field_order"`
	PendingField        FieldName                 `json:"pending_field,omitempty"`
	InterruptionStack   []SuspendedFlow           `json:"interruption_stack,omitempty"`
	CancellationPending bool                      `json:"cancellation_pending,omitempty"`
	Ambiguity           *AmbiguousLocationContext `json:"ambiguity,omitempty"`
	Suggestion          *SuggestedCorrection      `json:"suggestion,omitempty"`
	Results             []BookingOption           `json:"results,omitempty"`
	Selected            *BookingOption            `json:"selected,omitempty"`
	Offer               *FollowUpOffer            `json:"offer,omitempty"`
	CreatedAt           time.Time                 `json:"created_at"`
	UpdatedAt           time.Time                 `json:"updated_at"`
}

// NewConversationState creates an empty state for a session.
func NewConversationState(sessionID, userID string) *ConversationState {
	if userID == "" {
		userID = sessionID
	}
	now := time.Now()
	return &ConversationState{
		SessionID: sessionID,
		UserID:    userID,
		Collected: make(map[FieldName]Value),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Has reports whether the field holds a value.
func (s *ConversationState) Has(f FieldName) bool {
	_, ok := s.Collected[f]
	return ok
}

// Get returns the value of a field.
func (s *ConversationState) Get(f FieldName) (Value, bool) {
	v, ok := s.Collected[f]
	return v, ok
}

// Itinerary returns the ordered multi-city stops.
func (s *ConversationState) Itinerary() []Location {
	return s.Collected[FieldDestinations].Items
}

// HasOpenContext reports whether an ambiguity or suggestion is awaiting an answer.
func (s *ConversationState) HasOpenContext() bool {
	return s.Ambiguity != nil || s.Suggestion != nil
}

// Reset clears everything tied to the active flow. Preferences are not touched.
func (s *ConversationState) Reset() {
	s.ActiveFlow = FlowNone
	s.Stage = ""
	s.Collected = make(map[FieldName]Value)
	s.FieldOrder = nil
	s.PendingField = ""
	s.InterruptionStack = nil
	s.CancellationPending = false
	s.Ambiguity = nil
	s.Suggestion = nil
	s.Results = nil
	s.Selected = nil
	s.Offer = nil
}
