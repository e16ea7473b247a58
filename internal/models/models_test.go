package models

import (
	"errors"
	"testing"
)

func TestTurnIntentsSplitsMultiIntentLabels(t *testing.T) {
	turn := Turn{SessionID: "s1", Intent: "Help+inform"}
	got := turn.Intents()
	if len(got) != 2 || got[0] != IntentHelp || got[1] != IntentInform {
		t.Fatalf("unexpected intents: %v", got)
	}
	if !turn.HasIntent(IntentInform) {
		t.Error("expected HasIntent(inform) to be true")
	}
	if turn.HasIntent(IntentStop) {
		t.Error("expected HasIntent(stop) to be false")
	}
}

func TestTurnValidate(t *testing.T) {
	if err := (Turn{Intent: "inform"}).Validate(); !errors.Is(err, ErrEmptySessionID) {
		t.Errorf("expected ErrEmptySessionID, got %v", err)
	}
	if err := (Turn{SessionID: "s", Intent: " + "}).Validate(); !errors.Is(err, ErrEmptyIntent) {
		t.Errorf("expected ErrEmptyIntent, got %v", err)
	}
	if err := (Turn{SessionID: "s", Intent: "inform"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestServiceErrorUnwraps(t *testing.T) {
	base := errors.New("timeout")
	err := error(&ServiceError{Op: "search", Err: base})
	if !errors.Is(err, base) {
		t.Error("expected ServiceError to unwrap to its cause")
	}
	var se *ServiceError
	if !errors.As(err, &se) || se.Op != "search" {
		t.Errorf("errors.As failed: %v", err)
	}
}

func TestReportErrorAddsReason(t *testing.T) {
	d := ReportError(ErrorKindValidation, FieldPassengerCount, ReasonNonPositive, nil)
	if d.Kind != DirectiveReportError || d.Params["reason"] != ReasonNonPositive {
		t.Errorf("unexpected directive: %+v", d)
	}
}

func TestConversationStateReset(t *testing.T) {
	s := NewConversationState("s1", "")
	if s.UserID != "s1" {
		t.Errorf("expected user id to default to session id, got %q", s.UserID)
	}
	s.ActiveFlow = FlowFlight
	s.Collected[FieldTripType] = TextValue(TripOneWay)
	s.CancellationPending = true
	s.Reset()
	if s.ActiveFlow != FlowNone || len(s.Collected) != 0 || s.CancellationPending {
		t.Errorf("reset left state behind: %+v", s)
	}
}

func TestBookingRequestFinalDestination(t *testing.T) {
	req := BookingRequest{Destinations: []Location{{Name: "Paris"}, {Name: "Rome"}}}
	if got := req.FinalDestination(); got != "Rome" {
		t.Errorf("expected Rome, got %q", got)
	}
	req = BookingRequest{Destination: &Location{Name: "Tokyo", Code: "HND"}}
	if got := req.FinalDestination(); got != "Tokyo" {
		t.Errorf("expected Tokyo, got %q", got)
	}
}
