package flow

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/BTreeMap/TripPipe/internal/models"
)

// startOneWay leaves a flight flow waiting for the departure date.
func startOneWay(t *testing.T, h *harness, st *models.ConversationState) {
	t.Helper()
	out := h.say(st, "book_flight", ent(models.EntityTripType, "one way"),
		role(models.EntityCity, "London", models.RoleDeparture),
		role(models.EntityCity, "Paris", models.RoleDestination))
	expectPrompt(t, out, models.FieldDepartureDate)
}

func TestHelpResumesPendingField(t *testing.T) {
	h := newHarness(t)
	st := newState()
	startOneWay(t, h, st)
	before := len(st.Collected)

	out := h.say(st, "help")
	if _, ok := findNotice(out, models.NoticeHelp); !ok {
		t.Fatalf("expected help notice, got %+v", out)
	}
	expectPrompt(t, out, models.FieldDepartureDate)
	if len(st.InterruptionStack) != 0 {
		t.Errorf("stack not popped: %d entries", len(st.InterruptionStack))
	}
	if len(st.Collected) != before {
		t.Errorf("collected fields changed by help: %d -> %d", before, len(st.Collected))
	}
}

func TestHelpWithEntitiesAppliesThem(t *testing.T) {
	h := newHarness(t)
	st := newState()
	startOneWay(t, h, st)

	out := h.say(st, "help+inform", ent(models.EntityDate, "2025-02-10"))
	if _, ok := findNotice(out, models.NoticeHelp); !ok {
		t.Fatalf("expected help notice, got %+v", out)
	}
	if got := st.Collected[models.FieldDepartureDate].Text; got != "2025-02-10" {
		t.Errorf("departure date = %q", got)
	}
	expectPrompt(t, out, models.FieldPassengerCount)
}

func TestCancellationRoundTrip(t *testing.T) {
	h := newHarness(t)
	st := newState()
	startOneWay(t, h, st)
	snapshot := make(map[models.FieldName]models.Value)
	for k, v := range st.Collected {
		snapshot[k] = v
	}

	out := h.say(st, "stop")
	if _, ok := findNotice(out, models.NoticeConfirmCancel); !ok || !st.CancellationPending {
		t.Fatalf("expected cancellation question, got %+v", out)
	}

	out = h.say(st, "inform", ent(models.EntityDate, "tomorrow"))
	if _, ok := findNotice(out, models.NoticeConfirmCancel); !ok {
		t.Fatalf("expected the question again, got %+v", out)
	}
	if st.Has(models.FieldDepartureDate) {
		t.Error("entities applied while cancellation was pending")
	}

	out = h.say(st, "deny")
	if _, ok := findNotice(out, models.NoticeCancelAborted); !ok {
		t.Fatalf("expected cancel_aborted, got %+v", out)
	}
	if _, ok := findDirective(out, models.DirectiveShowSummary); !ok {
		t.Error("expected a recap of collected fields")
	}
	expectPrompt(t, out, models.FieldDepartureDate)
	if st.CancellationPending || len(st.InterruptionStack) != 0 {
		t.Errorf("cancellation state left behind: pending=%v stack=%d", st.CancellationPending, len(st.InterruptionStack))
	}
	if !reflect.DeepEqual(snapshot, st.Collected) {
		t.Errorf("collected changed: %+v -> %+v", snapshot, st.Collected)
	}

	h.say(st, "cancel")
	out = h.say(st, "affirm")
	if _, ok := findNotice(out, models.NoticeCancelled); !ok {
		t.Fatalf("expected cancelled notice, got %+v", out)
	}
	if st.ActiveFlow != models.FlowNone || len(st.Collected) != 0 {
		t.Errorf("flow not reset: %q %+v", st.ActiveFlow, st.Collected)
	}
}

func TestStopWithoutFlow(t *testing.T) {
	h := newHarness(t)
	st := newState()
	out := h.say(st, "stop")
	if _, ok := findNotice(out, models.NoticeNothingToCancel); !ok {
		t.Errorf("expected nothing_to_cancel, got %+v", out)
	}
	if st.CancellationPending {
		t.Error("cancellation pending without a flow")
	}
}

func TestBotChallengeDoesNotSuspend(t *testing.T) {
	h := newHarness(t)
	st := newState()
	startOneWay(t, h, st)

	out := h.say(st, "bot_challenge")
	if _, ok := findNotice(out, models.NoticeBotChallenge); !ok {
		t.Fatalf("expected bot notice, got %+v", out)
	}
	expectPrompt(t, out, models.FieldDepartureDate)
}

func TestOutOfScopeResumes(t *testing.T) {
	h := newHarness(t)
	st := newState()
	startOneWay(t, h, st)

	out := h.say(st, "nlu_fallback")
	if _, ok := findNotice(out, models.NoticeFallback); !ok {
		t.Fatalf("expected fallback notice, got %+v", out)
	}
	expectPrompt(t, out, models.FieldDepartureDate)
}

func TestUnexpectedAffirmRephrases(t *testing.T) {
	h := newHarness(t)
	st := newState()
	startOneWay(t, h, st)

	out := h.say(st, "affirm")
	if _, ok := findNotice(out, models.NoticeRephrase); !ok {
		t.Fatalf("expected rephrase notice, got %+v", out)
	}
	expectPrompt(t, out, models.FieldDepartureDate)
}

func TestPreferenceStoreAndDelete(t *testing.T) {
	h := newHarness(t)
	st := newState()
	startOneWay(t, h, st)
	ctx := context.Background()

	out := h.say(st, "store_preference", ent(models.EntitySeatPreference, "window seat"))
	if note, ok := findNotice(out, models.NoticePreferenceSaved); !ok || note.Params["value"] != "window" {
		t.Fatalf("expected preference_saved, got %+v", out)
	}
	expectPrompt(t, out, models.FieldDepartureDate)
	if p, ok, _ := h.store.GetPreference(ctx, "u1", models.PreferenceSeat); !ok || p.Value != "window" {
		t.Errorf("stored preference = %+v, %v", p, ok)
	}

	out = h.say(st, "delete_preference", ent(models.EntityPreferenceKey, "seat"))
	if _, ok := findNotice(out, models.NoticePreferenceDeleted); !ok {
		t.Fatalf("expected preference_deleted, got %+v", out)
	}
	out = h.say(st, "delete_preference")
	if _, ok := findNotice(out, models.NoticePreferenceMissing); !ok {
		t.Fatalf("expected preference_missing, got %+v", out)
	}
	expectPrompt(t, out, models.FieldDepartureDate)
}

func TestStorePreferenceNeedsValue(t *testing.T) {
	h := newHarness(t)
	st := newState()
	out := h.say(st, "store_preference")
	expectError(t, out, models.ErrorKindValidation, models.ReasonInvalidPreference)
}

func TestResumeOnEmptyStack(t *testing.T) {
	st := newState()
	st.ActiveFlow = models.FlowFlight
	err := resume(st)
	var fe *models.FlowStateError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FlowStateError, got %v", err)
	}
	if st.PendingField != models.FieldTripType {
		t.Errorf("pending field not recomputed: %q", st.PendingField)
	}
}

func TestRemainder(t *testing.T) {
	tests := []struct {
		name   string
		turn   models.Turn
		want   string
		wantOK bool
	}{
		{"bare help", models.Turn{Intent: "help"}, "", false},
		{"help with booking", models.Turn{Intent: "help+book_flight"}, "book_flight", true},
		{"help with entities", models.Turn{Intent: "help", Entities: []models.Entity{ent(models.EntityCity, "Rome")}}, "inform", true},
		{"preference entity only", models.Turn{Intent: "store_preference", Entities: []models.Entity{ent(models.EntitySeatPreference, "aisle")}}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := remainder(tt.turn)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Intent != tt.want {
				t.Errorf("intent = %q, want %q", got.Intent, tt.want)
			}
		})
	}
}
