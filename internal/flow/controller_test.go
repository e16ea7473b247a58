package flow

import (
	"testing"

	"github.com/BTreeMap/TripPipe/internal/models"
)

const wantOneWaySummary = "a one-way trip for 2 passengers from London (LHR) to Paris (CDG) departing on 2025-02-10"

func TestNewControllerRequiresCollaborators(t *testing.T) {
	if _, err := NewController(Dependencies{}); err == nil {
		t.Error("expected error without a resolver")
	}
}

func TestOneWayFlightAskedFieldByField(t *testing.T) {
	h := newHarness(t)
	st := newState()

	out := h.say(st, "book_flight")
	expectPrompt(t, out, models.FieldTripType)
	expectPendingInvariant(t, st)

	out = h.say(st, "inform", ent(models.EntityTripType, "one-way"))
	expectPrompt(t, out, models.FieldDepartureCity)

	out = h.say(st, "inform", ent(models.EntityCity, "London"))
	expectPrompt(t, out, models.FieldDestinationCity)

	out = h.say(st, "inform", ent(models.EntityCity, "Paris"))
	expectPrompt(t, out, models.FieldDepartureDate)

	out = h.say(st, "inform", ent(models.EntityDate, "2025-02-10"))
	expectPrompt(t, out, models.FieldPassengerCount)

	out = h.say(st, "inform", ent(models.EntityNumber, "two"))
	expectPrompt(t, out, models.FieldPreferredAirline)
	expectPendingInvariant(t, st)

	out = h.say(st, "deny")
	expectPrompt(t, out, models.FieldFrequentFlyerNumber)

	out = h.say(st, "deny")
	summary, ok := findDirective(out, models.DirectiveShowSummary)
	if !ok {
		t.Fatalf("expected summary, got %+v", out)
	}
	if summary.Text != wantOneWaySummary {
		t.Errorf("summary = %q, want %q", summary.Text, wantOneWaySummary)
	}
	if st.Stage != models.StageReviewing {
		t.Errorf("stage = %q, want reviewing", st.Stage)
	}
	expectPendingInvariant(t, st)
}

func TestSummaryIndependentOfOrder(t *testing.T) {
	h := newHarness(t)

	a := newState()
	h.say(a, "book_flight",
		role(models.EntityCity, "London", models.RoleDeparture),
		role(models.EntityCity, "Paris", models.RoleDestination),
		ent(models.EntityTripType, "one way"))
	h.say(a, "inform", ent(models.EntityNumber, "2"), ent(models.EntityDate, "2025-02-10"))
	h.say(a, "deny")
	outA := h.say(a, "deny")

	b := newState()
	h.say(b, "book_flight", ent(models.EntityDate, "2025-02-10"), ent(models.EntityNumber, "2"))
	h.say(b, "inform",
		ent(models.EntityTripType, "one way"),
		role(models.EntityCity, "Paris", models.RoleDestination),
		role(models.EntityCity, "London", models.RoleDeparture))
	h.say(b, "deny")
	outB := h.say(b, "deny")

	sa, okA := findDirective(outA, models.DirectiveShowSummary)
	sb, okB := findDirective(outB, models.DirectiveShowSummary)
	if !okA || !okB {
		t.Fatalf("expected summaries, got %+v and %+v", outA, outB)
	}
	if sa.Text != sb.Text || sa.Text != wantOneWaySummary {
		t.Errorf("summaries differ: %q vs %q", sa.Text, sb.Text)
	}

	out := h.say(b, "affirm")
	done, ok := findDirective(out, models.DirectiveCompleteFlow)
	if !ok {
		t.Fatalf("expected complete_flow, got %+v", out)
	}
	req := done.Request
	if req.Departure == nil || req.Departure.Code != "LHR" {
		t.Errorf("departure = %+v", req.Departure)
	}
	if req.Destination == nil || req.Destination.Code != "CDG" {
		t.Errorf("destination = %+v", req.Destination)
	}
	if req.TripType != models.TripOneWay || req.DepartureDate != "2025-02-10" || req.Passengers != 2 {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestRoundTripToOneWayDropsReturnDate(t *testing.T) {
	h := newHarness(t)
	st := newState()
	h.say(st, "book_flight",
		ent(models.EntityTripType, "round trip"),
		role(models.EntityDate, "2025-02-10", models.RoleDeparture),
		role(models.EntityDate, "2025-02-17", models.RoleReturn))
	if !st.Has(models.FieldReturnDate) {
		t.Fatalf("return date not stored: %+v", st.Collected)
	}

	h.say(st, "inform", ent(models.EntityTripType, "one way"))
	if st.Has(models.FieldReturnDate) {
		t.Error("return date survived the switch to one-way")
	}
	for _, f := range st.FieldOrder {
		if f == models.FieldReturnDate {
			t.Error("return date still required")
		}
	}
	expectPendingInvariant(t, st)
}

func TestTravelClassPassengerBoundary(t *testing.T) {
	h := newHarness(t)
	st := newState()
	h.say(st, "book_flight", ent(models.EntityNumber, "4"))
	if requires(st, models.FieldTravelClass) {
		t.Error("travel class required for 4 passengers")
	}

	h.say(st, "inform", ent(models.EntityNumber, "5"), ent(models.EntityTravelClass, "business"))
	if !requires(st, models.FieldTravelClass) {
		t.Error("travel class not required for 5 passengers")
	}
	if got := st.Collected[models.FieldTravelClass].Text; got != "business" {
		t.Errorf("travel class = %q", got)
	}

	h.say(st, "inform", ent(models.EntityNumber, "3"))
	if st.Has(models.FieldTravelClass) {
		t.Error("travel class kept after dropping to 3 passengers")
	}
}

func TestNonPositivePassengersRejected(t *testing.T) {
	h := newHarness(t)
	st := newState()
	h.say(st, "book_flight", ent(models.EntityTripType, "one way"),
		role(models.EntityCity, "London", models.RoleDeparture),
		role(models.EntityCity, "Paris", models.RoleDestination),
		ent(models.EntityDate, "2025-02-10"))

	out := h.say(st, "inform", ent(models.EntityNumber, "0"))
	expectError(t, out, models.ErrorKindValidation, models.ReasonNonPositive)
	expectPrompt(t, out, models.FieldPassengerCount)
}

func TestMultiCityAccumulator(t *testing.T) {
	h := newHarness(t)
	st := newState()

	out := h.say(st, "book_flight", ent(models.EntityTripType, "multi-city"), role(models.EntityCity, "London", models.RoleDeparture))
	expectPrompt(t, out, models.FieldNextDestination)

	out = h.say(st, "inform", ent(models.EntityCity, "Paris"))
	expectPrompt(t, out, models.FieldAddMoreDestinations)

	out = h.say(st, "affirm")
	expectPrompt(t, out, models.FieldNextDestination)

	out = h.say(st, "inform", ent(models.EntityCity, "Paris"))
	expectError(t, out, models.ErrorKindValidation, models.ReasonSameAsPreviousStop)
	expectPrompt(t, out, models.FieldNextDestination)

	out = h.say(st, "inform", ent(models.EntityCity, "Rome"))
	expectPrompt(t, out, models.FieldAddMoreDestinations)

	out = h.say(st, "deny")
	expectPrompt(t, out, models.FieldDepartureDate)

	items := st.Itinerary()
	if len(items) != 2 || items[0].Code != "CDG" || items[1].Code != "FCO" {
		t.Errorf("itinerary = %+v", items)
	}
}

func TestSameCityRejected(t *testing.T) {
	h := newHarness(t)
	st := newState()
	h.say(st, "book_flight", ent(models.EntityTripType, "one way"), role(models.EntityCity, "London", models.RoleDeparture))

	out := h.say(st, "inform", ent(models.EntityCity, "london"))
	expectError(t, out, models.ErrorKindValidation, models.ReasonSameAsDeparture)
	expectPrompt(t, out, models.FieldDestinationCity)
	if st.Has(models.FieldDestinationCity) {
		t.Error("destination written despite matching departure")
	}
}

func TestAmbiguousLocationNeedsCode(t *testing.T) {
	h := newHarness(t)
	st := newState()
	out := h.say(st, "book_flight", ent(models.EntityTripType, "one way"),
		role(models.EntityCity, "New York", models.RoleDeparture),
		role(models.EntityCity, "Paris", models.RoleDestination))

	opts, ok := findDirective(out, models.DirectiveShowOptions)
	if !ok || len(opts.Options) != 2 {
		t.Fatalf("expected two airport options, got %+v", out)
	}
	if st.Has(models.FieldDestinationCity) {
		t.Error("location after an ambiguous one should be skipped in the same turn")
	}

	out = h.say(st, "inform", ent(models.EntityCity, "the big one"))
	expectError(t, out, models.ErrorKindValidation, models.ReasonInvalidSelection)
	if st.Ambiguity == nil {
		t.Fatal("ambiguity context closed by free text")
	}

	out = h.say(st, "select_airport", ent(models.EntityIATACode, "jfk"))
	if st.Ambiguity != nil {
		t.Fatal("ambiguity context still open")
	}
	if got := st.Collected[models.FieldDepartureCity].Code; got != "JFK" {
		t.Errorf("departure code = %q, want JFK", got)
	}
	expectPrompt(t, out, models.FieldDestinationCity)
}

func TestSuggestionWritesOriginalTarget(t *testing.T) {
	h := newHarness(t)
	st := newState()
	h.say(st, "book_flight", ent(models.EntityTripType, "one way"), ent(models.EntityCity, "London"))

	out := h.say(st, "inform", ent(models.EntityCity, "Sna Francisco"))
	note, ok := findNotice(out, models.NoticeSuggestion)
	if !ok || note.Params["suggestion"] != "San Francisco" {
		t.Fatalf("expected suggestion notice, got %+v", out)
	}
	if st.Suggestion == nil || st.Suggestion.TargetField != models.FieldDestinationCity {
		t.Fatalf("suggestion context = %+v", st.Suggestion)
	}

	out = h.say(st, "affirm")
	if st.Suggestion != nil {
		t.Error("suggestion context still open")
	}
	if got := st.Collected[models.FieldDestinationCity]; got.Code != "SFO" || got.Text != "San Francisco" {
		t.Errorf("destination = %+v", got)
	}
	expectPrompt(t, out, models.FieldDepartureDate)
}

func TestSuggestionDenyReasks(t *testing.T) {
	h := newHarness(t)
	st := newState()
	h.say(st, "book_flight", ent(models.EntityTripType, "one way"), ent(models.EntityCity, "London"))
	h.say(st, "inform", ent(models.EntityCity, "Sna Francisco"))

	out := h.say(st, "deny")
	expectPrompt(t, out, models.FieldDestinationCity)
	if st.Has(models.FieldDestinationCity) {
		t.Error("denied suggestion was written")
	}
}

func TestPastDateRejected(t *testing.T) {
	h := newHarness(t)
	st := newState()
	h.say(st, "book_flight", ent(models.EntityTripType, "one way"),
		role(models.EntityCity, "London", models.RoleDeparture),
		role(models.EntityCity, "Paris", models.RoleDestination))

	out := h.say(st, "inform", ent(models.EntityDate, "2025-01-01"))
	expectError(t, out, models.ErrorKindValidation, models.ReasonPastDate)
	expectPrompt(t, out, models.FieldDepartureDate)
}

func TestReturnMustFollowDeparture(t *testing.T) {
	h := newHarness(t)
	st := newState()
	h.say(st, "book_flight", ent(models.EntityTripType, "round trip"), role(models.EntityDate, "2025-02-10", models.RoleDeparture))

	out := h.say(st, "inform", role(models.EntityDate, "2025-02-09", models.RoleReturn))
	expectError(t, out, models.ErrorKindValidation, models.ReasonEndNotAfterStart)

	h.say(st, "inform", role(models.EntityDate, "2025-02-20", models.RoleReturn))
	h.say(st, "inform", role(models.EntityDate, "2025-02-25", models.RoleDeparture))
	if st.Has(models.FieldReturnDate) {
		t.Error("return date kept after moving departure past it")
	}
}

func TestResolverFailureReportsServiceError(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) { d.Resolver = failingResolver{} })
	st := newState()
	out := h.say(st, "book_flight", ent(models.EntityTripType, "one way"), ent(models.EntityCity, "London"))

	expectError(t, out, models.ErrorKindService, models.ReasonUnavailable)
	if st.Has(models.FieldDepartureCity) {
		t.Error("field written after a failed lookup")
	}
	expectPrompt(t, out, models.FieldDepartureCity)
}

func TestHotelFlowCompletes(t *testing.T) {
	h := newHarness(t)
	st := newState()
	h.say(st, "book_hotel", ent(models.EntityHotel, "grand plaza"))
	h.say(st, "inform", role(models.EntityDate, "2025-03-01", models.RoleCheckIn), role(models.EntityDate, "2025-03-04", models.RoleCheckOut))
	out := h.say(st, "inform", ent(models.EntityNumber, "2"))

	done, ok := findDirective(out, models.DirectiveCompleteFlow)
	if !ok {
		t.Fatalf("expected complete_flow, got %+v", out)
	}
	if done.Request.HotelLocation != "Grand Plaza" || done.Request.Guests != 2 || done.Request.CheckOutDate != "2025-03-04" {
		t.Errorf("unexpected hotel request %+v", done.Request)
	}
	if up, ok := findNotice(out, models.NoticeUpsell); !ok || up.Params["offer"] != "flight" {
		t.Errorf("expected flight upsell, got %+v", out)
	}
	if st.ActiveFlow != models.FlowNone {
		t.Errorf("flow not reset: %q", st.ActiveFlow)
	}
}

func TestOtherFlowWhileActive(t *testing.T) {
	h := newHarness(t)
	st := newState()
	h.say(st, "book_flight")

	out := h.say(st, "book_hotel")
	if _, ok := findNotice(out, models.NoticeFlowInProgress); !ok {
		t.Fatalf("expected flow_in_progress notice, got %+v", out)
	}
	if st.ActiveFlow != models.FlowFlight {
		t.Errorf("active flow = %q", st.ActiveFlow)
	}
	expectPrompt(t, out, models.FieldTripType)
}

func TestGreetingWithoutFlow(t *testing.T) {
	h := newHarness(t)
	st := newState()
	out := h.say(st, "greet")
	if _, ok := findNotice(out, models.NoticeGreeting); !ok {
		t.Errorf("expected greeting, got %+v", out)
	}
}
