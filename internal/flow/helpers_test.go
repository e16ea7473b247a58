package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/TripPipe/internal/location"
	"github.com/BTreeMap/TripPipe/internal/models"
	"github.com/BTreeMap/TripPipe/internal/normalize"
	"github.com/BTreeMap/TripPipe/internal/store"
)

// testToday is a Wednesday.
var testToday = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

var testAirports = []store.Airport{
	{City: "London", Code: "LHR", Name: "Heathrow"},
	{City: "Paris", Code: "CDG", Name: "Charles de Gaulle"},
	{City: "Rome", Code: "FCO", Name: "Fiumicino"},
	{City: "Berlin", Code: "BER", Name: "Brandenburg"},
	{City: "Tokyo", Code: "HND", Name: "Haneda"},
	{City: "San Francisco", Code: "SFO", Name: "San Francisco International"},
	{City: "New York", Code: "JFK", Name: "John F. Kennedy"},
	{City: "New York", Code: "LGA", Name: "LaGuardia"},
}

var testOptions = []models.BookingOption{
	{ID: "AA123", Provider: "AwesomeAirlines", Time: "08:00", Price: 350, Currency: "USD"},
	{ID: "FH456", Provider: "FlyHigh", Time: "12:30", Price: 280, Currency: "USD"},
	{ID: "SJ789", Provider: "SkyJet", Time: "18:45", Price: 410, Currency: "USD"},
}

type fakeFlights struct {
	mu         sync.Mutex
	options    []models.BookingOption
	searchErr  error
	confirmErr error
	searches   int
	confirms   int
	lastReq    models.BookingRequest
}

func (f *fakeFlights) Search(ctx context.Context, req models.BookingRequest) ([]models.BookingOption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	f.lastReq = req
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return append([]models.BookingOption(nil), f.options...), nil
}

func (f *fakeFlights) Confirm(ctx context.Context, opt models.BookingOption) (models.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirms++
	if f.confirmErr != nil {
		return models.Confirmation{}, f.confirmErr
	}
	return models.Confirmation{Reference: "REF-" + opt.ID, OptionID: opt.ID, Status: "confirmed", ConfirmedAt: testToday}, nil
}

type fakeCars struct {
	options   []models.BookingOption
	searchErr error
	searches  int
}

func (f *fakeCars) SearchCars(ctx context.Context, req models.BookingRequest) ([]models.BookingOption, error) {
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.options, nil
}

type failingResolver struct{}

func (failingResolver) Resolve(ctx context.Context, text string) (location.Resolution, error) {
	return location.Resolution{}, errors.New("catalog offline")
}

// fakeTimer records scheduled functions so tests can fire them by hand.
type fakeTimer struct {
	mu    sync.Mutex
	next  int
	fns   map[string]func()
	descs map[string]string
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{fns: make(map[string]func()), descs: make(map[string]string)}
}

func (t *fakeTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	return t.ScheduleNamed(delay, "", fn)
}

func (t *fakeTimer) ScheduleNamed(delay time.Duration, description string, fn func()) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	id := fmt.Sprintf("t%d", t.next)
	t.fns[id] = fn
	t.descs[id] = description
	return id, nil
}

func (t *fakeTimer) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.fns, id)
	delete(t.descs, id)
	return nil
}

// fire runs every pending timer whose description starts with prefix.
func (t *fakeTimer) fire(prefix string) int {
	t.mu.Lock()
	var due []func()
	for id, desc := range t.descs {
		if strings.HasPrefix(desc, prefix) {
			due = append(due, t.fns[id])
			delete(t.fns, id)
			delete(t.descs, id)
		}
	}
	t.mu.Unlock()
	for _, fn := range due {
		fn()
	}
	return len(due)
}

type harness struct {
	ctrl    *Controller
	store   *store.InMemoryStore
	flights *fakeFlights
	cars    *fakeCars
}

func newHarness(t *testing.T, opts ...func(*Dependencies)) *harness {
	t.Helper()
	st := store.NewInMemoryStoreWithAirports(testAirports)
	resolver, err := location.NewCatalogResolver(st)
	if err != nil {
		t.Fatalf("NewCatalogResolver: %v", err)
	}
	h := &harness{
		store:   st,
		flights: &fakeFlights{options: testOptions},
		cars:    &fakeCars{options: []models.BookingOption{{ID: "HERTZ001", Provider: "Hertz", Price: 45, Currency: "USD"}}},
	}
	deps := Dependencies{
		Preferences: st,
		Ledger:      st,
		Resolver:    resolver,
		Flights:     h.flights,
		Cars:        h.cars,
		Normalizer:  normalize.New(normalize.WithClock(func() time.Time { return testToday })),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.ctrl, err = NewController(deps, WithCallTimeout(time.Second))
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return h
}

func (h *harness) say(st *models.ConversationState, intent string, entities ...models.Entity) []models.Directive {
	return h.ctrl.HandleTurn(context.Background(), st, models.Turn{
		SessionID: st.SessionID,
		Intent:    intent,
		Entities:  entities,
	})
}

func newState() *models.ConversationState {
	return models.NewConversationState("s1", "u1")
}

func ent(typ models.EntityType, value string) models.Entity {
	return models.Entity{Type: typ, Value: value}
}

func role(typ models.EntityType, value, r string) models.Entity {
	return models.Entity{Type: typ, Value: value, Role: r}
}

func findDirective(out []models.Directive, kind models.DirectiveKind) (models.Directive, bool) {
	for _, d := range out {
		if d.Kind == kind {
			return d, true
		}
	}
	return models.Directive{}, false
}

func findNotice(out []models.Directive, notice models.NoticeKind) (models.Directive, bool) {
	for _, d := range out {
		if d.Notice == notice {
			return d, true
		}
	}
	return models.Directive{}, false
}

func expectPrompt(t *testing.T, out []models.Directive, field models.FieldName) {
	t.Helper()
	if len(out) == 0 {
		t.Fatalf("expected prompt for %s, got no directives", field)
	}
	last := out[len(out)-1]
	if last.Kind != models.DirectivePromptField || last.Field != field {
		t.Fatalf("expected prompt for %s, got %+v", field, out)
	}
}

func expectError(t *testing.T, out []models.Directive, kind models.ErrorKind, reason string) models.Directive {
	t.Helper()
	for _, d := range out {
		if d.Kind == models.DirectiveReportError && d.Error == kind && d.Params["reason"] == reason {
			return d
		}
	}
	t.Fatalf("expected %s error %q, got %+v", kind, reason, out)
	return models.Directive{}
}

func expectPendingInvariant(t *testing.T, st *models.ConversationState) {
	t.Helper()
	if len(st.FieldOrder) == 0 {
		if st.PendingField != "" {
			t.Errorf("pending field %q with empty field order", st.PendingField)
		}
		return
	}
	if st.PendingField != st.FieldOrder[0] {
		t.Errorf("pending field %q is not head of field order %v", st.PendingField, st.FieldOrder)
	}
}

// reachSummary drives a one-way London to Paris flight up to the review stage.
func (h *harness) reachSummary(t *testing.T, st *models.ConversationState) []models.Directive {
	t.Helper()
	h.say(st, "book_flight",
		ent(models.EntityTripType, "one way"),
		role(models.EntityCity, "London", models.RoleDeparture),
		role(models.EntityCity, "Paris", models.RoleDestination),
		ent(models.EntityDate, "2025-02-10"),
		ent(models.EntityNumber, "2"),
	)
	h.say(st, "deny")
	out := h.say(st, "deny")
	if st.Stage != models.StageReviewing {
		t.Fatalf("expected reviewing stage, got %q (pending %q, out %+v)", st.Stage, st.PendingField, out)
	}
	return out
}
