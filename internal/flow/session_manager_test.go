package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/BTreeMap/TripPipe/internal/models"
)

func (t *fakeTimer) pending(prefix string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, desc := range t.descs {
		if strings.HasPrefix(desc, prefix) {
			n++
		}
	}
	return n
}

func newTestManager(t *testing.T) (*SessionManager, *harness, *fakeTimer) {
	t.Helper()
	h := newHarness(t)
	timer := newFakeTimer()
	return NewSessionManager(h.ctrl, timer, h.store), h, timer
}

func send(t *testing.T, m *SessionManager, sessionID, intent string, entities ...models.Entity) models.TurnResult {
	t.Helper()
	res, err := m.HandleTurn(context.Background(), models.Turn{
		SessionID: sessionID,
		UserID:    "u1",
		Intent:    intent,
		Entities:  entities,
	})
	if err != nil {
		t.Fatalf("HandleTurn(%s): %v", intent, err)
	}
	return res
}

// reachAwaitingConfirm selects FH456 on a one-way flight in session s1.
func reachAwaitingConfirm(t *testing.T, m *SessionManager) {
	t.Helper()
	send(t, m, "s1", "book_flight",
		ent(models.EntityTripType, "one way"),
		role(models.EntityCity, "London", models.RoleDeparture),
		role(models.EntityCity, "Paris", models.RoleDestination),
		ent(models.EntityDate, "2025-02-10"),
		ent(models.EntityNumber, "1"))
	send(t, m, "s1", "deny")
	send(t, m, "s1", "deny")
	send(t, m, "s1", "affirm")
	res := send(t, m, "s1", "select_flight", ent(models.EntityFlightID, "FH456"))
	if res.Stage != models.StageAwaitingFinalConfirm {
		t.Fatalf("stage = %q, want awaiting confirmation", res.Stage)
	}
}

func TestSessionManagerRejectsInvalidTurn(t *testing.T) {
	m, _, _ := newTestManager(t)
	if _, err := m.HandleTurn(context.Background(), models.Turn{Intent: "greet"}); !errors.Is(err, models.ErrEmptySessionID) {
		t.Errorf("expected ErrEmptySessionID, got %v", err)
	}
	if _, err := m.HandleTurn(context.Background(), models.Turn{SessionID: "s1", Intent: " + "}); !errors.Is(err, models.ErrEmptyIntent) {
		t.Errorf("expected ErrEmptyIntent, got %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("invalid turns created %d sessions", m.Count())
	}
}

func TestSessionManagerDeduplicatesTurns(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	turn := models.Turn{SessionID: "s1", UserID: "u1", TurnID: "turn-1", Intent: "book_flight",
		Entities: []models.Entity{ent(models.EntityTripType, "one way")}}

	if _, err := m.HandleTurn(ctx, turn); err != nil {
		t.Fatalf("first HandleTurn: %v", err)
	}
	before, _ := m.Snapshot("s1")

	turn.Entities = []models.Entity{role(models.EntityCity, "London", models.RoleDeparture)}
	_, err := m.HandleTurn(ctx, turn)
	if !errors.Is(err, models.ErrDuplicateTurn) {
		t.Fatalf("expected ErrDuplicateTurn, got %v", err)
	}
	after, _ := m.Snapshot("s1")
	if len(after.Collected) != len(before.Collected) {
		t.Errorf("duplicate turn changed state: %v -> %v", before.Collected, after.Collected)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	m, _, _ := newTestManager(t)
	if _, err := m.Snapshot("missing"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	send(t, m, "s1", "book_flight", ent(models.EntityTripType, "round trip"))

	snap, err := m.Snapshot("s1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	snap.Collected[models.FieldTripType] = models.TextValue(models.TripOneWay)
	snap.FieldOrder = nil

	again, _ := m.Snapshot("s1")
	if again.Collected[models.FieldTripType].Text != models.TripRoundTrip {
		t.Errorf("snapshot mutation leaked into the session")
	}
	if len(again.FieldOrder) == 0 {
		t.Errorf("field order cleared through the snapshot")
	}
}

func TestHoldReleaseQueuesNotice(t *testing.T) {
	m, _, timer := newTestManager(t)
	reachAwaitingConfirm(t, m)
	if n := timer.pending("selection hold FH456"); n != 1 {
		t.Fatalf("hold timers = %d, want 1", n)
	}

	if n := timer.fire("selection hold"); n != 1 {
		t.Fatalf("fired %d hold timers", n)
	}
	snap, _ := m.Snapshot("s1")
	if snap.Stage != models.StageSelecting || snap.Selected != nil {
		t.Fatalf("selection not released: %q %+v", snap.Stage, snap.Selected)
	}

	res := send(t, m, "s1", "help")
	if len(res.Directives) == 0 || res.Directives[0].Notice != models.NoticeSelectionReleased {
		t.Fatalf("expected queued selection_released first, got %+v", res.Directives)
	}
	res = send(t, m, "s1", "help")
	if _, ok := findNotice(res.Directives, models.NoticeSelectionReleased); ok {
		t.Error("queued notice delivered twice")
	}
}

func TestHoldFollowsReselection(t *testing.T) {
	m, _, timer := newTestManager(t)
	reachAwaitingConfirm(t, m)

	send(t, m, "s1", "select_flight", ent(models.EntityFlightID, "SJ789"))
	if n := timer.pending("selection hold FH456"); n != 0 {
		t.Errorf("stale hold for FH456 still pending")
	}
	if n := timer.pending("selection hold SJ789"); n != 1 {
		t.Errorf("hold timers for SJ789 = %d, want 1", n)
	}

	send(t, m, "s1", "affirm")
	if n := timer.pending("selection hold"); n != 0 {
		t.Errorf("hold timer left after confirmation: %d", n)
	}
}

func TestIdleExpiryEndsSession(t *testing.T) {
	m, _, timer := newTestManager(t)
	send(t, m, "s1", "book_flight")
	send(t, m, "s1", "inform", ent(models.EntityTripType, "one way"))
	if n := timer.pending("idle expiry"); n != 1 {
		t.Fatalf("idle timers = %d, want 1", n)
	}

	timer.fire("idle expiry")
	if _, err := m.Snapshot("s1"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected expired session, got %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d after expiry", m.Count())
	}

	res := send(t, m, "s1", "greet")
	if res.Flow != models.FlowNone {
		t.Errorf("expired session came back with flow %q", res.Flow)
	}
}

func TestEndSession(t *testing.T) {
	m, _, timer := newTestManager(t)
	if err := m.EndSession("s1"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	reachAwaitingConfirm(t, m)

	if err := m.EndSession("s1"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if n := timer.pending(""); n != 0 {
		t.Errorf("%d timers left after EndSession", n)
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d", m.Count())
	}
}

func TestConcurrentSessions(t *testing.T) {
	m, _, _ := newTestManager(t)
	const n = 10

	var wg sync.WaitGroup
	errs := make(chan error, n*2)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			for _, turn := range []models.Turn{
				{SessionID: id, Intent: "book_flight", Entities: []models.Entity{ent(models.EntityTripType, "one way")}},
				{SessionID: id, Intent: "inform", Entities: []models.Entity{role(models.EntityCity, "Berlin", models.RoleDeparture)}},
			} {
				if _, err := m.HandleTurn(context.Background(), turn); err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("HandleTurn: %v", err)
	}

	if m.Count() != n {
		t.Fatalf("Count = %d, want %d", m.Count(), n)
	}
	for i := 0; i < n; i++ {
		snap, err := m.Snapshot(fmt.Sprintf("s%d", i))
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if snap.PendingField != models.FieldDestinationCity {
			t.Errorf("session s%d pending = %q", i, snap.PendingField)
		}
	}
}
