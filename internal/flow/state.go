// Package flow drives booking conversations turn by turn.
//
// A Controller takes one interpreted turn and the session's ConversationState
// and returns the directives for the renderer. Slot filling, interruptions,
// location disambiguation, review/correction and the search-select-confirm
// cycle all live here. SessionManager serializes turns per session.
package flow

import (
	"time"

	"github.com/BTreeMap/TripPipe/internal/booking"
	"github.com/BTreeMap/TripPipe/internal/location"
	"github.com/BTreeMap/TripPipe/internal/normalize"
	"github.com/BTreeMap/TripPipe/internal/store"
)

// Timer defines the interface for scheduling delayed actions.
type Timer interface {
	// ScheduleAfter schedules a function to run after a delay and returns its ID
	ScheduleAfter(delay time.Duration, fn func()) (string, error)

	// ScheduleNamed is ScheduleAfter with a description for listings
	ScheduleNamed(delay time.Duration, description string, fn func()) (string, error)

	// Cancel cancels a scheduled function by ID
	Cancel(id string) error
}

// Dependencies holds the collaborators a Controller calls out to.
type Dependencies struct {
	Preferences store.PreferenceStore
	Ledger      store.BookingLedger
	Resolver    location.Resolver
	Flights     booking.FlightService
	Cars        booking.CarService
	Normalizer  *normalize.Normalizer
}
