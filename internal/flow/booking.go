package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/TripPipe/internal/models"
	"github.com/BTreeMap/TripPipe/internal/normalize"
)

// search runs the search step of the active flow. The stage is moved to
// searching before the call so that a failed call is retried by the next "yes".
func (c *Controller) search(ctx context.Context, st *models.ConversationState) []models.Directive {
	switch st.ActiveFlow {
	case models.FlowFlight:
		return c.searchFlights(ctx, st)
	case models.FlowCar:
		return c.searchCars(ctx, st)
	default:
		return c.finishHotel(ctx, st)
	}
}

func (c *Controller) searchFlights(ctx context.Context, st *models.ConversationState) []models.Directive {
	req := c.buildRequest(ctx, st)

	var out []models.Directive
	if st.Stage != models.StageSearching {
		out = append(out, models.CompleteFlow(req))
	}
	st.Stage = models.StageSearching

	if c.deps.Flights == nil {
		return append(out, errorDirective(&models.ServiceError{Op: "flights.search", Err: models.ErrProviderNotFound}))
	}

	sctx, cancel := c.callContext(ctx)
	defer cancel()
	options, err := c.deps.Flights.Search(sctx, req)
	if err != nil {
		slog.Error("Controller.searchFlights failed", "session", st.SessionID, "error", err)
		return append(out, errorDirective(&models.ServiceError{Op: "flights.search", Err: err}))
	}
	if len(options) == 0 {
		slog.Info("Controller.searchFlights: no results", "session", st.SessionID)
		st.Stage = models.StageReviewing
		return append(out, models.Notify(models.NoticeNoResults, nil), models.ShowSummary(Summary(st)))
	}

	st.Results = options
	st.Selected = nil
	st.Stage = models.StageSelecting
	slog.Info("Controller.searchFlights", "session", st.SessionID, "results", len(options))
	return append(out, flightOptions(options))
}

// selectOption picks a search result by flight ID or ordinal position.
func (c *Controller) selectOption(st *models.ConversationState, turn models.Turn) []models.Directive {
	opt, reason := pickOption(st.Results, turn)
	if reason != "" {
		slog.Debug("Controller.selectOption: rejected", "session", st.SessionID, "reason", reason)
		return []models.Directive{
			models.ReportError(models.ErrorKindValidation, "", reason, nil),
			flightOptions(st.Results),
		}
	}
	st.Selected = &opt
	st.Stage = models.StageAwaitingFinalConfirm
	slog.Info("Controller.selectOption", "session", st.SessionID, "option", opt.ID)
	return []models.Directive{confirmSelectionNotice(st.Selected)}
}

func pickOption(results []models.BookingOption, turn models.Turn) (models.BookingOption, string) {
	for _, e := range turn.Entities {
		id := strings.ToUpper(strings.TrimSpace(e.Value))
		for _, opt := range results {
			if strings.ToUpper(opt.ID) == id {
				return opt, ""
			}
		}
	}

	var raw []string
	for _, e := range turn.EntitiesOf(models.EntityOrdinal) {
		raw = append(raw, e.Value)
	}
	for _, e := range turn.EntitiesOf(models.EntityNumber) {
		raw = append(raw, e.Value)
	}
	for _, r := range raw {
		pos, err := normalize.ParseOrdinal(r)
		if err != nil {
			n, nerr := strconv.Atoi(strings.TrimSpace(r))
			if nerr != nil {
				continue
			}
			if n < 1 {
				return models.BookingOption{}, models.ReasonOrdinalOutOfRange
			}
			pos = n
		}
		idx, err := normalize.OrdinalIndex(pos, len(results))
		if err != nil {
			return models.BookingOption{}, models.ReasonOrdinalOutOfRange
		}
		return results[idx], ""
	}
	return models.BookingOption{}, models.ReasonInvalidSelection
}

// finalConfirm handles the answer to "book this one?".
func (c *Controller) finalConfirm(ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive {
	switch {
	case turn.HasIntent(models.IntentAffirm), turn.HasIntent(models.IntentConfirmBooking):
		return c.confirmFlight(ctx, st)
	case turn.HasIntent(models.IntentDeny):
		st.Selected = nil
		st.Stage = models.StageSelecting
		return []models.Directive{models.Notify(models.NoticeSelectionReleased, nil), flightOptions(st.Results)}
	case len(turn.Entities) > 0:
		return c.selectOption(st, turn)
	default:
		return []models.Directive{confirmSelectionNotice(st.Selected)}
	}
}

func (c *Controller) confirmFlight(ctx context.Context, st *models.ConversationState) []models.Directive {
	if st.Selected == nil {
		err := &models.FlowStateError{Op: "confirmFlight", Detail: "no option selected"}
		slog.Error("Controller.confirmFlight", "session", st.SessionID, "error", err)
		st.Stage = models.StageSelecting
		return []models.Directive{errorDirective(err), flightOptions(st.Results)}
	}
	if c.deps.Flights == nil {
		return []models.Directive{errorDirective(&models.ServiceError{Op: "flights.confirm", Err: models.ErrProviderNotFound})}
	}

	opt := *st.Selected
	cctx, cancel := c.callContext(ctx)
	defer cancel()
	conf, err := c.deps.Flights.Confirm(cctx, opt)
	if err != nil {
		slog.Error("Controller.confirmFlight failed", "session", st.SessionID, "option", opt.ID, "error", err)
		return []models.Directive{errorDirective(&models.ServiceError{Op: "flights.confirm", Err: err})}
	}

	req := c.buildRequest(ctx, st)
	c.record(ctx, st, req, opt, conf.Reference)
	slog.Info("Controller.confirmFlight: booked", "session", st.SessionID, "option", opt.ID, "reference", conf.Reference)

	out := []models.Directive{
		models.Notify(models.NoticeBookingConfirmed, map[string]string{
			"reference": conf.Reference,
			"id":        opt.ID,
			"provider":  opt.Provider,
		}),
	}
	st.Reset()
	return append(out, offerFollowUp(st, models.FlowHotel, req.FinalDestination()))
}

// searchCars completes a car flow with its search results.
func (c *Controller) searchCars(ctx context.Context, st *models.ConversationState) []models.Directive {
	req := c.buildRequest(ctx, st)
	st.Stage = models.StageSearching

	if c.deps.Cars == nil {
		return []models.Directive{errorDirective(&models.ServiceError{Op: "cars.search", Err: models.ErrProviderNotFound})}
	}
	sctx, cancel := c.callContext(ctx)
	defer cancel()
	options, err := c.deps.Cars.SearchCars(sctx, req)
	if err != nil {
		slog.Error("Controller.searchCars failed", "session", st.SessionID, "error", err)
		return []models.Directive{errorDirective(&models.ServiceError{Op: "cars.search", Err: err})}
	}
	if len(options) == 0 {
		st.Stage = models.StageReviewing
		return []models.Directive{models.Notify(models.NoticeNoResults, nil), models.ShowSummary(Summary(st))}
	}

	req.Options = options
	c.record(ctx, st, req, options[0], options[0].ID)
	st.Reset()
	return []models.Directive{models.CompleteFlow(req), offerFollowUp(st, models.FlowFlight, req.PickupLocation)}
}

// finishHotel hands the hotel request over; hotels are booked by the caller.
func (c *Controller) finishHotel(ctx context.Context, st *models.ConversationState) []models.Directive {
	req := c.buildRequest(ctx, st)
	slog.Info("Controller.finishHotel", "session", st.SessionID, "hotel", req.HotelLocation)
	st.Reset()
	return []models.Directive{models.CompleteFlow(req), offerFollowUp(st, models.FlowFlight, req.HotelLocation)}
}

// record writes the booking to the ledger. Failures are logged; the booking
// itself already went through.
func (c *Controller) record(ctx context.Context, st *models.ConversationState, req models.BookingRequest, opt models.BookingOption, reference string) {
	if c.deps.Ledger == nil {
		return
	}
	rec := models.BookingRecord{
		ID:        uuid.NewString(),
		UserID:    st.UserID,
		SessionID: st.SessionID,
		Flow:      st.ActiveFlow,
		Reference: reference,
		Option:    opt,
		Request:   req,
		CreatedAt: time.Now().UTC(),
	}
	lctx, cancel := c.callContext(ctx)
	defer cancel()
	if err := c.deps.Ledger.SaveBooking(lctx, rec); err != nil {
		slog.Error("Controller.record: ledger write failed", "session", st.SessionID, "reference", reference, "error", err)
		return
	}
	slog.Debug("Controller.record", "session", st.SessionID, "id", rec.ID)
}

// buildRequest assembles the booking request from the collected fields. Flight
// requests are completed from saved preferences.
func (c *Controller) buildRequest(ctx context.Context, st *models.ConversationState) models.BookingRequest {
	req := models.BookingRequest{Flow: st.ActiveFlow}
	text := func(f models.FieldName) string {
		if v, ok := st.Get(f); ok && !v.Declined {
			return v.Text
		}
		return ""
	}

	switch st.ActiveFlow {
	case models.FlowFlight:
		req.TripType = text(models.FieldTripType)
		if v, ok := st.Get(models.FieldDepartureCity); ok {
			loc := v.Location()
			req.Departure = &loc
		}
		if req.TripType == models.TripMultiCity {
			req.Destinations = append([]models.Location(nil), st.Itinerary()...)
		} else if v, ok := st.Get(models.FieldDestinationCity); ok {
			loc := v.Location()
			req.Destination = &loc
		}
		req.DepartureDate = text(models.FieldDepartureDate)
		if req.TripType == models.TripRoundTrip {
			req.ReturnDate = text(models.FieldReturnDate)
		}
		req.Passengers = st.Collected[models.FieldPassengerCount].Number
		req.TravelClass = text(models.FieldTravelClass)
		req.PreferredAirline = text(models.FieldPreferredAirline)
		req.FrequentFlyerNumber = text(models.FieldFrequentFlyerNumber)
		c.applyPreferences(ctx, st, &req)

	case models.FlowHotel:
		req.HotelLocation = text(models.FieldHotelLocation)
		req.CheckInDate = text(models.FieldCheckInDate)
		req.CheckOutDate = text(models.FieldCheckOutDate)
		req.Guests = st.Collected[models.FieldGuestCount].Number

	case models.FlowCar:
		req.PickupLocation = text(models.FieldPickupLocation)
		req.PickupDate = text(models.FieldPickupDate)
		req.DropoffDate = text(models.FieldDropoffDate)
		req.CarCategory = text(models.FieldCarCategory)
	}
	return req
}

// applyPreferences adds the saved seat preference, and the saved airline when
// the user declined to name one.
func (c *Controller) applyPreferences(ctx context.Context, st *models.ConversationState, req *models.BookingRequest) {
	pctx, cancel := c.callContext(ctx)
	defer cancel()

	if p, ok, err := c.deps.Preferences.GetPreference(pctx, st.UserID, models.PreferenceSeat); err != nil {
		slog.Warn("Controller.applyPreferences: seat lookup failed", "user", st.UserID, "error", err)
	} else if ok {
		req.SeatPreference = p.Value
	}

	if req.PreferredAirline != "" {
		return
	}
	if p, ok, err := c.deps.Preferences.GetPreference(pctx, st.UserID, models.PreferenceAirline); err != nil {
		slog.Warn("Controller.applyPreferences: airline lookup failed", "user", st.UserID, "error", err)
	} else if ok {
		req.PreferredAirline = p.Value
	}
}

func flightOptions(options []models.BookingOption) models.Directive {
	opts := make([]models.Option, 0, len(options))
	for _, o := range options {
		label := fmt.Sprintf("%s %s %.2f %s", o.ID, o.Provider, o.Price, o.Currency)
		if o.Time != "" {
			label = fmt.Sprintf("%s %s %s %.2f %s", o.ID, o.Provider, o.Time, o.Price, o.Currency)
		}
		opts = append(opts, models.Option{Label: label, Payload: o.ID})
	}
	return models.ShowOptions(models.NoticeFlightOptions, opts, nil)
}

func confirmSelectionNotice(opt *models.BookingOption) models.Directive {
	if opt == nil {
		return models.Notify(models.NoticeConfirmSelection, nil)
	}
	return models.Notify(models.NoticeConfirmSelection, map[string]string{
		"id":       opt.ID,
		"provider": opt.Provider,
		"price":    fmt.Sprintf("%.2f", opt.Price),
		"currency": opt.Currency,
	})
}

// offerFollowUp offers another booking at destination and keeps the offer on st
// until the next turn.
func offerFollowUp(st *models.ConversationState, kind models.FlowKind, destination string) models.Directive {
	st.Offer = &models.FollowUpOffer{Flow: kind, Destination: destination}
	return models.Notify(models.NoticeUpsell, map[string]string{"offer": string(kind), "destination": destination})
}

// answerOffer consumes a yes or no to a pending follow-up offer. Any turn drops
// the offer; other turns are left to the normal routing.
func (c *Controller) answerOffer(ctx context.Context, st *models.ConversationState, turn models.Turn) ([]models.Directive, bool) {
	offer := st.Offer
	st.Offer = nil
	if offer == nil || st.ActiveFlow != models.FlowNone || requestedFlow(turn) != models.FlowNone {
		return nil, false
	}
	switch {
	case turn.HasIntent(models.IntentAffirm):
		slog.Info("Controller.answerOffer: accepted", "session", st.SessionID, "flow", offer.Flow, "destination", offer.Destination)
		start := turn
		start.Intent = string(models.IntentInform)
		if offer.Destination != "" && len(turn.EntitiesOf(models.EntityCity)) == 0 {
			dest := models.Entity{Type: models.EntityCity, Value: offer.Destination, Role: models.RoleDestination}
			start.Entities = append([]models.Entity{dest}, turn.Entities...)
		}
		return c.startFlow(ctx, st, offer.Flow, start), true
	case turn.HasIntent(models.IntentDeny):
		slog.Debug("Controller.answerOffer: declined", "session", st.SessionID, "flow", offer.Flow)
		return []models.Directive{models.Notify(models.NoticeOfferDeclined, nil)}, true
	}
	return nil, false
}
