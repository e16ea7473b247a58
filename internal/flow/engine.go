package flow

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BTreeMap/TripPipe/internal/models"
	"github.com/BTreeMap/TripPipe/internal/normalize"
)

// applyMode controls where entities land.
type applyMode struct {
	correcting bool
	// stopIndex is the itinerary slot a destination is written to; -1 appends.
	stopIndex int
}

var collectMode = applyMode{stopIndex: -1}

// Entity types consumed by side actions rather than written to fields.
var sideEntityTypes = map[models.EntityType]bool{
	models.EntityPreferenceKey:  true,
	models.EntitySeatPreference: true,
	models.EntityOrdinal:        true,
	models.EntityFlightID:       true,
	models.EntityIATACode:       true,
}

// fieldEntities returns the entities that can fill a field.
func fieldEntities(turn models.Turn) []models.Entity {
	var out []models.Entity
	for _, e := range turn.Entities {
		if !sideEntityTypes[e.Type] {
			out = append(out, e)
		}
	}
	return out
}

// entityRank orders writes inside one turn: trip type first so that the
// fields it invalidates are dropped before new ones land, dates last so
// start/end checks see the final values of everything else.
func entityRank(e models.Entity) int {
	switch e.Type {
	case models.EntityTripType:
		return 0
	case models.EntityDate:
		return 2
	default:
		return 1
	}
}

// applyEntities writes every usable entity of turn into st. Once a location
// opens an ambiguity or suggestion context, later location entities of the same
// turn are skipped.
func (c *Controller) applyEntities(ctx context.Context, st *models.ConversationState, turn models.Turn, mode applyMode) []models.Directive {
	entities := fieldEntities(turn)
	sort.SliceStable(entities, func(i, j int) bool {
		return entityRank(entities[i]) < entityRank(entities[j])
	})

	var out []models.Directive
	contextOpened := false
	for _, e := range entities {
		field, index, ok := c.targetField(st, e, mode)
		if !ok {
			slog.Debug("Controller.applyEntities: entity not applicable", "session", st.SessionID,
				"type", e.Type, "role", e.Role, "flow", st.ActiveFlow)
			continue
		}
		if contextOpened && resolvesLocation(st.ActiveFlow, field) {
			slog.Debug("Controller.applyEntities: skipping location while a context is open", "field", field, "value", e.Value)
			continue
		}

		ds, err := c.setField(ctx, st, field, index, e.Value)
		out = append(out, ds...)
		if err == nil {
			// Later unroled entities follow the new pending field.
			recompute(st)
			continue
		}
		var amb *models.AmbiguityError
		if errors.As(err, &amb) {
			contextOpened = true
			continue
		}
		slog.Debug("Controller.applyEntities: rejected", "session", st.SessionID, "field", field, "error", err)
		out = append(out, errorDirective(err))
	}
	return out
}

// targetField maps an entity onto the field it fills, using its role first and
// the pending field second.
func (c *Controller) targetField(st *models.ConversationState, e models.Entity, mode applyMode) (models.FieldName, int, bool) {
	flow := st.ActiveFlow
	switch e.Type {
	case models.EntityTripType:
		return models.FieldTripType, -1, flow == models.FlowFlight
	case models.EntityCity:
		return cityTarget(st, e.Role, mode)
	case models.EntityDate:
		return dateTarget(st, e.Role)
	case models.EntityNumber:
		switch flow {
		case models.FlowFlight:
			return models.FieldPassengerCount, -1, e.Role == "" || e.Role == models.RolePassengers
		case models.FlowHotel:
			return models.FieldGuestCount, -1, true
		}
	case models.EntityTravelClass:
		return models.FieldTravelClass, -1, flow == models.FlowFlight
	case models.EntityAirline:
		return models.FieldPreferredAirline, -1, flow == models.FlowFlight
	case models.EntityFrequentFlyerNumber:
		return models.FieldFrequentFlyerNumber, -1, flow == models.FlowFlight
	case models.EntityHotel:
		return models.FieldHotelLocation, -1, flow == models.FlowHotel
	case models.EntityCarType:
		return models.FieldCarCategory, -1, flow == models.FlowCar
	}
	return "", -1, false
}

func cityTarget(st *models.ConversationState, role string, mode applyMode) (models.FieldName, int, bool) {
	switch st.ActiveFlow {
	case models.FlowHotel:
		return models.FieldHotelLocation, -1, true
	case models.FlowCar:
		return models.FieldPickupLocation, -1, true
	case models.FlowFlight:
	default:
		return "", -1, false
	}

	multi := st.Collected[models.FieldTripType].Text == models.TripMultiCity
	switch role {
	case models.RoleDeparture:
		return models.FieldDepartureCity, -1, true
	case models.RoleDestination, models.RoleDestinationSubsequent:
		if multi {
			return models.FieldNextDestination, mode.stopIndex, true
		}
		return models.FieldDestinationCity, -1, true
	}

	switch st.PendingField {
	case models.FieldDepartureCity, models.FieldDestinationCity:
		return st.PendingField, -1, true
	case models.FieldNextDestination, models.FieldAddMoreDestinations:
		return models.FieldNextDestination, mode.stopIndex, true
	}
	if !mode.correcting && !st.Has(models.FieldDepartureCity) {
		return models.FieldDepartureCity, -1, true
	}
	if multi {
		return models.FieldNextDestination, mode.stopIndex, true
	}
	return models.FieldDestinationCity, -1, true
}

// dateFields returns the start and end date fields of a flow.
func dateFields(flow models.FlowKind) (start, end models.FieldName) {
	switch flow {
	case models.FlowFlight:
		return models.FieldDepartureDate, models.FieldReturnDate
	case models.FlowHotel:
		return models.FieldCheckInDate, models.FieldCheckOutDate
	case models.FlowCar:
		return models.FieldPickupDate, models.FieldDropoffDate
	}
	return "", ""
}

func dateTarget(st *models.ConversationState, role string) (models.FieldName, int, bool) {
	start, end := dateFields(st.ActiveFlow)
	if start == "" {
		return "", -1, false
	}
	// A one-way or multi-city flight has no end date. Before the trip type is
	// known the return date is kept; a later trip type drops it again.
	endAllowed := st.ActiveFlow != models.FlowFlight || !st.Has(models.FieldTripType) ||
		st.Collected[models.FieldTripType].Text == models.TripRoundTrip

	switch role {
	case models.RoleDeparture, models.RoleCheckIn, models.RolePickup:
		return start, -1, true
	case models.RoleReturn, models.RoleCheckOut, models.RoleDropoff:
		return end, -1, endAllowed
	}
	if models.IsDateField(st.PendingField) {
		return st.PendingField, -1, true
	}
	if !st.Has(start) {
		return start, -1, true
	}
	if requires(st, end) && !st.Has(end) {
		return end, -1, true
	}
	return start, -1, true
}

// requires reports whether f is currently a required field of the active flow.
func requires(st *models.ConversationState, f models.FieldName) bool {
	for _, r := range RequiredFields(st.ActiveFlow, st.Collected) {
		if r == f {
			return true
		}
	}
	return false
}

// resolvesLocation reports whether a field goes through the location resolver.
// Hotel locations are free text.
func resolvesLocation(flow models.FlowKind, f models.FieldName) bool {
	return flow != models.FlowHotel && models.IsLocationField(f)
}

// setField normalizes raw and writes it into field. Location fields may instead
// open a disambiguation context, reported as an AmbiguityError.
func (c *Controller) setField(ctx context.Context, st *models.ConversationState, field models.FieldName, index int, raw string) ([]models.Directive, error) {
	raw = strings.TrimSpace(raw)

	if resolvesLocation(st.ActiveFlow, field) {
		return c.resolveLocation(ctx, st, field, index, raw)
	}
	if models.IsDateField(field) {
		return nil, c.setDate(st, field, raw)
	}

	switch field {
	case models.FieldTripType:
		trip, err := normalize.TripType(raw)
		if err != nil {
			return nil, models.NewValidationError(field, models.ReasonInvalidTripType, raw)
		}
		c.write(st, field, models.TextValue(trip))

	case models.FieldPassengerCount, models.FieldGuestCount:
		n, err := normalize.ParseCount(raw)
		switch {
		case errors.Is(err, normalize.ErrNonPositive):
			return nil, models.NewValidationError(field, models.ReasonNonPositive, raw)
		case err != nil:
			return nil, models.NewValidationError(field, models.ReasonInvalidNumber, raw)
		}
		c.write(st, field, models.NumberValue(n))

	case models.FieldTravelClass:
		class, err := normalize.TravelClass(raw)
		if err != nil {
			return nil, models.NewValidationError(field, models.ReasonInvalidTravelClass, raw)
		}
		c.write(st, field, models.TextValue(class))

	case models.FieldCarCategory:
		cat, err := normalize.CarCategory(raw)
		if err != nil {
			return nil, models.NewValidationError(field, models.ReasonInvalidCarCategory, raw)
		}
		c.write(st, field, models.TextValue(cat))

	case models.FieldPreferredAirline:
		if raw == "" {
			return nil, models.NewValidationError(field, models.ReasonEmptyValue, raw)
		}
		c.write(st, field, models.TextValue(normalize.Airline(raw)))

	case models.FieldFrequentFlyerNumber:
		airline := ""
		if v, ok := st.Get(models.FieldPreferredAirline); ok && !v.Declined {
			airline = v.Text
		}
		number, err := normalize.FrequentFlyerNumber(airline, raw)
		if err != nil {
			return nil, models.NewValidationError(field, models.ReasonInvalidFrequentFlyer, raw)
		}
		c.write(st, field, models.TextValue(number))

	case models.FieldHotelLocation:
		if raw == "" {
			return nil, models.NewValidationError(field, models.ReasonEmptyValue, raw)
		}
		c.write(st, field, models.TextValue(normalize.Title(raw)))

	default:
		return nil, &models.FlowStateError{Op: "setField", Detail: "no writer for field " + string(field)}
	}
	return nil, nil
}

func (c *Controller) setDate(st *models.ConversationState, field models.FieldName, raw string) error {
	t, err := c.deps.Normalizer.ParseDate(raw)
	switch {
	case errors.Is(err, normalize.ErrPastDate):
		return models.NewValidationError(field, models.ReasonPastDate, raw)
	case err != nil:
		return models.NewValidationError(field, models.ReasonInvalidDate, raw)
	}

	start, end := dateFields(st.ActiveFlow)
	if field == end {
		if sv, ok := st.Get(start); ok {
			if s, perr := time.Parse(normalize.DateLayout, sv.Text); perr == nil && !t.After(s) {
				return models.NewValidationError(field, models.ReasonEndNotAfterStart, raw)
			}
		}
	}
	c.write(st, field, models.TextValue(normalize.FormatDate(t)))
	return nil
}

// write stores a value and drops whatever it invalidates.
func (c *Controller) write(st *models.ConversationState, f models.FieldName, v models.Value) {
	old, had := st.Collected[f]
	st.Collected[f] = v
	slog.Debug("Controller.write", "session", st.SessionID, "field", f, "text", v.Text, "number", v.Number, "declined", v.Declined)

	switch f {
	case models.FieldTripType:
		reshapeTrip(st, v.Text)
	case models.FieldPassengerCount:
		if v.Number <= travelClassThreshold {
			dropField(st, models.FieldTravelClass)
		}
	case models.FieldDepartureDate, models.FieldCheckInDate, models.FieldPickupDate:
		dropEndIfNotAfter(st, f)
	case models.FieldPreferredAirline:
		if had && (old.Text != v.Text || old.Declined != v.Declined) {
			dropField(st, models.FieldFrequentFlyerNumber)
		}
	}
}

func dropField(st *models.ConversationState, f models.FieldName) {
	if _, ok := st.Collected[f]; ok {
		delete(st.Collected, f)
		slog.Debug("Controller: dropped invalidated field", "session", st.SessionID, "field", f)
	}
}

// reshapeTrip removes the fields a trip type change makes meaningless. Switching
// to multi-city keeps a known destination as the first stop.
func reshapeTrip(st *models.ConversationState, trip string) {
	switch trip {
	case models.TripOneWay:
		dropField(st, models.FieldReturnDate)
		dropField(st, models.FieldDestinations)
		dropField(st, models.FieldAddMoreDestinations)
	case models.TripRoundTrip:
		dropField(st, models.FieldDestinations)
		dropField(st, models.FieldAddMoreDestinations)
	case models.TripMultiCity:
		dropField(st, models.FieldReturnDate)
		if dest, ok := st.Get(models.FieldDestinationCity); ok && len(st.Itinerary()) == 0 {
			st.Collected[models.FieldDestinations] = models.Value{Items: []models.Location{dest.Location()}}
		}
		dropField(st, models.FieldDestinationCity)
	}
}

func dropEndIfNotAfter(st *models.ConversationState, start models.FieldName) {
	_, end := dateFields(st.ActiveFlow)
	ev, ok := st.Get(end)
	if !ok {
		return
	}
	s, err1 := time.Parse(normalize.DateLayout, st.Collected[start].Text)
	e, err2 := time.Parse(normalize.DateLayout, ev.Text)
	if err1 != nil || err2 != nil || !e.After(s) {
		dropField(st, end)
	}
}
