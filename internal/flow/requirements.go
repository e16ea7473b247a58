package flow

import "github.com/BTreeMap/TripPipe/internal/models"

// Passenger counts above this threshold require a travel class.
const travelClassThreshold = 4

var (
	hotelFields = []models.FieldName{
		models.FieldHotelLocation,
		models.FieldCheckInDate,
		models.FieldCheckOutDate,
		models.FieldGuestCount,
	}
	carFields = []models.FieldName{
		models.FieldPickupLocation,
		models.FieldPickupDate,
		models.FieldDropoffDate,
		models.FieldCarCategory,
	}
)

// RequiredFields returns the ordered list of fields the flow needs given what has
// been collected so far. For multi-city trips the list contains the pseudo-fields
// nextDestination and addMoreDestinations while the itinerary is open, and
// destinations once it is closed.
func RequiredFields(kind models.FlowKind, collected map[models.FieldName]models.Value) []models.FieldName {
	switch kind {
	case models.FlowHotel:
		return append([]models.FieldName(nil), hotelFields...)
	case models.FlowCar:
		return append([]models.FieldName(nil), carFields...)
	case models.FlowFlight:
		return flightFields(collected)
	default:
		return nil
	}
}

func flightFields(collected map[models.FieldName]models.Value) []models.FieldName {
	trip := collected[models.FieldTripType].Text

	fields := []models.FieldName{models.FieldTripType, models.FieldDepartureCity}
	if trip == models.TripMultiCity {
		fields = append(fields, itineraryRequirement(collected))
	} else {
		fields = append(fields, models.FieldDestinationCity)
	}
	fields = append(fields, models.FieldDepartureDate)
	if trip == models.TripRoundTrip {
		fields = append(fields, models.FieldReturnDate)
	}
	fields = append(fields, models.FieldPassengerCount)
	if p, ok := collected[models.FieldPassengerCount]; ok && p.Number > travelClassThreshold {
		fields = append(fields, models.FieldTravelClass)
	}
	return append(fields, models.FieldPreferredAirline, models.FieldFrequentFlyerNumber)
}

// itineraryRequirement walks the multi-city accumulator: ask for a stop, then ask
// whether to add another, and repeat until the user says no.
func itineraryRequirement(collected map[models.FieldName]models.Value) models.FieldName {
	if len(collected[models.FieldDestinations].Items) == 0 {
		return models.FieldNextDestination
	}
	more, ok := collected[models.FieldAddMoreDestinations]
	switch {
	case !ok || more.Flag == nil:
		return models.FieldAddMoreDestinations
	case *more.Flag:
		return models.FieldNextDestination
	default:
		return models.FieldDestinations
	}
}

// isFilled reports whether a required field is satisfied. Accumulator
// pseudo-fields only appear in the list while they still need an answer.
func isFilled(st *models.ConversationState, f models.FieldName) bool {
	switch f {
	case models.FieldNextDestination, models.FieldAddMoreDestinations:
		return false
	default:
		return st.Has(f)
	}
}

// MissingFields returns the required fields that are not yet filled, in order.
func MissingFields(st *models.ConversationState) []models.FieldName {
	var missing []models.FieldName
	for _, f := range RequiredFields(st.ActiveFlow, st.Collected) {
		if !isFilled(st, f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// recompute refreshes FieldOrder and PendingField after any mutation. PendingField
// is always the head of FieldOrder.
func recompute(st *models.ConversationState) {
	st.FieldOrder = MissingFields(st)
	if len(st.FieldOrder) == 0 {
		st.PendingField = ""
		return
	}
	st.PendingField = st.FieldOrder[0]
}
