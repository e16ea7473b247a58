// Package models defines flow type definitions shared by the dialogue controller,
// the storage layer and the API without creating import cycles.
package models

// FlowKind identifies one booking conversation type.
type FlowKind string

// StageType represents where the active flow currently is.
type StageType string

// FieldName names a single slot a flow has to collect.
type FieldName string

// Intent is a single intent label produced by the NLU collaborator.
type Intent string

// EntityType is the type of an extracted entity.
type EntityType string

// Flow kind constants.
const (
	FlowNone   FlowKind = ""
	FlowFlight FlowKind = "flight"
	FlowHotel  FlowKind = "hotel"
	FlowCar    FlowKind = "car"
)

// Stage constants.
const (
	StageCollecting           StageType = "collecting"
	StageReviewing            StageType = "reviewing"
	StageCorrecting           StageType = "correcting"
	StageSearching            StageType = "searching"
	StageSelecting            StageType = "selecting"
	StageAwaitingFinalConfirm StageType = "awaiting_final_confirm"
)

// Flight fields, in the order they are asked.
const (
	FieldTripType            FieldName = "tripType"
	FieldDepartureCity       FieldName = "departureCity"
	FieldDestinationCity     FieldName = "destinationCity"
	FieldDestinations        FieldName = "destinations"
	FieldNextDestination     FieldName = "nextDestination"
	FieldAddMoreDestinations FieldName = "addMoreDestinations"
	FieldDepartureDate       FieldName = "departureDate"
	FieldReturnDate          FieldName = "returnDate"
	FieldPassengerCount      FieldName = "passengerCount"
	FieldTravelClass         FieldName = "travelClass"
	FieldPreferredAirline    FieldName = "preferredAirline"
	FieldFrequentFlyerNumber FieldName = "frequentFlyerNumber"
)

// Hotel fields.
const (
	FieldHotelLocation FieldName = "hotelLocation"
	FieldCheckInDate   FieldName = "checkInDate"
	FieldCheckOutDate  FieldName = "checkOutDate"
	FieldGuestCount    FieldName = "guestCount"
)

// Car rental fields.
const (
	FieldPickupLocation FieldName = "pickupLocation"
	FieldPickupDate     FieldName = "pickupDate"
	FieldDropoffDate    FieldName = "dropoffDate"
	FieldCarCategory    FieldName = "carCategory"
)

// Intent labels understood by the controller. Multi-intent turns join labels with "+".
const (
	IntentBookFlight       Intent = "book_flight"
	IntentBookHotel        Intent = "book_hotel"
	IntentBookCar          Intent = "book_car"
	IntentInform           Intent = "inform"
	IntentCorrect          Intent = "correct"
	IntentAffirm           Intent = "affirm"
	IntentDeny             Intent = "deny"
	IntentStop             Intent = "stop"
	IntentCancel           Intent = "cancel"
	IntentHelp             Intent = "help"
	IntentOutOfScope       Intent = "out_of_scope"
	IntentFallback         Intent = "nlu_fallback"
	IntentBotChallenge     Intent = "bot_challenge"
	IntentDeletePreference Intent = "delete_preference"
	IntentStorePreference  Intent = "store_preference"
	IntentSelectAirport    Intent = "select_airport"
	IntentSelectFlight     Intent = "select_flight"
	IntentConfirmBooking   Intent = "confirm_booking"
	IntentGreet            Intent = "greet"
)

// Entity types emitted by the NLU collaborator.
const (
	EntityTripType            EntityType = "trip_type"
	EntityCity                EntityType = "city"
	EntityDate                EntityType = "date"
	EntityNumber              EntityType = "number"
	EntityTravelClass         EntityType = "travel_class"
	EntityAirline             EntityType = "airline"
	EntityFrequentFlyerNumber EntityType = "frequent_flyer_number"
	EntityHotel               EntityType = "hotel"
	EntityCarType             EntityType = "car_type"
	EntityIATACode            EntityType = "iata_code"
	EntityFlightID            EntityType = "flight_id"
	EntityOrdinal             EntityType = "ordinal"
	EntitySeatPreference      EntityType = "seat_preference"
	EntityPreferenceKey       EntityType = "preference_key"
)

// Entity roles distinguishing same-typed entities.
const (
	RoleDeparture             = "departure"
	RoleDestination           = "destination"
	RoleDestinationSubsequent = "destination_subsequent"
	RoleReturn                = "return"
	RoleCheckIn               = "check_in"
	RoleCheckOut              = "check_out"
	RolePickup                = "pickup"
	RoleDropoff               = "dropoff"
	RolePassengers            = "passengers"
	RoleGuests                = "guests"
)

// Trip types.
const (
	TripOneWay    = "one-way"
	TripRoundTrip = "round trip"
	TripMultiCity = "multi-city"
)

// Preference keys.
const (
	PreferenceSeat    = "seat_preference"
	PreferenceAirline = "preferred_airline"
)

// IsLocationField reports whether the field holds a resolved Location.
func IsLocationField(f FieldName) bool {
	switch f {
	case FieldDepartureCity, FieldDestinationCity, FieldNextDestination, FieldDestinations, FieldPickupLocation:
		return true
	default:
		return false
	}
}

// IsDateField reports whether the field holds a calendar date.
func IsDateField(f FieldName) bool {
	switch f {
	case FieldDepartureDate, FieldReturnDate, FieldCheckInDate, FieldCheckOutDate, FieldPickupDate, FieldDropoffDate:
		return true
	default:
		return false
	}
}

// IsOptionalField reports whether the user may decline the field.
func IsOptionalField(f FieldName) bool {
	return f == FieldPreferredAirline || f == FieldFrequentFlyerNumber
}
