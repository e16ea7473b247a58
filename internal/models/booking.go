package models

import "time"

// BookingRequest is the structured request assembled from a completed flow.
type BookingRequest struct {
	Flow FlowKind `json:"flow"`

	TripType            string     `json:"trip_type,omitempty"`
	Departure           *Location  `json:"departure,omitempty"`
	Destination         *Location  `json:"destination,omitempty"`
	Destinations        []Location `json:"destinations,omitempty"`
	DepartureDate       string     `json:"departure_date,omitempty"`
	ReturnDate          string     `json:"return_date,omitempty"`
	Passengers          int        `json:"passengers,omitempty"`
	TravelClass         string     `json:"travel_class,omitempty"`
	PreferredAirline    string     `json:"preferred_airline,omitempty"`
	FrequentFlyerNumber string     `json:"frequent_flyer_number,omitempty"`
	SeatPreference      string     `json:"seat_preference,omitempty"`

	HotelLocation string `json:"hotel_location,omitempty"`
	CheckInDate   string `json:"check_in_date,omitempty"`
	CheckOutDate  string `json:"check_out_date,omitempty"`
	Guests        int    `json:"guests,omitempty"`

	PickupLocation string `json:"pickup_location,omitempty"`
	PickupDate     string `json:"pickup_date,omitempty"`
	DropoffDate    string `json:"dropoff_date,omitempty"`
	CarCategory    string `json:"car_category,omitempty"`

	// Options carries the search results of single-result flows.
	Options []BookingOption `json:"options,omitempty"`
}

// FinalDestination returns where the trip ends up, for follow-up offers.
func (r BookingRequest) FinalDestination() string {
	switch {
	case len(r.Destinations) > 0:
		return r.Destinations[len(r.Destinations)-1].Name
	case r.Destination != nil:
		return r.Destination.Name
	case r.HotelLocation != "":
		return r.HotelLocation
	default:
		return r.PickupLocation
	}
}

// BookingOption is one search result.
type BookingOption struct {
	ID          string  `json:"id"`
	Provider    string  `json:"provider"`
	Description string  `json:"description,omitempty"`
	Time        string  `json:"time,omitempty"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
}

// Confirmation is returned by the booking collaborator after a successful booking.
type Confirmation struct {
	Reference   string    `json:"reference"`
	OptionID    string    `json:"option_id"`
	Status      string    `json:"status"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// BookingRecord is a ledger row written after a confirmed booking.
type BookingRecord struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Flow      FlowKind       `json:"flow"`
	Reference string         `json:"reference"`
	Option    BookingOption  `json:"option"`
	Request   BookingRequest `json:"request"`
	CreatedAt time.Time      `json:"created_at"`
}

// Preference is a durable user setting, independent of any flow.
type Preference struct {
	UserID    string    `json:"user_id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
