package flow

import (
	"reflect"
	"testing"

	"github.com/BTreeMap/TripPipe/internal/models"
)

func TestRequiredFields(t *testing.T) {
	paris := models.Location{Name: "Paris", Code: "CDG"}
	tests := []struct {
		name      string
		kind      models.FlowKind
		collected map[models.FieldName]models.Value
		want      []models.FieldName
	}{
		{
			name: "no flow",
			kind: models.FlowNone,
		},
		{
			name: "flight before trip type",
			kind: models.FlowFlight,
			want: []models.FieldName{
				models.FieldTripType, models.FieldDepartureCity, models.FieldDestinationCity,
				models.FieldDepartureDate, models.FieldPassengerCount,
				models.FieldPreferredAirline, models.FieldFrequentFlyerNumber,
			},
		},
		{
			name: "round trip with a large party",
			kind: models.FlowFlight,
			collected: map[models.FieldName]models.Value{
				models.FieldTripType:       models.TextValue(models.TripRoundTrip),
				models.FieldPassengerCount: models.NumberValue(5),
			},
			want: []models.FieldName{
				models.FieldTripType, models.FieldDepartureCity, models.FieldDestinationCity,
				models.FieldDepartureDate, models.FieldReturnDate, models.FieldPassengerCount,
				models.FieldTravelClass, models.FieldPreferredAirline, models.FieldFrequentFlyerNumber,
			},
		},
		{
			name: "four passengers skip travel class",
			kind: models.FlowFlight,
			collected: map[models.FieldName]models.Value{
				models.FieldTripType:       models.TextValue(models.TripOneWay),
				models.FieldPassengerCount: models.NumberValue(4),
			},
			want: []models.FieldName{
				models.FieldTripType, models.FieldDepartureCity, models.FieldDestinationCity,
				models.FieldDepartureDate, models.FieldPassengerCount,
				models.FieldPreferredAirline, models.FieldFrequentFlyerNumber,
			},
		},
		{
			name: "multi-city with empty itinerary",
			kind: models.FlowFlight,
			collected: map[models.FieldName]models.Value{
				models.FieldTripType: models.TextValue(models.TripMultiCity),
			},
			want: []models.FieldName{
				models.FieldTripType, models.FieldDepartureCity, models.FieldNextDestination,
				models.FieldDepartureDate, models.FieldPassengerCount,
				models.FieldPreferredAirline, models.FieldFrequentFlyerNumber,
			},
		},
		{
			name: "multi-city asks whether to add more",
			kind: models.FlowFlight,
			collected: map[models.FieldName]models.Value{
				models.FieldTripType:     models.TextValue(models.TripMultiCity),
				models.FieldDestinations: {Items: []models.Location{paris}},
			},
			want: []models.FieldName{
				models.FieldTripType, models.FieldDepartureCity, models.FieldAddMoreDestinations,
				models.FieldDepartureDate, models.FieldPassengerCount,
				models.FieldPreferredAirline, models.FieldFrequentFlyerNumber,
			},
		},
		{
			name: "multi-city closed itinerary",
			kind: models.FlowFlight,
			collected: map[models.FieldName]models.Value{
				models.FieldTripType:            models.TextValue(models.TripMultiCity),
				models.FieldDestinations:        {Items: []models.Location{paris}},
				models.FieldAddMoreDestinations: models.FlagValue(false),
			},
			want: []models.FieldName{
				models.FieldTripType, models.FieldDepartureCity, models.FieldDestinations,
				models.FieldDepartureDate, models.FieldPassengerCount,
				models.FieldPreferredAirline, models.FieldFrequentFlyerNumber,
			},
		},
		{
			name: "hotel",
			kind: models.FlowHotel,
			want: []models.FieldName{
				models.FieldHotelLocation, models.FieldCheckInDate, models.FieldCheckOutDate, models.FieldGuestCount,
			},
		},
		{
			name: "car",
			kind: models.FlowCar,
			want: []models.FieldName{
				models.FieldPickupLocation, models.FieldPickupDate, models.FieldDropoffDate, models.FieldCarCategory,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RequiredFields(tt.kind, tt.collected)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("RequiredFields() = %v\nwant %v", got, tt.want)
			}
		})
	}
}

func TestRecomputeKeepsPendingAtHead(t *testing.T) {
	st := newState()
	st.ActiveFlow = models.FlowFlight
	recompute(st)
	if st.PendingField != models.FieldTripType {
		t.Fatalf("pending = %q", st.PendingField)
	}

	st.Collected[models.FieldTripType] = models.TextValue(models.TripMultiCity)
	st.Collected[models.FieldDepartureCity] = models.LocationValue(models.Location{Name: "London", Code: "LHR"})
	recompute(st)
	if st.PendingField != models.FieldNextDestination {
		t.Errorf("pending = %q, want next destination", st.PendingField)
	}
	expectPendingInvariant(t, st)

	st.Collected[models.FieldDestinations] = models.Value{Items: []models.Location{{Name: "Paris", Code: "CDG"}}}
	st.Collected[models.FieldAddMoreDestinations] = models.FlagValue(true)
	recompute(st)
	if st.PendingField != models.FieldNextDestination {
		t.Errorf("pending = %q after asking for more", st.PendingField)
	}

	st.Collected[models.FieldAddMoreDestinations] = models.FlagValue(false)
	st.Collected[models.FieldDepartureDate] = models.TextValue("2025-02-10")
	st.Collected[models.FieldPassengerCount] = models.NumberValue(2)
	st.Collected[models.FieldPreferredAirline] = models.DeclinedValue()
	st.Collected[models.FieldFrequentFlyerNumber] = models.DeclinedValue()
	recompute(st)
	if st.PendingField != "" || len(st.FieldOrder) != 0 {
		t.Errorf("expected nothing pending, got %q %v", st.PendingField, st.FieldOrder)
	}
	expectPendingInvariant(t, st)
}
