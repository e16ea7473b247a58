package flow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/TripPipe/internal/models"
)

// Summary renders the collected fields of the active flow as one sentence.
// Only filled fields appear, so it also serves as a progress recap.
func Summary(st *models.ConversationState) string {
	switch st.ActiveFlow {
	case models.FlowFlight:
		return flightSummary(st)
	case models.FlowHotel:
		return hotelSummary(st)
	case models.FlowCar:
		return carSummary(st)
	default:
		return ""
	}
}

func flightSummary(st *models.ConversationState) string {
	var b strings.Builder
	if trip, ok := st.Get(models.FieldTripType); ok {
		if strings.HasSuffix(trip.Text, "trip") {
			fmt.Fprintf(&b, "a %s", trip.Text)
		} else {
			fmt.Fprintf(&b, "a %s trip", trip.Text)
		}
	} else {
		b.WriteString("a trip")
	}
	if p, ok := st.Get(models.FieldPassengerCount); ok {
		fmt.Fprintf(&b, " for %s", plural(p.Number, "passenger"))
	}
	if dep, ok := st.Get(models.FieldDepartureCity); ok {
		fmt.Fprintf(&b, " from %s", place(dep.Location()))
	}
	if items := st.Itinerary(); len(items) > 0 {
		stops := make([]string, 0, len(items))
		for _, loc := range items {
			stops = append(stops, place(loc))
		}
		fmt.Fprintf(&b, " to %s", strings.Join(stops, " -> "))
	} else if dest, ok := st.Get(models.FieldDestinationCity); ok {
		fmt.Fprintf(&b, " to %s", place(dest.Location()))
	}
	if d, ok := st.Get(models.FieldDepartureDate); ok {
		fmt.Fprintf(&b, " departing on %s", d.Text)
	}
	if r, ok := st.Get(models.FieldReturnDate); ok {
		fmt.Fprintf(&b, " and returning on %s", r.Text)
	}
	if class, ok := st.Get(models.FieldTravelClass); ok {
		fmt.Fprintf(&b, " in %s class", class.Text)
	}
	if airline, ok := st.Get(models.FieldPreferredAirline); ok && !airline.Declined {
		fmt.Fprintf(&b, " on %s", airline.Text)
	}
	return b.String()
}

func hotelSummary(st *models.ConversationState) string {
	var b strings.Builder
	b.WriteString("a hotel stay")
	if loc, ok := st.Get(models.FieldHotelLocation); ok {
		fmt.Fprintf(&b, " at %s", loc.Text)
	}
	if in, ok := st.Get(models.FieldCheckInDate); ok {
		fmt.Fprintf(&b, " from %s", in.Text)
	}
	if out, ok := st.Get(models.FieldCheckOutDate); ok {
		fmt.Fprintf(&b, " to %s", out.Text)
	}
	if g, ok := st.Get(models.FieldGuestCount); ok {
		fmt.Fprintf(&b, " for %s", plural(g.Number, "guest"))
	}
	return b.String()
}

func carSummary(st *models.ConversationState) string {
	var b strings.Builder
	if cat, ok := st.Get(models.FieldCarCategory); ok {
		fmt.Fprintf(&b, "a %s rental car", cat.Text)
	} else {
		b.WriteString("a rental car")
	}
	if loc, ok := st.Get(models.FieldPickupLocation); ok {
		fmt.Fprintf(&b, " in %s", loc.Text)
	}
	if p, ok := st.Get(models.FieldPickupDate); ok {
		fmt.Fprintf(&b, " from %s", p.Text)
	}
	if d, ok := st.Get(models.FieldDropoffDate); ok {
		fmt.Fprintf(&b, " to %s", d.Text)
	}
	return b.String()
}

func place(loc models.Location) string {
	if loc.Code == "" {
		return loc.Name
	}
	return fmt.Sprintf("%s (%s)", loc.Name, loc.Code)
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
