package normalize

import (
	"regexp"
	"strings"

	"github.com/BTreeMap/TripPipe/internal/models"
)

// TripType maps free text to one of the canonical trip types.
func TripType(raw string) (string, error) {
	s := CompactKey(raw)
	switch {
	case strings.Contains(s, "multi"):
		return models.TripMultiCity, nil
	case strings.Contains(s, "round"), strings.Contains(s, "return"):
		return models.TripRoundTrip, nil
	case strings.Contains(s, "one"), strings.Contains(s, "single"):
		return models.TripOneWay, nil
	}
	return "", ErrUnknownTripType
}

// TravelClass maps free text to economy, premium economy, business or first.
func TravelClass(raw string) (string, error) {
	s := FoldText(raw)
	switch {
	case strings.Contains(s, "premium"):
		return "premium economy", nil
	case strings.Contains(s, "economy"), strings.Contains(s, "coach"):
		return "economy", nil
	case strings.Contains(s, "business"):
		return "business", nil
	case strings.Contains(s, "first"):
		return "first", nil
	}
	return "", ErrUnknownTravelClass
}

// Checked in order; the first alias contained in the input wins.
var carCategories = []struct{ alias, category string }{
	{"suv", "suv"},
	{"luxury", "luxury"},
	{"premium", "luxury"},
	{"fullsize", "full-size"},
	{"standard", "full-size"},
	{"midsize", "midsize"},
	{"intermediate", "midsize"},
	{"compact", "compact"},
	{"economy", "economy"},
}

// CarCategory maps free text to a rental car category.
func CarCategory(raw string) (string, error) {
	s := CompactKey(raw)
	for _, c := range carCategories {
		if strings.Contains(s, c.alias) {
			return c.category, nil
		}
	}
	return "", ErrUnknownCarCategory
}

// SeatPreference maps free text to window, aisle or middle.
func SeatPreference(raw string) (string, error) {
	s := FoldText(raw)
	for _, seat := range []string{"window", "aisle", "middle"} {
		if strings.Contains(s, seat) {
			return seat, nil
		}
	}
	return "", ErrUnknownSeat
}

var knownAirlines = map[string]string{
	"awesomeairlines": "AwesomeAirlines",
	"flyhigh":         "FlyHigh",
	"skyjet":          "SkyJet",
}

// Airline returns the display name of a known airline, or the title-cased input.
func Airline(raw string) string {
	if name, ok := knownAirlines[CompactKey(raw)]; ok {
		return name
	}
	return Title(FoldText(raw))
}

var frequentFlyerFormats = map[string]*regexp.Regexp{
	"awesomeairlines": regexp.MustCompile(`^[A-Z]{2}\d{8}$`),
	"flyhigh":         regexp.MustCompile(`^[A-Z]-\d{7}$`),
}

// FrequentFlyerNumber checks number against the airline's format and returns it
// upper-cased. Airlines without a known format accept any non-empty value.
func FrequentFlyerNumber(airline, number string) (string, error) {
	n := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(number), " ", ""))
	if n == "" {
		return "", ErrInvalidFrequentFlyer
	}
	if re, ok := frequentFlyerFormats[CompactKey(airline)]; ok && !re.MatchString(n) {
		return "", ErrInvalidFrequentFlyer
	}
	return n, nil
}

// OrdinalLast is returned by ParseOrdinal for "last".
const OrdinalLast = -1

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
	"1st": 1, "2nd": 2, "3rd": 3, "4th": 4, "5th": 5,
	"6th": 6, "7th": 7, "8th": 8, "9th": 9, "10th": 10,
	"last": OrdinalLast, "final": OrdinalLast,
}

// ParseOrdinal reads "second", "2nd", "the first one" or "last" into a 1-based
// position, or OrdinalLast.
func ParseOrdinal(raw string) (int, error) {
	for _, tok := range strings.Fields(FoldText(strings.ReplaceAll(raw, ".", " "))) {
		if n, ok := ordinalWords[tok]; ok {
			return n, nil
		}
	}
	return 0, ErrUnknownOrdinal
}

// OrdinalIndex turns a parsed ordinal into a 0-based index into a list of length n.
func OrdinalIndex(pos, n int) (int, error) {
	if pos == OrdinalLast {
		pos = n
	}
	if pos < 1 || pos > n {
		return 0, ErrOrdinalOutOfRange
	}
	return pos - 1, nil
}
