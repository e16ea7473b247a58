// Package normalize converts raw entity values into canonical typed values.
//
// Numbers written as words, relative dates, trip types, travel classes, car
// categories, airlines, frequent flyer numbers and ordinals are handled here.
// Location names are resolved by the location package.
package normalize

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrNotANumber           = errors.New("not a number")
	ErrNonPositive          = errors.New("number must be greater than zero")
	ErrUnrecognizedDate     = errors.New("unrecognized date")
	ErrPastDate             = errors.New("date is in the past")
	ErrUnknownTripType      = errors.New("unknown trip type")
	ErrUnknownTravelClass   = errors.New("unknown travel class")
	ErrUnknownCarCategory   = errors.New("unknown car category")
	ErrUnknownSeat          = errors.New("unknown seat preference")
	ErrInvalidFrequentFlyer = errors.New("frequent flyer number does not match the airline format")
	ErrUnknownOrdinal       = errors.New("unknown ordinal")
	ErrOrdinalOutOfRange    = errors.New("ordinal out of range")
)

// Normalizer holds the clock used for relative dates.
type Normalizer struct {
	now func() time.Time
	loc *time.Location
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the clock used to interpret relative and past dates.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// WithLocation sets the time zone dates are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) {
		n.loc = loc
	}
}

// New creates a Normalizer. The default clock is time.Now in UTC.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Today returns the current calendar day at midnight.
func (n *Normalizer) Today() time.Time {
	t := n.now().In(n.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, n.loc)
}

var foldTransformer = transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)

func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}

// FoldText lowercases s, strips accents and collapses punctuation and spacing.
// "São Paulo!" becomes "sao paulo".
func FoldText(s string) string {
	folded, _, err := transform.String(foldTransformer, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}
	folded = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}

// CompactKey is FoldText without spaces, for matching "fly high" against "flyhigh".
func CompactKey(s string) string {
	return strings.ReplaceAll(FoldText(s), " ", "")
}

var titleCaser = cases.Title(language.English)

// Title renders a folded name for display: "new york" becomes "New York".
func Title(s string) string {
	return titleCaser.String(strings.Join(strings.Fields(s), " "))
}
