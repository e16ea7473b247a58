package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical format dates are stored and rendered in.
const DateLayout = "2006-01-02"

var fullDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2 January 2006",
	"2 Jan 2006",
	"January 2 2006",
	"Jan 2 2006",
	"Monday 2 January 2006",
}

var yearlessLayouts = []string{
	"2 January",
	"2 Jan",
	"January 2",
	"Jan 2",
}

var (
	ordinalSuffix = regexp.MustCompile(`\b(\d{1,2})(st|nd|rd|th)\b`)
	inDuration    = regexp.MustCompile(`^in (\w+) (day|days|week|weeks)$`)
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// ParseDate reads an absolute or relative date and returns it at midnight in the
// normalizer's location. Dates before today are rejected with ErrPastDate.
func (n *Normalizer) ParseDate(raw string) (time.Time, error) {
	d, err := n.parseDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	if d.Before(n.Today()) {
		return d, ErrPastDate
	}
	return d, nil
}

// FormatDate renders a date in DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func (n *Normalizer) parseDate(raw string) (time.Time, error) {
	today := n.Today()
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, ",", " ")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimPrefix(s, "on ")
	s = strings.TrimPrefix(s, "the ")
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, " of ", " ")
	if s == "" {
		return time.Time{}, ErrUnrecognizedDate
	}

	switch s {
	case "today", "tonight":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "day after tomorrow", "the day after tomorrow":
		return today.AddDate(0, 0, 2), nil
	case "next week":
		return today.AddDate(0, 0, 7), nil
	}

	if m := inDuration.FindStringSubmatch(s); m != nil {
		count, err := strconv.Atoi(m[1])
		if err != nil {
			count, err = ParseCount(m[1])
			if err != nil {
				return time.Time{}, ErrUnrecognizedDate
			}
		}
		if strings.HasPrefix(m[2], "week") {
			count *= 7
		}
		return today.AddDate(0, 0, count), nil
	}

	next := strings.HasPrefix(s, "next ")
	if wd, ok := weekdays[strings.TrimPrefix(s, "next ")]; ok {
		delta := (int(wd) - int(today.Weekday()) + 7) % 7
		if delta == 0 || next && delta < 7 && weekOf(today.AddDate(0, 0, delta)) == weekOf(today) {
			delta += 7
		}
		return today.AddDate(0, 0, delta), nil
	}

	titled := Title(s)
	for _, layout := range fullDateLayouts {
		if t, err := time.ParseInLocation(layout, titled, n.loc); err == nil {
			return t, nil
		}
	}
	for _, layout := range yearlessLayouts {
		t, err := time.ParseInLocation(layout, titled, n.loc)
		if err != nil {
			continue
		}
		d := time.Date(today.Year(), t.Month(), t.Day(), 0, 0, 0, 0, n.loc)
		if d.Before(today) {
			d = d.AddDate(1, 0, 0)
		}
		return d, nil
	}
	return time.Time{}, ErrUnrecognizedDate
}

func weekOf(t time.Time) int {
	_, w := t.ISOWeek()
	return w
}
