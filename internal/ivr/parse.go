package ivr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var firstInteger = regexp.MustCompile(`\d+`)

var monthNames = []struct {
	name  string
	month time.Month
}{
	{"january", time.January},
	{"february", time.February},
	{"march", time.March},
	{"april", time.April},
	{"may", time.May},
	{"june", time.June},
	{"july", time.July},
	{"august", time.August},
	{"september", time.September},
	{"october", time.October},
	{"november", time.November},
	{"december", time.December},
}

// DefaultTimeLabel is used when a spoken time has no usable hour.
const DefaultTimeLabel = "10:00 AM"

// ParseSpokenDate turns a transcript such as "tomorrow" or "15 march" into a
// calendar day in now's location. "today" and "tomorrow" win over month
// names; a month name needs an integer day alongside it. Anything else means
// tomorrow. Out-of-range days roll over the way time.Date normalizes them.
func ParseSpokenDate(text string, now time.Time) time.Time {
	lower := strings.ToLower(text)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if strings.Contains(lower, "today") {
		return today
	}
	if strings.Contains(lower, "tomorrow") {
		return today.AddDate(0, 0, 1)
	}
	for _, m := range monthNames {
		if !strings.Contains(lower, m.name) {
			continue
		}
		if day, ok := leadingInt(lower); ok {
			return time.Date(now.Year(), m.month, day, 0, 0, 0, 0, now.Location())
		}
	}
	return today.AddDate(0, 0, 1)
}

// ParseSpokenTime turns a transcript such as "3 pm" or "7 evening" into an
// "H:00 AM/PM" label. Minutes are ignored. Without a qualifier the hour is
// read on a 24-hour clock.
func ParseSpokenTime(text string) string {
	lower := strings.ToLower(text)
	hour, ok := leadingInt(lower)
	if !ok || hour > 23 {
		return DefaultTimeLabel
	}
	isPM := strings.Contains(lower, "pm") || strings.Contains(lower, "evening") || strings.Contains(lower, "afternoon")
	isAM := strings.Contains(lower, "am") || strings.Contains(lower, "morning")

	if isPM && hour < 12 {
		hour += 12
	}
	if isAM && hour == 12 {
		hour = 0
	}
	return FormatHour(hour)
}

// FormatHour renders a 0-23 hour as a slot label.
func FormatHour(hour int) string {
	period := "AM"
	if hour >= 12 {
		period = "PM"
	}
	display := hour % 12
	if display == 0 {
		display = 12
	}
	return fmt.Sprintf("%d:00 %s", display, period)
}

// ParseTimeLabel returns the 0-23 hour of a label produced by FormatHour.
func ParseTimeLabel(label string) (int, error) {
	clock, period, ok := strings.Cut(strings.TrimSpace(label), " ")
	if !ok {
		return 0, fmt.Errorf("ivr: time label %q: missing AM/PM", label)
	}
	hourText, _, _ := strings.Cut(clock, ":")
	hour, err := strconv.Atoi(hourText)
	if err != nil || hour < 1 || hour > 12 {
		return 0, fmt.Errorf("ivr: time label %q: bad hour", label)
	}
	switch strings.ToUpper(period) {
	case "AM":
		if hour == 12 {
			hour = 0
		}
	case "PM":
		if hour != 12 {
			hour += 12
		}
	default:
		return 0, fmt.Errorf("ivr: time label %q: bad period", label)
	}
	return hour, nil
}

func leadingInt(text string) (int, bool) {
	match := firstInteger.FindString(text)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FormatSpokenDate renders a date the way reminders read it out,
// e.g. "Friday, 16 October 2026".
func FormatSpokenDate(d time.Time) string {
	return d.Format("Monday, 2 January 2006")
}
