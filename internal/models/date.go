package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format of service dates.
const DateLayout = "2006-01-02"

// Date is a timezone-naive calendar date in YYYY-MM-DD form. Canonical values
// compare chronologically with plain string comparison.
type Date string

// looseDateLayout also matches months and days without zero padding.
const looseDateLayout = "2006-1-2"

// ParseDate validates s and returns it in canonical form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(looseDateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date(t.Format(DateLayout)), nil
}

// UnmarshalJSON canonicalizes the date so that string order stays
// chronological. An empty string decodes to the zero Date.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		*d = ""
		return nil
	}
	parsed, err := ParseDate(*raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DateOf drops the clock part of t, keeping t's own calendar day.
func DateOf(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// Time returns midnight UTC of the date.
func (d Date) Time() (time.Time, error) {
	return time.Parse(DateLayout, string(d))
}

func (d Date) Valid() bool {
	_, err := d.Time()
	return err == nil
}

// AddDays shifts the date; invalid dates are returned unchanged.
func (d Date) AddDays(n int) Date {
	t, err := d.Time()
	if err != nil {
		return d
	}
	return DateOf(t.AddDate(0, 0, n))
}

func (d Date) Before(other Date) bool { return d < other }
func (d Date) After(other Date) bool  { return d > other }

// InMonth reports whether the date falls in the given year and month.
func (d Date) InMonth(year int, month time.Month) bool {
	t, err := d.Time()
	if err != nil {
		return false
	}
	return t.Year() == year && t.Month() == month
}

// Weekday returns the day of week, or -1 for an invalid date.
func (d Date) Weekday() time.Weekday {
	t, err := d.Time()
	if err != nil {
		return -1
	}
	return t.Weekday()
}

// TimeSlot is a half-open service window such as "9:00-10:00".
type TimeSlot string

// Start parses the start of the slot and returns hour and minute.
func (s TimeSlot) Start() (hour, minute int, err error) {
	start, _, _ := strings.Cut(string(s), "-")
	start = strings.TrimSpace(start)
	h, m, found := strings.Cut(start, ":")
	hour, err = strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time slot %q: %w", s, err)
	}
	if found {
		minute, err = strconv.Atoi(strings.TrimSpace(m))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid time slot %q: %w", s, err)
		}
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time slot %q: out of range", s)
	}
	return hour, minute, nil
}

// StartHour returns the hour bucket used for calendar placement.
func (s TimeSlot) StartHour() (int, error) {
	h, _, err := s.Start()
	return h, err
}

// StartMinutes returns minutes since midnight of the slot start; unparsable
// slots sort last.
func (s TimeSlot) StartMinutes() int {
	h, m, err := s.Start()
	if err != nil {
		return 24 * 60
	}
	return h*60 + m
}
