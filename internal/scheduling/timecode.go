package scheduling

import (
	"fmt"
	"strings"
	"time"
)

// The surrounding portal persists appointment and schedule instants as
// compact yyyyMMddHHmmss strings. Slots are exposed in the readable form.
// Both formats exist only at the boundary; everything inside the engine is a
// time.Time.
const (
	legacyLayout = "20060102150405"
	slotLayout   = "2006-01-02 15:04:05"
	clockLayout  = "15:04"
	dateLayout   = "2006-01-02"
)

// ParseLegacy decodes a compact yyyyMMddHHmmss timestamp.
func ParseLegacy(s string) (time.Time, error) {
	t, err := time.ParseInLocation(legacyLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse legacy timestamp %q: %w", s, err)
	}
	return t, nil
}

// FormatLegacy encodes an instant in the compact persisted form. Round-trips
// losslessly with ParseLegacy at second precision.
func FormatLegacy(t time.Time) string {
	return t.Format(legacyLayout)
}

// FormatSlot renders an instant in the human-readable slot output format.
func FormatSlot(t time.Time) string {
	return t.Format(slotLayout)
}

// ParseDate decodes a date-only yyyy-MM-dd value.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ClockOn resolves an "HH:mm" time-of-day onto a calendar date.
func ClockOn(date time.Time, clock string) (time.Time, error) {
	c, err := time.Parse(clockLayout, strings.TrimSpace(clock))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		c.Hour(), c.Minute(), 0, 0, date.Location()), nil
}

// MonthDay renders the MMDD key used by holiday rows.
func MonthDay(t time.Time) string {
	return t.Format("0102")
}
