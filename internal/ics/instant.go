package ics

import (
	"fmt"
	"strings"
	"time"

	appLog "dmailcal/internal/log"
	"dmailcal/internal/model"
)

const (
	utcLayout  = "20060102T150405Z"
	dateLayout = "20060102"
)

// Normalizer converts iCalendar DATE / DATE-TIME values into the app's
// local "20060102T150405" strings.
type Normalizer struct {
	// Default is used when a value carries no TZID or an unknown one.
	// nil means time.Local.
	Default *time.Location
}

// Format normalizes value. Date-only values (VALUE=DATE or a bare
// YYYYMMDD) become the all-day sentinel "YYYYMMDDT000000". A value with a
// broken time fragment ("T::") degrades to its date portion.
func (n Normalizer) Format(value, tzid string, dateOnly bool) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("empty date-time value")
	}
	if i := strings.Index(value, "T::"); i >= 0 {
		return value[:i], nil
	}
	if dateOnly || (len(value) == len(dateLayout) && !strings.Contains(value, "T")) {
		d, err := time.Parse(dateLayout, value[:min(len(value), len(dateLayout))])
		if err != nil {
			return "", fmt.Errorf("date value %q: %w", value, err)
		}
		return d.Format(dateLayout) + model.AllDaySuffix, nil
	}

	loc := n.location(tzid)
	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse(utcLayout, value)
		if err != nil {
			return "", fmt.Errorf("utc value %q: %w", value, err)
		}
		return t.In(loc).Format(model.LocalLayout), nil
	}
	t, err := ParseLocal(value, loc)
	if err != nil {
		return "", err
	}
	return t.Format(model.LocalLayout), nil
}

// FormatProperty is Format driven by the property's TZID and VALUE
// parameters.
func (n Normalizer) FormatProperty(p Property) (string, error) {
	dateOnly := strings.EqualFold(p.Param("VALUE"), "DATE")
	return n.Format(p.Value, p.Param("TZID"), dateOnly)
}

// ParseLocal parses an app-local "20060102T150405" string as wall-clock
// time in loc. Minute precision ("20060102T1504") is accepted.
func ParseLocal(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range []string{model.LocalLayout, "20060102T1504"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("local date-time %q: unrecognised layout", s)
}

func (n Normalizer) location(tzid string) *time.Location {
	tzid = strings.Trim(strings.TrimSpace(tzid), `"`)
	if tzid != "" {
		loc, err := time.LoadLocation(tzid)
		if err == nil {
			return loc
		}
		appLog.Warn("unknown TZID, using default zone", "tzid", tzid)
	}
	if n.Default != nil {
		return n.Default
	}
	return time.Local
}
