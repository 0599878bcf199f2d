// Package recurrence models the app's recurrence rules and converts them
// between three encodings: RFC 5545 RRULE values, the compact tag string
// stored under customRepeatEvent, and the canonical preset ids stored under
// repeatEvent.
package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case Daily, Weekly, Monthly, Yearly:
		return f, nil
	}
	return "", fmt.Errorf("unknown frequency %q", s)
}

type EndKind int

const (
	EndNever EndKind = iota
	EndAfterCount
	EndUntilDate
)

// EndCondition bounds a recurrence. Until is an inclusive calendar date
// (midnight UTC); Count is only meaningful for EndAfterCount.
type EndCondition struct {
	Kind  EndKind
	Count int
	Until time.Time
}

func Never() EndCondition { return EndCondition{} }

func AfterCount(n int) EndCondition { return EndCondition{Kind: EndAfterCount, Count: n} }

func UntilDate(d time.Time) EndCondition {
	y, m, day := d.Date()
	return EndCondition{Kind: EndUntilDate, Until: time.Date(y, m, day, 0, 0, 0, 0, time.UTC)}
}

// Descriptor is the structural form of a recurrence rule.
//
// ByDay holds RRULE weekday tokens, optionally ordinal-prefixed ("MO",
// "3FR", "-1FR"). An ordinal weekday and ByMonthDay are distinct shapes
// and are never folded into one another.
type Descriptor struct {
	Frequency  Frequency
	Interval   int
	ByDay      []string
	ByMonthDay int
	End        EndCondition
}

// IsCustom reports whether the rule carries anything beyond frequency and
// interval, i.e. it cannot be stored as a canonical preset.
func (d Descriptor) IsCustom() bool {
	return len(d.ByDay) > 0 || d.ByMonthDay != 0 || d.End.Kind != EndNever
}

func (d Descriptor) interval() int {
	if d.Interval < 1 {
		return 1
	}
	return d.Interval
}

// ordinalWeekday returns the single ordinal-prefixed BYDAY token of a
// monthly rule ("3FR"), if that is the shape of this descriptor.
func (d Descriptor) ordinalWeekday() (int, time.Weekday, bool) {
	if d.Frequency != Monthly || len(d.ByDay) != 1 {
		return 0, 0, false
	}
	n, wd, err := parseDayToken(d.ByDay[0])
	if err != nil || n == 0 {
		return 0, 0, false
	}
	return n, wd, true
}

var (
	ErrUnknownPreset = errors.New("unknown recurrence preset")
	ErrMalformed     = errors.New("malformed recurrence")
)

var dayCodes = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

func dayCode(wd time.Weekday) string { return dayCodes[wd] }

func weekdayFromCode(code string) (time.Weekday, bool) {
	code = strings.ToUpper(code)
	for i, c := range dayCodes {
		if c == code {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

func weekdayFromName(name string) (time.Weekday, bool) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(wd.String(), name) {
			return wd, true
		}
	}
	return 0, false
}

// parseDayToken splits "3FR" / "-1FR" / "FR" into ordinal and weekday.
func parseDayToken(tok string) (int, time.Weekday, error) {
	tok = strings.TrimSpace(tok)
	if len(tok) < 2 {
		return 0, 0, fmt.Errorf("%w: weekday %q", ErrMalformed, tok)
	}
	wd, ok := weekdayFromCode(tok[len(tok)-2:])
	if !ok {
		return 0, 0, fmt.Errorf("%w: weekday %q", ErrMalformed, tok)
	}
	prefix := tok[:len(tok)-2]
	if prefix == "" {
		return 0, wd, nil
	}
	n, err := strconv.Atoi(prefix)
	if err != nil || n == 0 || n < -5 || n > 5 {
		return 0, 0, fmt.Errorf("%w: ordinal %q", ErrMalformed, tok)
	}
	return n, wd, nil
}

func formatDayToken(n int, wd time.Weekday) string {
	if n == 0 {
		return dayCode(wd)
	}
	return strconv.Itoa(n) + dayCode(wd)
}
