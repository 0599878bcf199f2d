package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// MarkerCustom is stored under repeatEvent when the full rule lives in
// customRepeatEvent.
const MarkerCustom = "custom_"

const (
	PresetDaily   = "daily"
	PresetWeekday = "weekday"

	prefixWeekly   = "weekly_"
	prefixMonthly  = "monthly_"
	prefixAnnually = "annually_"
)

var workWeek = []string{"MO", "TU", "WE", "TH", "FR"}

// Preset renders the canonical preset id for a non-custom rule anchored at
// start: "daily", "weekly_Friday", "monthly_3Friday", "annually_December25".
func Preset(d Descriptor, start time.Time) string {
	switch d.Frequency {
	case Daily:
		return PresetDaily
	case Weekly:
		return prefixWeekly + start.Weekday().String()
	case Monthly:
		return prefixMonthly + strconv.Itoa(nthWeekdayOfMonth(start)) + start.Weekday().String()
	case Yearly:
		return prefixAnnually + start.Month().String() + strconv.Itoa(start.Day())
	}
	return ""
}

// ParsePreset maps a preset id back to its descriptor. The anchor
// (weekday, date) is carried by DTSTART, so only frequency survives,
// except for "weekday" which expands to Monday through Friday.
func ParsePreset(id string) (Descriptor, error) {
	id = strings.TrimSpace(id)
	switch {
	case id == PresetDaily:
		return Descriptor{Frequency: Daily, Interval: 1}, nil
	case id == PresetWeekday:
		return Descriptor{Frequency: Weekly, Interval: 1, ByDay: append([]string(nil), workWeek...)}, nil
	case strings.HasPrefix(id, prefixWeekly):
		if _, ok := weekdayFromName(strings.TrimPrefix(id, prefixWeekly)); ok {
			return Descriptor{Frequency: Weekly, Interval: 1}, nil
		}
	case strings.HasPrefix(id, prefixMonthly):
		if validMonthlyAnchor(strings.TrimPrefix(id, prefixMonthly)) {
			return Descriptor{Frequency: Monthly, Interval: 1}, nil
		}
	case strings.HasPrefix(id, prefixAnnually):
		if validAnnualAnchor(strings.TrimPrefix(id, prefixAnnually)) {
			return Descriptor{Frequency: Yearly, Interval: 1}, nil
		}
	}
	return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownPreset, id)
}

// FromTags resolves the repeatEvent/customRepeatEvent tag pair. ok is false
// when the event does not repeat.
func FromTags(repeat, custom string) (d Descriptor, ok bool, err error) {
	repeat = strings.TrimSpace(repeat)
	switch strings.ToLower(repeat) {
	case "", "none", "never", "does_not_repeat":
		return Descriptor{}, false, nil
	}
	if strings.HasPrefix(repeat, MarkerCustom) {
		if strings.TrimSpace(custom) == "" {
			return Descriptor{}, false, fmt.Errorf("%w: custom marker without customRepeatEvent", ErrMalformed)
		}
		d, err = DecodeCompact(custom)
		return d, err == nil, err
	}
	d, err = ParsePreset(repeat)
	return d, err == nil, err
}

func nthWeekdayOfMonth(t time.Time) int {
	return (t.Day()-1)/7 + 1
}

func validMonthlyAnchor(s string) bool {
	i := strings.IndexFunc(s, unicode.IsLetter)
	if i <= 0 {
		return false
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil || n < -1 || n == 0 || n > 5 {
		return false
	}
	_, ok := weekdayFromName(s[i:])
	return ok
}

func validAnnualAnchor(s string) bool {
	i := strings.IndexFunc(s, unicode.IsDigit)
	if i <= 0 {
		return false
	}
	day, err := strconv.Atoi(s[i:])
	if err != nil || day < 1 || day > 31 {
		return false
	}
	for m := time.January; m <= time.December; m++ {
		if strings.EqualFold(m.String(), s[:i]) {
			return true
		}
	}
	return false
}
