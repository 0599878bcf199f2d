package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

var toRRuleFreq = map[Frequency]rrule.Frequency{
	Daily:   rrule.DAILY,
	Weekly:  rrule.WEEKLY,
	Monthly: rrule.MONTHLY,
	Yearly:  rrule.YEARLY,
}

var fromRRuleFreq = map[rrule.Frequency]Frequency{
	rrule.DAILY:   Daily,
	rrule.WEEKLY:  Weekly,
	rrule.MONTHLY: Monthly,
	rrule.YEARLY:  Yearly,
}

// rrule-go numbers weekdays from Monday.
var rruleDayCodes = [...]string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}

const untilLayout = "20060102T150405Z"

// ToRRule renders d as a full "RRULE:" content line.
func ToRRule(d Descriptor) string {
	return "RRULE:" + RuleValue(d)
}

// RuleValue renders the RRULE value: FREQ, WKST and INTERVAL first, then
// the end bound, then BYDAY or BYMONTHDAY. UNTIL is written one day past
// the inclusive end date.
func RuleValue(d Descriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FREQ=%s;WKST=SU;INTERVAL=%d", toRRuleFreq[d.Frequency], d.interval())

	switch d.End.Kind {
	case EndAfterCount:
		fmt.Fprintf(&b, ";COUNT=%d", d.End.Count)
	case EndUntilDate:
		b.WriteString(";UNTIL=" + d.End.Until.AddDate(0, 0, 1).Format(untilLayout))
	}

	switch {
	case len(d.ByDay) > 0:
		b.WriteString(";BYDAY=" + strings.Join(d.ByDay, ","))
	case d.ByMonthDay != 0:
		b.WriteString(";BYMONTHDAY=" + strconv.Itoa(d.ByMonthDay))
	}
	return b.String()
}

// Validate checks that d renders to an RRULE rrule-go can build.
func Validate(d Descriptor) error {
	if _, ok := toRRuleFreq[d.Frequency]; !ok {
		return fmt.Errorf("%w: frequency %q", ErrMalformed, d.Frequency)
	}
	opt, err := rrule.StrToROption(RuleValue(d))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	opt.Dtstart = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := rrule.NewRRule(*opt); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// FromRRule converts a structured RRULE into a Descriptor and reports
// whether it is custom. WKST is accepted but not modelled.
func FromRRule(opt *rrule.ROption) (Descriptor, bool, error) {
	if opt == nil {
		return Descriptor{}, false, fmt.Errorf("%w: nil rule", ErrMalformed)
	}
	freq, ok := fromRRuleFreq[opt.Freq]
	if !ok {
		return Descriptor{}, false, fmt.Errorf("%w: unsupported frequency %s", ErrMalformed, opt.Freq)
	}

	d := Descriptor{Frequency: freq, Interval: opt.Interval}
	if d.Interval < 1 {
		d.Interval = 1
	}

	for i := range opt.Byweekday {
		wd := opt.Byweekday[i]
		code := rruleDayCodes[wd.Day()]
		if n := wd.N(); n != 0 {
			code = strconv.Itoa(n) + code
		}
		d.ByDay = append(d.ByDay, code)
	}
	if len(opt.Bymonthday) > 0 {
		d.ByMonthDay = opt.Bymonthday[0]
	}

	switch {
	case opt.Count > 0:
		d.End = AfterCount(opt.Count)
	case !opt.Until.IsZero():
		d.End = UntilDate(opt.Until.UTC().AddDate(0, 0, -1))
	}
	return d, d.IsCustom(), nil
}

// ParseRule parses an RRULE value (with or without the "RRULE:" prefix)
// and converts it.
func ParseRule(value string) (Descriptor, bool, error) {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return Descriptor{}, false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return FromRRule(opt)
}
