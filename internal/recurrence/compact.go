package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Compact keys, emitted in this order.
const (
	keyInterval    = "interval"
	keyUnit        = "unit"
	keyByDay       = "byday"
	keyEndDate     = "endDate"
	keyCount       = "count"
	keyCustomMonth = "customMonth"
)

const compactDateLayout = "20060102"

// EncodeCompact renders d as "_key~value" tokens, e.g.
// "_interval~2_unit~weekly_byday~MO,WE".
func EncodeCompact(d Descriptor) string {
	var b strings.Builder
	add := func(k, v string) {
		b.WriteString("_")
		b.WriteString(k)
		b.WriteString("~")
		b.WriteString(v)
	}

	if n := d.interval(); n != 1 {
		add(keyInterval, strconv.Itoa(n))
	}
	add(keyUnit, string(d.Frequency))

	n, wd, ordinal := d.ordinalWeekday()
	if len(d.ByDay) > 0 && !ordinal {
		add(keyByDay, strings.Join(d.ByDay, ","))
	}

	switch d.End.Kind {
	case EndUntilDate:
		add(keyEndDate, d.End.Until.Format(compactDateLayout))
	case EndAfterCount:
		add(keyCount, strconv.Itoa(d.End.Count))
	}

	if d.Frequency == Monthly {
		switch {
		case ordinal:
			add(keyCustomMonth, strconv.Itoa(n)+wd.String())
		case d.ByMonthDay != 0:
			add(keyCustomMonth, strconv.Itoa(d.ByMonthDay))
		}
	} else if d.ByMonthDay != 0 {
		// Only reachable for yearly rules imported from elsewhere.
		add(keyCustomMonth, strconv.Itoa(d.ByMonthDay))
	}
	return b.String()
}

// DecodeCompact parses a compact recurrence string. Unknown keys are
// ignored; a missing interval means 1.
func DecodeCompact(raw string) (Descriptor, error) {
	d := Descriptor{Interval: 1}
	for _, tok := range strings.Split(raw, "_") {
		key, val, ok := strings.Cut(tok, "~")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch key {
		case keyInterval:
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return Descriptor{}, fmt.Errorf("%w: interval %q", ErrMalformed, val)
			}
			d.Interval = n
		case keyUnit:
			f, err := ParseFrequency(val)
			if err != nil {
				return Descriptor{}, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			d.Frequency = f
		case keyByDay:
			for _, day := range strings.Split(val, ",") {
				n, wd, err := parseDayToken(day)
				if err != nil {
					return Descriptor{}, err
				}
				d.ByDay = append(d.ByDay, formatDayToken(n, wd))
			}
		case keyEndDate:
			t, err := parseCompactDate(val)
			if err != nil {
				return Descriptor{}, err
			}
			d.End = UntilDate(t)
		case keyCount:
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return Descriptor{}, fmt.Errorf("%w: count %q", ErrMalformed, val)
			}
			d.End = AfterCount(n)
		case keyCustomMonth:
			if err := d.applyCustomMonth(val); err != nil {
				return Descriptor{}, err
			}
		}
	}
	if d.Frequency == "" {
		return Descriptor{}, fmt.Errorf("%w: missing unit in %q", ErrMalformed, raw)
	}
	return d, nil
}

// applyCustomMonth accepts either a day of month ("15") or an ordinal
// weekday in long form ("3Friday", "-1Friday").
func (d *Descriptor) applyCustomMonth(val string) error {
	if n, err := strconv.Atoi(val); err == nil {
		if n == 0 || n < -31 || n > 31 {
			return fmt.Errorf("%w: day of month %q", ErrMalformed, val)
		}
		d.ByMonthDay = n
		return nil
	}
	i := strings.IndexFunc(val, unicode.IsLetter)
	if i <= 0 {
		return fmt.Errorf("%w: customMonth %q", ErrMalformed, val)
	}
	n, err := strconv.Atoi(val[:i])
	if err != nil || n == 0 || n < -5 || n > 5 {
		return fmt.Errorf("%w: customMonth %q", ErrMalformed, val)
	}
	wd, ok := weekdayFromName(val[i:])
	if !ok {
		return fmt.Errorf("%w: customMonth %q", ErrMalformed, val)
	}
	d.ByDay = []string{formatDayToken(n, wd)}
	return nil
}

func parseCompactDate(val string) (time.Time, error) {
	for _, layout := range []string{compactDateLayout, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, val, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: endDate %q", ErrMalformed, val)
}
