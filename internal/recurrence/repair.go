package recurrence

import (
	"regexp"
	"strings"
)

const weekdayAlternation = `SUNDAY|MONDAY|TUESDAY|WEDNESDAY|THURSDAY|FRIDAY|SATURDAY`

var (
	// FREQ=WEEKLY ON SATURDAY
	reFreqOnDay = regexp.MustCompile(`(?i)FREQ=(DAILY|WEEKLY|MONTHLY|YEARLY) ON (` + weekdayAlternation + `)\b`)
	// FREQ=MONTHLY THIRD FRIDAY
	reMonthlyOrdinal = regexp.MustCompile(`(?i)FREQ=MONTHLY (FIRST|SECOND|THIRD|FOURTH|FIFTH|LAST) (` + weekdayAlternation + `)\b`)
)

var ordinalWords = map[string]string{
	"FIRST":  "1",
	"SECOND": "2",
	"THIRD":  "3",
	"FOURTH": "4",
	"FIFTH":  "5",
	"LAST":   "-1",
}

// Repair rewrites RRULE phrasings seen from non-conforming producers into
// RFC 5545 syntax. It works on a single VCALENDAR block and is idempotent:
// its output never contains either phrase. Anything it does not recognise
// is left for the RRULE parser to reject.
func Repair(block string) string {
	block = reFreqOnDay.ReplaceAllStringFunc(block, func(m string) string {
		sub := reFreqOnDay.FindStringSubmatch(m)
		return "FREQ=" + strings.ToUpper(sub[1]) + ";BYDAY=" + weekdayNameToCode(sub[2])
	})
	block = reMonthlyOrdinal.ReplaceAllStringFunc(block, func(m string) string {
		sub := reMonthlyOrdinal.FindStringSubmatch(m)
		return "FREQ=MONTHLY;BYDAY=" + ordinalWords[strings.ToUpper(sub[1])] + weekdayNameToCode(sub[2])
	})
	return block
}

func weekdayNameToCode(name string) string {
	wd, _ := weekdayFromName(name)
	return dayCode(wd)
}
