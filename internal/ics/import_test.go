package ics

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"dmailcal/internal/model"
)

func icsDoc(lines ...string) string {
	return strings.Join(lines, "\r\n") + "\r\n"
}

var tokenizers = map[string]Tokenizer{
	TokenizerGolangICal: GolangICal{},
	TokenizerGoICal:     GoICal{},
}

const testAccount = "me@example.com"

var teamCalendar = icsDoc(
	"BEGIN:VCALENDAR",
	"VERSION:2.0",
	"PRODID:-//Example//Team//EN",
	"BEGIN:VEVENT",
	"UID:review-1",
	"DTSTAMP:20251101T000000Z",
	"SUMMARY:Monthly review",
	"DESCRIPTION:Bring numbers<br>and &amp; charts",
	"DTSTART;TZID=Europe/Berlin:20251219T140000",
	"DTEND;TZID=Europe/Berlin:20251219T150000",
	"CLASS:PUBLIC",
	"LOCATION:Board room",
	"X-GUEST-PERMISSION:INVITE",
	"RRULE:FREQ=MONTHLY THIRD FRIDAY",
	"ORGANIZER;CN=Olga:mailto:olga@example.com",
	"ATTENDEE;CN=Olga;PARTSTAT=ACCEPTED:mailto:olga@example.com",
	"ATTENDEE;CN=Bob;PARTSTAT=TENTATIVE:mailto:bob@example.com",
	"ATTENDEE;CN=Me:mailto:me@example.com",
	"TRANSP:TRANSPARENT",
	"BEGIN:VALARM",
	"ACTION:DISPLAY",
	"DESCRIPTION:Reminder",
	"TRIGGER:-PT30M",
	"END:VALARM",
	"END:VEVENT",
	"END:VCALENDAR",
	"BEGIN:VCALENDAR",
	"VERSION:2.0",
	"PRODID:-//Example//Other//EN",
	"BEGIN:VEVENT",
	"UID:holiday-1",
	"DTSTAMP:20251101T000000Z",
	"SUMMARY:Holiday",
	"DTSTART;VALUE=DATE:20251225",
	"DTEND;VALUE=DATE:20251226",
	"RRULE:FREQ=YEARLY",
	"END:VEVENT",
	"END:VCALENDAR",
)

func TestImportMapsFields(t *testing.T) {
	for name, tok := range tokenizers {
		t.Run(name, func(t *testing.T) {
			im := NewImporter(tok, time.UTC)
			events, res := im.Parse(teamCalendar, testAccount, nil)
			if events == nil {
				t.Fatalf("unexpected invalid document: %v", res.Err)
			}
			if res.Outcome != FullImport || res.Raw != 2 || res.Kept != 2 {
				t.Fatalf("result = %+v", res)
			}

			review := events[0]
			if review.UID != "review-1" || review.Title != "Monthly review" {
				t.Errorf("identity = %q / %q", review.UID, review.Title)
			}
			if review.Description != "Bring numbers\nand & charts" {
				t.Errorf("description = %q", review.Description)
			}
			if review.FromTime != "20251219T140000" || review.ToTime != "20251219T150000" {
				t.Errorf("bounds = %s..%s", review.FromTime, review.ToTime)
			}
			if review.Visibility != model.VisibilityPublic {
				t.Errorf("visibility = %q", review.Visibility)
			}
			if review.GuestPermission != model.PermissionView {
				t.Errorf("permission = %q", review.GuestPermission)
			}
			if review.BusyStatus != model.StatusFree {
				t.Errorf("busy = %q", review.BusyStatus)
			}
			if !reflect.DeepEqual(review.Guests, []string{"bob@example.com"}) {
				t.Errorf("guests = %v", review.Guests)
			}
			if review.GuestStatuses["bob@example.com"] != "TENTATIVE" {
				t.Errorf("guest statuses = %v", review.GuestStatuses)
			}
			if review.NotificationTrigger != "-PT30M" {
				t.Errorf("trigger = %q", review.NotificationTrigger)
			}

			wantTags := []model.Tag{
				{Key: model.TagLocation, Value: "Board room"},
				{Key: model.TagVisibility, Value: "Public"},
				{Key: model.TagGuestPermission, Value: "View event"},
				{Key: model.TagRepeatEvent, Value: "custom_"},
				{Key: model.TagCustomRepeatEvent, Value: "_unit~monthly_customMonth~3Friday"},
				{Key: model.TagOrganizer, Value: testAccount},
				{Key: model.TagGuest, Value: "bob@example.com"},
				{Key: model.TagBusy, Value: "Free"},
				{Key: model.TagTrigger, Value: "-PT30M"},
			}
			if !reflect.DeepEqual(review.List, wantTags) {
				t.Errorf("tags =\n%v\nwant\n%v", review.List, wantTags)
			}

			holiday := events[1]
			if holiday.FromTime != "20251225T000000" || holiday.ToTime != "20251226T000000" || !holiday.IsAllDay() {
				t.Errorf("holiday bounds = %s..%s", holiday.FromTime, holiday.ToTime)
			}
			if v, _ := holiday.TagValue(model.TagRepeatEvent); v != "annually_December25" {
				t.Errorf("holiday repeat = %q", v)
			}
			if _, ok := holiday.TagValue(model.TagCustomRepeatEvent); ok {
				t.Errorf("preset must not carry customRepeatEvent")
			}
			if holiday.Visibility != model.VisibilityDefault || holiday.GuestPermission != model.PermissionNoAccess {
				t.Errorf("holiday defaults = %q / %q", holiday.Visibility, holiday.GuestPermission)
			}
		})
	}
}

func TestImportOutcomes(t *testing.T) {
	empty := icsDoc("BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//x//EN", "END:VCALENDAR")
	existing := []model.EventRecord{{UID: "review-1"}}
	byTitle := []model.EventRecord{{Title: "Holiday", FromTime: "20251225T000000"}}
	both := []model.EventRecord{{UID: "review-1"}, {UID: "holiday-1"}}

	tests := []struct {
		name     string
		text     string
		existing []model.EventRecord
		outcome  Outcome
		raw      int
		kept     int
	}{
		{"garbage", "this is not a calendar", nil, InvalidDocument, 0, 0},
		{"blank", "   \r\n", nil, InvalidDocument, 0, 0},
		{"bad rrule", strings.Replace(teamCalendar, "FREQ=MONTHLY THIRD FRIDAY", "FREQ=FORTNIGHTLY", 1), nil, InvalidDocument, 0, 0},
		{"no events", empty, nil, EmptyDocument, 0, 0},
		{"uid duplicate", teamCalendar, existing, PartialImport, 2, 1},
		{"title and start duplicate", teamCalendar, byTitle, PartialImport, 2, 1},
		{"all duplicates", teamCalendar, both, AllDuplicates, 2, 0},
		{"all new", teamCalendar, nil, FullImport, 2, 2},
	}
	for _, tt := range tests {
		for name, tok := range tokenizers {
			t.Run(tt.name+"/"+name, func(t *testing.T) {
				events, res := NewImporter(tok, time.UTC).Parse(tt.text, testAccount, tt.existing)
				if res.Outcome != tt.outcome || res.Raw != tt.raw || res.Kept != tt.kept {
					t.Fatalf("result = %+v, want %v raw=%d kept=%d", res, tt.outcome, tt.raw, tt.kept)
				}
				if tt.outcome == InvalidDocument {
					if events != nil {
						t.Errorf("invalid document must yield nil, got %v", events)
					}
					return
				}
				if events == nil || len(events) != tt.kept {
					t.Errorf("events = %v, want %d non-nil", events, tt.kept)
				}
			})
		}
	}
}

func TestImportTwiceYieldsNothingNew(t *testing.T) {
	im := NewImporter(GolangICal{}, time.UTC)
	var store []model.EventRecord
	first, _ := im.Parse(teamCalendar, testAccount, store)
	store = append(store, first...)
	second, res := im.Parse(teamCalendar, testAccount, store)
	if second == nil || len(second) != 0 || res.Outcome != AllDuplicates {
		t.Errorf("second import = %v, %+v", second, res)
	}
}

func TestImportDropsSubDailyRecurrence(t *testing.T) {
	text := icsDoc(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//x//EN",
		"BEGIN:VEVENT",
		"UID:ping",
		"SUMMARY:Ping",
		"DTSTART:20251219T090000Z",
		"RRULE:FREQ=HOURLY;COUNT=3",
		"END:VEVENT",
		"END:VCALENDAR",
	)
	events, res := NewImporter(GolangICal{}, time.UTC).Parse(text, testAccount, nil)
	if res.Outcome != FullImport {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := events[0].TagValue(model.TagRepeatEvent); ok {
		t.Errorf("sub-daily recurrence should be dropped")
	}
	if events[0].ToTime != "20251219T100000" {
		t.Errorf("missing DTEND should default to one hour, got %q", events[0].ToTime)
	}
}

func TestImportBrokenTimeFragmentDegrades(t *testing.T) {
	text := icsDoc(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//x//EN",
		"BEGIN:VEVENT",
		"UID:odd",
		"SUMMARY:Odd",
		"DTSTART:20251219T::",
		"DTEND:20251219T::",
		"END:VEVENT",
		"END:VCALENDAR",
	)
	events, _ := NewImporter(GolangICal{}, time.UTC).Parse(text, testAccount, nil)
	if len(events) != 1 || events[0].FromTime != "20251219" {
		t.Errorf("events = %+v", events)
	}
}

func TestSplitCalendars(t *testing.T) {
	blocks := SplitCalendars("\ufeffBEGIN:VCALENDAR\r\nEND:VCALENDAR\r\nBEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks", len(blocks))
	}
	for _, b := range blocks {
		if !strings.HasPrefix(b, "BEGIN:VCALENDAR") {
			t.Errorf("block %q", b)
		}
	}
	if got := SplitCalendars("junk\r\nBEGIN:VCALENDAR\r\n"); len(got) != 2 || got[0] != "junk\r\n" {
		t.Errorf("leading junk must survive as its own block: %q", got)
	}
	if got := SplitCalendars(" \r\n"); len(got) != 0 {
		t.Errorf("blank input: %q", got)
	}
}

func TestFilterDuplicates(t *testing.T) {
	existing := []model.EventRecord{
		{UID: "a", Title: "A", FromTime: "20250101T090000"},
		{Title: "B", FromTime: "20250102T090000"},
	}
	candidates := []model.EventRecord{
		{UID: "a", Title: "renamed", FromTime: "20250105T090000"},
		{UID: "b2", Title: "B", FromTime: "20250102T090000"},
		{UID: "c", Title: "B", FromTime: "20250103T090000"},
		{Title: "D", FromTime: "20250104T090000"},
	}
	got := FilterDuplicates(candidates, existing)
	var uids []string
	for _, ev := range got {
		uids = append(uids, ev.UID+"/"+ev.Title)
	}
	want := []string{"c/B", "/D"}
	if !reflect.DeepEqual(uids, want) {
		t.Errorf("kept %v, want %v", uids, want)
	}
	if got := FilterDuplicates(nil, existing); got == nil || len(got) != 0 {
		t.Errorf("empty candidates must give an empty, non-nil slice")
	}
}

func TestFilterDuplicatesChecksOnlyExisting(t *testing.T) {
	candidates := []model.EventRecord{
		{UID: "x", Title: "X", FromTime: "20250101T090000"},
		{UID: "x", Title: "X", FromTime: "20250101T090000"},
	}
	if got := FilterDuplicates(candidates, nil); len(got) != 2 {
		t.Errorf("repeats inside one batch are kept, got %d", len(got))
	}
	if got := FilterDuplicates(candidates, candidates[:1]); len(got) != 0 {
		t.Errorf("both copies match the existing event, got %d", len(got))
	}
}

func TestGoICalRecurrenceRule(t *testing.T) {
	doc, err := GoICal{}.Parse(icsDoc(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:r1",
		"DTSTAMP:20251101T000000Z",
		"DTSTART:20251219T090000Z",
		"RRULE:FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:r2",
		"DTSTAMP:20251101T000000Z",
		"DTSTART:20251219T090000Z",
		"END:VEVENT",
		"END:VCALENDAR",
	))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	events := doc.Events()
	if len(events) != 2 {
		t.Fatalf("events = %d", len(events))
	}
	opt, err := events[0].RecurrenceRule()
	if err != nil || opt == nil {
		t.Fatalf("RecurrenceRule = %v, %v", opt, err)
	}
	if opt.Interval != 2 || len(opt.Byweekday) != 2 {
		t.Errorf("rule = %+v", opt)
	}
	if opt, err := events[1].RecurrenceRule(); opt != nil || err != nil {
		t.Errorf("no RRULE should give nil, nil; got %v, %v", opt, err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	allDay := model.EventRecord{UID: "xmas", Title: "Christmas", FromTime: "20251225T000000", ToTime: "20251226T000000"}
	allDay.AddTag(model.TagRepeatEvent, "annually_December25")

	weekly := model.EventRecord{UID: "gym", Title: "Gym", FromTime: "20251219T180000", ToTime: "20251219T190000"}
	weekly.AddTag(model.TagRepeatEvent, "weekly_Friday")

	events := []model.EventRecord{standup(), allDay, weekly}

	docs, err := newTestExporter("Europe/Berlin").ExportAll(context.Background(), events, testAccount)
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	for name, tok := range tokenizers {
		t.Run(name, func(t *testing.T) {
			got, res := NewImporter(tok, time.UTC).Parse(strings.Join(docs, ""), testAccount, nil)
			if res.Outcome != FullImport || len(got) != len(events) {
				t.Fatalf("result = %+v (%v)", res, res.Err)
			}
			for i, want := range events {
				ev := got[i]
				if ev.UID != want.UID || ev.Title != want.Title {
					t.Errorf("[%d] identity %q/%q, want %q/%q", i, ev.UID, ev.Title, want.UID, want.Title)
				}
				if ev.FromTime != want.FromTime || ev.ToTime != want.ToTime {
					t.Errorf("[%d] bounds %s..%s, want %s..%s", i, ev.FromTime, ev.ToTime, want.FromTime, want.ToTime)
				}
				wantRepeat, _ := want.TagValue(model.TagRepeatEvent)
				gotRepeat, _ := ev.TagValue(model.TagRepeatEvent)
				if gotRepeat != wantRepeat {
					t.Errorf("[%d] repeatEvent %q, want %q", i, gotRepeat, wantRepeat)
				}
				wantCustom, _ := want.TagValue(model.TagCustomRepeatEvent)
				gotCustom, _ := ev.TagValue(model.TagCustomRepeatEvent)
				if gotCustom != wantCustom {
					t.Errorf("[%d] customRepeatEvent %q, want %q", i, gotCustom, wantCustom)
				}
			}
			if got[0].Description != events[0].Description {
				t.Errorf("description %q, want %q", got[0].Description, events[0].Description)
			}
			if !reflect.DeepEqual(got[0].Guests, events[0].Guests) {
				t.Errorf("guests %v, want %v", got[0].Guests, events[0].Guests)
			}
		})
	}
}
