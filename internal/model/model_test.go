package model

import (
	"errors"
	"testing"
)

func TestIsAllDay(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		want     bool
	}{
		{"one day", "20251225T000000", "20251226T000000", true},
		{"timed", "20251225T090000", "20251225T100000", false},
		{"start midnight only", "20251225T000000", "20251225T100000", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := EventRecord{FromTime: tt.from, ToTime: tt.to}
			if got := ev.IsAllDay(); got != tt.want {
				t.Errorf("IsAllDay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTags(t *testing.T) {
	var ev EventRecord
	ev.AddTag(TagGuest, "a@example.com")
	ev.AddTag(TagLocation, "")
	ev.AddTag(TagGuest, "b@example.com")
	ev.AddTag(TagBusy, "Free")

	if len(ev.List) != 3 {
		t.Fatalf("expected empty values to be skipped, got %+v", ev.List)
	}
	if v, ok := ev.TagValue(TagBusy); !ok || v != "Free" {
		t.Errorf("TagValue(busy) = %q, %v", v, ok)
	}
	if _, ok := ev.TagValue(TagLocation); ok {
		t.Errorf("location should be absent")
	}
	guests := ev.TagValues(TagGuest)
	if len(guests) != 2 || guests[0] != "a@example.com" || guests[1] != "b@example.com" {
		t.Errorf("TagValues(guest) = %v", guests)
	}
}

func TestSameIdentity(t *testing.T) {
	existing := EventRecord{UID: "u1", Title: "Standup", FromTime: "20250101T090000"}

	tests := []struct {
		name string
		cand EventRecord
		want bool
	}{
		{"uid match", EventRecord{UID: "u1", Title: "Other", FromTime: "20250202T090000"}, true},
		{"title and start match", EventRecord{UID: "u2", Title: "Standup", FromTime: "20250101T090000"}, true},
		{"no uid, title and start match", EventRecord{Title: "Standup", FromTime: "20250101T090000"}, true},
		{"different", EventRecord{UID: "u3", Title: "Standup", FromTime: "20250102T090000"}, false},
		{"empty uids do not match each other", EventRecord{Title: "x", FromTime: "y"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameIdentity(&tt.cand, &existing); got != tt.want {
				t.Errorf("SameIdentity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	ok := EventRecord{UID: "a", FromTime: "20250101T090000", ToTime: "20250101T100000"}
	if err := ok.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	reversed := EventRecord{UID: "b", FromTime: "20250101T100000", ToTime: "20250101T090000"}
	if err := reversed.Validate(); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}

	zero := EventRecord{UID: "c", FromTime: "20250101T100000", ToTime: "20250101T100000"}
	if err := zero.Validate(); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange for zero-length timed event, got %v", err)
	}

	malformed := EventRecord{UID: "d", FromTime: "2025-01-01", ToTime: "20250101T100000"}
	if err := malformed.Validate(); err == nil {
		t.Errorf("expected error for malformed bound")
	}
}
