package ics

import (
	"testing"
	"time"
	_ "time/tzdata"
)

func TestNormalizerFormat(t *testing.T) {
	n := Normalizer{Default: time.UTC}

	tests := []struct {
		name     string
		value    string
		tzid     string
		dateOnly bool
		want     string
	}{
		{"bare date", "20251225", "", false, "20251225T000000"},
		{"value date", "20251225", "Europe/Berlin", true, "20251225T000000"},
		{"floating in zone", "20251225T090000", "America/New_York", false, "20251225T090000"},
		{"utc into zone", "20251225T140000Z", "America/New_York", false, "20251225T090000"},
		{"utc into default", "20251225T140000Z", "", false, "20251225T140000"},
		{"quoted tzid", "20250701T120000Z", `"Europe/Berlin"`, false, "20250701T140000"},
		{"unknown tzid falls back", "20251225T090000", "Mars/Olympus", false, "20251225T090000"},
		{"broken time fragment", "20251225T::", "", false, "20251225"},
		{"minute precision", "20251225T0930", "", false, "20251225T093000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Format(tt.value, tt.tzid, tt.dateOnly)
			if err != nil {
				t.Fatalf("Format(%q, %q): %v", tt.value, tt.tzid, err)
			}
			if got != tt.want {
				t.Errorf("Format(%q, %q) = %q, want %q", tt.value, tt.tzid, got, tt.want)
			}
		})
	}
}

func TestNormalizerFormatErrors(t *testing.T) {
	n := Normalizer{Default: time.UTC}
	for _, v := range []string{"", "garbage", "2025122", "20251325", "20251225T250000Z"} {
		if got, err := n.Format(v, "", false); err == nil {
			t.Errorf("Format(%q) = %q, want error", v, got)
		}
	}
}

func TestNormalizerDefaultZone(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatal(err)
	}
	n := Normalizer{Default: berlin}
	got, err := n.Format("20250101T120000Z", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if got != "20250101T130000" {
		t.Errorf("got %q, want 20250101T130000", got)
	}
}

func TestFormatPropertyReadsParams(t *testing.T) {
	n := Normalizer{Default: time.UTC}
	p := Property{
		Name:   "DTSTART",
		Value:  "20250601",
		Params: map[string][]string{"VALUE": {"DATE"}},
	}
	got, err := n.FormatProperty(p)
	if err != nil {
		t.Fatal(err)
	}
	if got != "20250601T000000" {
		t.Errorf("got %q", got)
	}

	p = Property{
		Name:   "DTSTART",
		Value:  "20250601T080000Z",
		Params: map[string][]string{"TZID": {"Asia/Tokyo"}},
	}
	if got, _ = n.FormatProperty(p); got != "20250601T170000" {
		t.Errorf("got %q, want 20250601T170000", got)
	}
}
