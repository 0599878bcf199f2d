package model

import (
	"errors"
	"fmt"
	"strings"
)

// AllDaySuffix is the time-of-day sentinel carried by both bounds of an
// all-day event. The end bound is exclusive (one day past the last day).
const AllDaySuffix = "T000000"

// LocalLayout is the app's local timestamp layout (YYYYMMDDTHHMMSS).
const LocalLayout = "20060102T150405"

// Tag keys read and written by the codec.
const (
	TagLocation          = "location"
	TagVisibility        = "visibility"
	TagNotification      = "notification"
	TagGuestPermission   = "guest_permission"
	TagRepeatEvent       = "repeatEvent"
	TagCustomRepeatEvent = "customRepeatEvent"
	TagOrganizer         = "organizer"
	TagGuest             = "guest"
	TagBusy              = "busy"
	TagTrigger           = "trigger"
)

type Visibility string

const (
	VisibilityDefault Visibility = "Default Visibility"
	VisibilityPublic  Visibility = "Public"
	VisibilityPrivate Visibility = "Private"
)

type BusyStatus string

const (
	StatusBusy BusyStatus = "Busy"
	StatusFree BusyStatus = "Free"
)

type GuestPermission string

const (
	PermissionModify   GuestPermission = "Modify event"
	PermissionView     GuestPermission = "View event"
	PermissionNoAccess GuestPermission = "No access"
)

// Tag is one key/value entry of EventRecord.List, the transport form the
// rest of the app exchanges events in.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// EventRecord is one calendar item as exchanged with the codec.
type EventRecord struct {
	UID         string `json:"uid"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// FromTime / ToTime use LocalLayout. All-day events carry AllDaySuffix
	// on both, with ToTime exclusive.
	FromTime string `json:"fromTime"`
	ToTime   string `json:"toTime"`

	Organizer string   `json:"organizer,omitempty"`
	Guests    []string `json:"guests,omitempty"`
	// GuestStatuses maps a guest email to its PARTSTAT (ACCEPTED,
	// NEEDS-ACTION, ...). Missing entries mean NEEDS-ACTION.
	GuestStatuses map[string]string `json:"guestStatuses,omitempty"`

	Location            string          `json:"location,omitempty"`
	Visibility          Visibility      `json:"visibility,omitempty"`
	BusyStatus          BusyStatus      `json:"busyStatus,omitempty"`
	GuestPermission     GuestPermission `json:"guestPermission,omitempty"`
	NotificationTrigger string          `json:"notificationTrigger,omitempty"`

	List []Tag `json:"list,omitempty"`
}

// TagValue returns the first value stored under key.
func (e *EventRecord) TagValue(key string) (string, bool) {
	for _, t := range e.List {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// TagValues returns every value stored under key, in list order.
func (e *EventRecord) TagValues(key string) []string {
	var out []string
	for _, t := range e.List {
		if t.Key == key {
			out = append(out, t.Value)
		}
	}
	return out
}

// AddTag appends key=value unless value is empty.
func (e *EventRecord) AddTag(key, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	e.List = append(e.List, Tag{Key: key, Value: value})
}

// IsAllDay reports whether both bounds carry the midnight sentinel.
func (e *EventRecord) IsAllDay() bool {
	return strings.HasSuffix(e.FromTime, AllDaySuffix) && strings.HasSuffix(e.ToTime, AllDaySuffix)
}

// SameIdentity reports whether candidate duplicates existing: equal
// non-empty UIDs, or failing that, equal (title, fromTime).
func SameIdentity(candidate, existing *EventRecord) bool {
	if candidate.UID != "" && candidate.UID == existing.UID {
		return true
	}
	return candidate.Title == existing.Title && candidate.FromTime == existing.FromTime
}

var ErrInvalidRange = errors.New("event ends before it starts")

// Validate checks the time-bound invariants. Bounds must be LocalLayout
// strings that sort lexically in time order.
func (e *EventRecord) Validate() error {
	if len(e.FromTime) != len(LocalLayout) || len(e.ToTime) != len(LocalLayout) {
		return fmt.Errorf("event %q: malformed bounds %q..%q", e.UID, e.FromTime, e.ToTime)
	}
	if e.FromTime > e.ToTime {
		return fmt.Errorf("event %q: %w", e.UID, ErrInvalidRange)
	}
	if e.FromTime == e.ToTime && !e.IsAllDay() {
		return fmt.Errorf("event %q: timed event has zero duration: %w", e.UID, ErrInvalidRange)
	}
	return nil
}
