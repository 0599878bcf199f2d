package ics

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"golang.org/x/sync/errgroup"

	appLog "dmailcal/internal/log"
	"dmailcal/internal/model"
	"dmailcal/internal/recurrence"
)

// ProductID is written as PRODID on every exported document.
const ProductID = "-//DMail Calendar//EN"

const propGuestPermission = ical.ComponentProperty("X-GUEST-PERMISSION")

// ErrSerializationFailed wraps any failure to render an event.
var ErrSerializationFailed = errors.New("ics serialization failed")

// Cancellation turns an export into a METHOD:CANCEL notice. A non-empty
// Subject replaces the event title.
type Cancellation struct {
	Subject string
}

// Exporter renders EventRecords as standalone VCALENDAR documents.
type Exporter struct {
	// TimeZone is the IANA id written as TZID on DTSTART/DTEND and as the
	// trailing VTIMEZONE.
	TimeZone  string
	ProductID string
	Now       func() time.Time
}

// NewExporter returns an Exporter writing times in tz ("UTC" when empty).
func NewExporter(tz string) *Exporter {
	return &Exporter{TimeZone: tz, ProductID: ProductID, Now: time.Now}
}

// ExportAll renders every event concurrently. out[i] belongs to events[i].
// The first failure cancels the batch and no partial result is returned.
func (x *Exporter) ExportAll(ctx context.Context, events []model.EventRecord, account string) ([]string, error) {
	return x.exportAll(ctx, events, account, nil)
}

// CancelAll is ExportAll producing METHOD:CANCEL notices.
func (x *Exporter) CancelAll(ctx context.Context, events []model.EventRecord, account string, cancel Cancellation) ([]string, error) {
	return x.exportAll(ctx, events, account, &cancel)
}

func (x *Exporter) exportAll(ctx context.Context, events []model.EventRecord, account string, cancel *Cancellation) ([]string, error) {
	out := make([]string, len(events))
	g, ctx := errgroup.WithContext(ctx)
	for i := range events {
		g.Go(func() error {
			doc, err := x.ExportOne(ctx, &events[i], account, cancel)
			if err != nil {
				return err
			}
			out[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		appLog.Error("ics export batch failed", err, "events", len(events), "cancel", cancel != nil)
		return nil, err
	}
	appLog.Debug("ics export batch done", "events", len(events), "cancel", cancel != nil)
	return out, nil
}

// ExportOne renders a single event. cancel may be nil.
func (x *Exporter) ExportOne(ctx context.Context, ev *model.EventRecord, account string, cancel *Cancellation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := ev.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	tzid := x.timeZone()
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		return "", fmt.Errorf("%w: time zone %q: %v", ErrSerializationFailed, tzid, err)
	}

	cal := ical.NewCalendar()
	cal.SetProductId(x.productID())
	if cancel != nil {
		cal.SetMethod(ical.MethodCancel)
	} else {
		cal.SetMethod(ical.MethodRequest)
	}

	vev := cal.AddEvent(ev.UID)
	vev.SetDtStampTime(x.now())
	if err := setBounds(vev, ev, tzid, loc); err != nil {
		return "", fmt.Errorf("%w: event %q: %v", ErrSerializationFailed, ev.UID, err)
	}

	summary := ev.Title
	if cancel != nil && cancel.Subject != "" {
		summary = cancel.Subject
	}
	vev.SetSummary(summary)

	if visibility(ev) == model.VisibilityPublic {
		vev.SetClass(ical.ClassificationPublic)
	} else {
		vev.SetClass(ical.ClassificationPrivate)
	}
	if ev.Description != "" {
		vev.SetDescription(descriptionToHTML(ev.Description))
	}
	if where := location(ev); where != "" {
		vev.SetLocation(where)
	}
	vev.SetProperty(propGuestPermission, permissionCode(guestPermission(ev)))

	if cancel == nil {
		rule, ok, err := recurrenceOf(ev)
		if err != nil {
			return "", fmt.Errorf("%w: event %q: %v", ErrSerializationFailed, ev.UID, err)
		}
		if ok {
			vev.AddRrule(rule)
		}
	}

	organizer := organizerOf(ev, account)
	if organizer != "" {
		vev.SetProperty(ical.ComponentPropertyOrganizer, "MAILTO:"+organizer, ical.WithCN(localPart(organizer)))
		vev.AddProperty(ical.ComponentPropertyAttendee, "MAILTO:"+organizer,
			ical.WithCN(localPart(organizer)),
			ical.ParticipationRoleReqParticipant,
			ical.ParticipationStatusAccepted,
		)
	}
	for _, guest := range guestsOf(ev) {
		if strings.EqualFold(guest, organizer) {
			continue
		}
		vev.AddProperty(ical.ComponentPropertyAttendee, "MAILTO:"+guest,
			ical.WithCN(localPart(guest)),
			ical.ParticipationRoleReqParticipant,
			guestStatus(ev, guest, cancel != nil),
		)
	}

	if busyStatus(ev) == model.StatusFree {
		vev.SetTimeTransparency(ical.TransparencyTransparent)
	} else {
		vev.SetTimeTransparency(ical.TransparencyOpaque)
	}
	if cancel != nil {
		vev.SetStatus(ical.ObjectStatusCancelled)
	}

	if trigger := triggerOf(ev); trigger != "" {
		alarm := vev.AddAlarm()
		alarm.SetAction(ical.ActionDisplay)
		alarm.SetTrigger(trigger)
		alarm.SetProperty(ical.ComponentPropertyDescription, summary)
	}

	tz := cal.AddTimezone(tzid)
	std := tz.AddStandard()
	std.AddProperty(ical.ComponentPropertyDtStart, "19700101T000000")
	std.AddProperty(ical.ComponentProperty(ical.PropertyTzoffsetfrom), "+0000")
	std.AddProperty(ical.ComponentProperty(ical.PropertyTzoffsetto), "+0000")
	std.AddProperty(ical.ComponentProperty(ical.PropertyTzname), "GMT")

	var b strings.Builder
	if err := cal.SerializeTo(&b, ical.WithNewLine("\r\n")); err != nil {
		return "", fmt.Errorf("%w: event %q: %v", ErrSerializationFailed, ev.UID, err)
	}
	return b.String(), nil
}

func setBounds(vev *ical.VEvent, ev *model.EventRecord, tzid string, loc *time.Location) error {
	start, err := ParseLocal(ev.FromTime, loc)
	if err != nil {
		return err
	}
	end, err := ParseLocal(ev.ToTime, loc)
	if err != nil {
		return err
	}
	if ev.IsAllDay() {
		vev.SetAllDayStartAt(start)
		vev.SetAllDayEndAt(end)
		return nil
	}
	vev.SetProperty(ical.ComponentPropertyDtStart, start.Format(model.LocalLayout), ical.WithTZID(tzid))
	vev.SetProperty(ical.ComponentPropertyDtEnd, end.Format(model.LocalLayout), ical.WithTZID(tzid))
	return nil
}

func (x *Exporter) timeZone() string {
	if x.TimeZone == "" {
		return "UTC"
	}
	return x.TimeZone
}

func (x *Exporter) productID() string {
	if x.ProductID == "" {
		return ProductID
	}
	return x.ProductID
}

func (x *Exporter) now() time.Time {
	if x.Now == nil {
		return time.Now()
	}
	return x.Now()
}

func recurrenceOf(ev *model.EventRecord) (string, bool, error) {
	repeat, _ := ev.TagValue(model.TagRepeatEvent)
	custom, _ := ev.TagValue(model.TagCustomRepeatEvent)
	d, ok, err := recurrence.FromTags(repeat, custom)
	if err != nil || !ok {
		return "", false, err
	}
	if err := recurrence.Validate(d); err != nil {
		return "", false, err
	}
	return recurrence.RuleValue(d), true, nil
}

func permissionCode(p model.GuestPermission) string {
	switch p {
	case model.PermissionModify:
		return "MODIFY"
	case model.PermissionView:
		return "INVITE"
	default:
		return "GUEST"
	}
}

func guestStatus(ev *model.EventRecord, guest string, cancelled bool) ical.ParticipationStatus {
	if cancelled {
		return ical.ParticipationStatusDeclined
	}
	if s := ev.GuestStatuses[guest]; s != "" {
		return ical.ParticipationStatus(strings.ToUpper(s))
	}
	return ical.ParticipationStatusNeedsAction
}

// descriptionToHTML escapes entities and turns newlines into <br>.
func descriptionToHTML(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br>")
}

func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}

// Field accessors: list tags win over the typed fields.

func visibility(ev *model.EventRecord) model.Visibility {
	if v, ok := ev.TagValue(model.TagVisibility); ok {
		return model.Visibility(v)
	}
	return ev.Visibility
}

func location(ev *model.EventRecord) string {
	if v, ok := ev.TagValue(model.TagLocation); ok {
		return v
	}
	return ev.Location
}

func guestPermission(ev *model.EventRecord) model.GuestPermission {
	if v, ok := ev.TagValue(model.TagGuestPermission); ok {
		return model.GuestPermission(v)
	}
	return ev.GuestPermission
}

func busyStatus(ev *model.EventRecord) model.BusyStatus {
	if v, ok := ev.TagValue(model.TagBusy); ok {
		return model.BusyStatus(v)
	}
	return ev.BusyStatus
}

func triggerOf(ev *model.EventRecord) string {
	if v, ok := ev.TagValue(model.TagTrigger); ok {
		return v
	}
	if v, ok := ev.TagValue(model.TagNotification); ok {
		return v
	}
	return ev.NotificationTrigger
}

func organizerOf(ev *model.EventRecord, account string) string {
	if ev.Organizer != "" {
		return ev.Organizer
	}
	if v, ok := ev.TagValue(model.TagOrganizer); ok {
		return v
	}
	return account
}

func guestsOf(ev *model.EventRecord) []string {
	if len(ev.Guests) > 0 {
		return ev.Guests
	}
	return ev.TagValues(model.TagGuest)
}
