package ics

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	appLog "dmailcal/internal/log"
	"dmailcal/internal/model"
	"dmailcal/internal/recurrence"
)

// ErrInvalidDocument marks input the tokenizer could not make sense of.
var ErrInvalidDocument = errors.New("invalid calendar document")

// Outcome classifies an import for callers that report to users.
type Outcome int

const (
	InvalidDocument Outcome = iota
	EmptyDocument
	AllDuplicates
	PartialImport
	FullImport
)

func (o Outcome) String() string {
	switch o {
	case InvalidDocument:
		return "invalid"
	case EmptyDocument:
		return "empty"
	case AllDuplicates:
		return "duplicates"
	case PartialImport:
		return "partial"
	case FullImport:
		return "full"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Result carries the counts behind an Outcome. Raw is the number of
// VEVENTs parsed; Kept is how many survived duplicate filtering.
type Result struct {
	Outcome Outcome
	Raw     int
	Kept    int
	Err     error
}

const beginCalendar = "BEGIN:VCALENDAR"

// Importer turns ICS text into EventRecords.
type Importer struct {
	Tokenizer  Tokenizer
	Normalizer Normalizer
}

// NewImporter returns an Importer that uses tok and resolves floating and
// unknown-zone times in loc.
func NewImporter(tok Tokenizer, loc *time.Location) *Importer {
	if tok == nil {
		tok = GolangICal{}
	}
	return &Importer{Tokenizer: tok, Normalizer: Normalizer{Default: loc}}
}

// Parse imports every VEVENT in text and drops those already present in
// existing. The returned slice is nil only for an invalid document; an
// empty non-nil slice means nothing new was found.
func (im *Importer) Parse(text, account string, existing []model.EventRecord) (events []model.EventRecord, res Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: tokenizer panic: %v", ErrInvalidDocument, r)
			appLog.Error("ics import failed", err)
			events, res = nil, Result{Outcome: InvalidDocument, Err: err}
		}
	}()

	candidates, err := im.extract(text, account)
	if err != nil {
		appLog.Error("ics import failed", err)
		return nil, Result{Outcome: InvalidDocument, Err: err}
	}

	kept := FilterDuplicates(candidates, existing)
	res = Result{Raw: len(candidates), Kept: len(kept)}
	switch {
	case res.Raw == 0:
		res.Outcome = EmptyDocument
	case res.Kept == 0:
		res.Outcome = AllDuplicates
	case res.Kept < res.Raw:
		res.Outcome = PartialImport
	default:
		res.Outcome = FullImport
	}
	appLog.Info("ics import done", "outcome", res.Outcome, "raw", res.Raw, "kept", res.Kept)
	return kept, res
}

// SplitCalendars cuts text at every BEGIN:VCALENDAR. Leading text that is
// not blank is kept as its own block so the tokenizer rejects it.
func SplitCalendars(text string) []string {
	text = strings.TrimPrefix(text, "\ufeff")
	parts := strings.Split(text, beginCalendar)
	blocks := make([]string, 0, len(parts))
	for i, p := range parts {
		if i == 0 {
			if strings.TrimSpace(p) != "" {
				blocks = append(blocks, p)
			}
			continue
		}
		blocks = append(blocks, beginCalendar+p)
	}
	return blocks
}

func (im *Importer) extract(text, account string) ([]model.EventRecord, error) {
	blocks := SplitCalendars(text)
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: no VCALENDAR block", ErrInvalidDocument)
	}
	tok := im.Tokenizer
	if tok == nil {
		tok = GolangICal{}
	}

	candidates := make([]model.EventRecord, 0)
	for i, block := range blocks {
		doc, err := tok.Parse(recurrence.Repair(block))
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %v", ErrInvalidDocument, i, err)
		}
		for _, comp := range doc.Events() {
			rec, err := im.record(comp, account)
			if err != nil {
				return nil, fmt.Errorf("%w: block %d: %v", ErrInvalidDocument, i, err)
			}
			candidates = append(candidates, rec)
		}
	}
	return candidates, nil
}

func (im *Importer) record(comp Component, account string) (model.EventRecord, error) {
	rec := model.EventRecord{
		UID:         propText(comp, "UID"),
		Title:       propText(comp, "SUMMARY"),
		Description: descriptionFromHTML(propText(comp, "DESCRIPTION")),
		Location:    propText(comp, "LOCATION"),
		Organizer:   account,
	}

	start, ok := comp.Prop("DTSTART")
	if !ok {
		return rec, fmt.Errorf("event %q has no DTSTART", rec.UID)
	}
	from, err := im.Normalizer.FormatProperty(start)
	if err != nil {
		return rec, fmt.Errorf("event %q DTSTART: %w", rec.UID, err)
	}
	rec.FromTime = from
	if end, ok := comp.Prop("DTEND"); ok {
		if rec.ToTime, err = im.Normalizer.FormatProperty(end); err != nil {
			return rec, fmt.Errorf("event %q DTEND: %w", rec.UID, err)
		}
	} else {
		rec.ToTime = defaultEnd(from)
	}

	switch strings.ToUpper(propText(comp, "CLASS")) {
	case "PRIVATE":
		rec.Visibility = model.VisibilityPrivate
	case "PUBLIC":
		rec.Visibility = model.VisibilityPublic
	default:
		rec.Visibility = model.VisibilityDefault
	}
	switch strings.ToUpper(propText(comp, "X-GUEST-PERMISSION")) {
	case "MODIFY":
		rec.GuestPermission = model.PermissionModify
	case "INVITE":
		rec.GuestPermission = model.PermissionView
	default:
		rec.GuestPermission = model.PermissionNoAccess
	}
	if strings.EqualFold(propText(comp, "TRANSP"), "TRANSPARENT") {
		rec.BusyStatus = model.StatusFree
	} else {
		rec.BusyStatus = model.StatusBusy
	}

	organizer := mailAddress(propText(comp, "ORGANIZER"))
	for _, att := range comp.Props("ATTENDEE") {
		email := mailAddress(att.Value)
		if email == "" || strings.EqualFold(email, organizer) || strings.EqualFold(email, account) {
			continue
		}
		rec.Guests = append(rec.Guests, email)
		if ps := att.Param("PARTSTAT"); ps != "" {
			if rec.GuestStatuses == nil {
				rec.GuestStatuses = make(map[string]string)
			}
			rec.GuestStatuses[email] = strings.ToUpper(ps)
		}
	}

	for _, alarm := range comp.Alarms() {
		if trig := propText(alarm, "TRIGGER"); trig != "" {
			rec.NotificationTrigger = trig
			break
		}
	}

	repeat, custom, err := im.repeatTags(comp, from)
	if err != nil {
		return rec, fmt.Errorf("event %q RRULE: %w", rec.UID, err)
	}

	rec.AddTag(model.TagLocation, rec.Location)
	rec.AddTag(model.TagVisibility, string(rec.Visibility))
	rec.AddTag(model.TagGuestPermission, string(rec.GuestPermission))
	rec.AddTag(model.TagRepeatEvent, repeat)
	rec.AddTag(model.TagCustomRepeatEvent, custom)
	rec.AddTag(model.TagOrganizer, account)
	for _, g := range rec.Guests {
		rec.AddTag(model.TagGuest, g)
	}
	rec.AddTag(model.TagBusy, string(rec.BusyStatus))
	rec.AddTag(model.TagTrigger, rec.NotificationTrigger)
	return rec, nil
}

// repeatTags decomposes the RRULE into the repeatEvent / customRepeatEvent
// pair. A rule this app cannot represent (sub-daily) is dropped with a
// warning; a rule the tokenizer cannot parse fails the import.
func (im *Importer) repeatTags(comp Component, from string) (repeat, custom string, err error) {
	opt, err := comp.RecurrenceRule()
	if err != nil {
		return "", "", err
	}
	if opt == nil {
		return "", "", nil
	}
	d, isCustom, err := recurrence.FromRRule(opt)
	if err != nil {
		appLog.Warn("dropping unsupported recurrence", "uid", propText(comp, "UID"), "err", err)
		return "", "", nil
	}
	if isCustom {
		return recurrence.MarkerCustom, recurrence.EncodeCompact(d), nil
	}
	anchor, err := time.Parse(model.LocalLayout, from)
	if err != nil {
		anchor, err = time.Parse(dateLayout, from)
		if err != nil {
			return "", "", err
		}
	}
	return recurrence.Preset(d, anchor), "", nil
}

func propText(c Component, name string) string {
	if p, ok := c.Prop(name); ok {
		return strings.TrimSpace(p.Value)
	}
	return ""
}

func mailAddress(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 7 && strings.EqualFold(v[:7], "mailto:") {
		v = v[7:]
	}
	return v
}

// defaultEnd stands in for a missing DTEND: one day for all-day events,
// one hour otherwise.
func defaultEnd(from string) string {
	if len(from) == len(model.LocalLayout) {
		if t, err := time.Parse(model.LocalLayout, from); err == nil {
			if strings.HasSuffix(from, model.AllDaySuffix) {
				return t.AddDate(0, 0, 1).Format(model.LocalLayout)
			}
			return t.Add(time.Hour).Format(model.LocalLayout)
		}
	}
	return from
}

var reBreak = regexp.MustCompile(`(?i)<br\s*/?>`)

// descriptionFromHTML reverses descriptionToHTML.
func descriptionFromHTML(s string) string {
	return html.UnescapeString(reBreak.ReplaceAllString(s, "\n"))
}
