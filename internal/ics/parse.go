package ics

import (
	"strings"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
)

// GolangICal tokenizes with github.com/arran4/golang-ical. TEXT values are
// unescaped by the library while parsing.
type GolangICal struct{}

func (GolangICal) Parse(block string) (Document, error) {
	cal, err := ical.ParseCalendar(strings.NewReader(block))
	if err != nil {
		return nil, err
	}
	return golangDoc{cal: cal}, nil
}

type golangDoc struct {
	cal *ical.Calendar
}

func (d golangDoc) Events() []Component {
	events := d.cal.Events()
	out := make([]Component, 0, len(events))
	for _, ev := range events {
		out = append(out, golangComponent{base: &ev.ComponentBase})
	}
	return out
}

type golangComponent struct {
	base *ical.ComponentBase
}

func (c golangComponent) Prop(name string) (Property, bool) {
	p := c.base.GetProperty(ical.ComponentProperty(strings.ToUpper(name)))
	if p == nil {
		return Property{}, false
	}
	return fromIANA(p), true
}

func (c golangComponent) Props(name string) []Property {
	ps := c.base.GetProperties(ical.ComponentProperty(strings.ToUpper(name)))
	out := make([]Property, 0, len(ps))
	for _, p := range ps {
		out = append(out, fromIANA(p))
	}
	return out
}

func (c golangComponent) Alarms() []Component {
	var out []Component
	for _, sub := range c.base.SubComponents() {
		if a, ok := sub.(*ical.VAlarm); ok {
			out = append(out, golangComponent{base: &a.ComponentBase})
		}
	}
	return out
}

func (c golangComponent) RecurrenceRule() (*rrule.ROption, error) {
	return recurrenceFromProp(c)
}

func fromIANA(p *ical.IANAProperty) Property {
	return Property{
		Name:   p.IANAToken,
		Value:  p.Value,
		Params: p.ICalParameters,
	}
}
