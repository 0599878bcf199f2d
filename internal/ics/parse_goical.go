package ics

import (
	"errors"
	"io"
	"strings"

	goical "github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

// GoICal tokenizes with github.com/emersion/go-ical. A block may decode to
// more than one calendar; all of them are kept.
type GoICal struct{}

func (GoICal) Parse(block string) (Document, error) {
	dec := goical.NewDecoder(strings.NewReader(block))
	var doc goicalDoc
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		doc.cals = append(doc.cals, cal)
	}
	if len(doc.cals) == 0 {
		return nil, errors.New("no VCALENDAR in block")
	}
	return doc, nil
}

type goicalDoc struct {
	cals []*goical.Calendar
}

func (d goicalDoc) Events() []Component {
	var out []Component
	for _, cal := range d.cals {
		for _, child := range cal.Children {
			if child.Name == goical.CompEvent {
				out = append(out, goicalComponent{comp: child})
			}
		}
	}
	return out
}

type goicalComponent struct {
	comp *goical.Component
}

func (c goicalComponent) Prop(name string) (Property, bool) {
	p := c.comp.Props.Get(strings.ToUpper(name))
	if p == nil {
		return Property{}, false
	}
	return fromGoICal(p), true
}

func (c goicalComponent) Props(name string) []Property {
	ps := c.comp.Props.Values(strings.ToUpper(name))
	out := make([]Property, 0, len(ps))
	for i := range ps {
		out = append(out, fromGoICal(&ps[i]))
	}
	return out
}

func (c goicalComponent) Alarms() []Component {
	var out []Component
	for _, child := range c.comp.Children {
		if child.Name == goical.CompAlarm {
			out = append(out, goicalComponent{comp: child})
		}
	}
	return out
}

func (c goicalComponent) RecurrenceRule() (*rrule.ROption, error) {
	return c.comp.Props.RecurrenceRule()
}

func fromGoICal(p *goical.Prop) Property {
	value := p.Value
	if text, err := p.Text(); err == nil {
		value = text
	}
	return Property{
		Name:   p.Name,
		Value:  value,
		Params: map[string][]string(p.Params),
	}
}
