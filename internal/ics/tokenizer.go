package ics

import (
	"strings"

	"github.com/teambition/rrule-go"
)

// Property is a single content line as seen by the importer. Value holds
// the unescaped text for TEXT-typed properties and the raw value otherwise.
type Property struct {
	Name   string
	Value  string
	Params map[string][]string
}

// Param returns the first value of the named parameter, or "".
func (p Property) Param(name string) string {
	for k, vs := range p.Params {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return strings.Trim(vs[0], `"`)
		}
	}
	return ""
}

// Component is a VEVENT or VALARM produced by a Tokenizer.
type Component interface {
	Prop(name string) (Property, bool)
	Props(name string) []Property
	Alarms() []Component
	// RecurrenceRule returns nil, nil when the component has no RRULE.
	RecurrenceRule() (*rrule.ROption, error)
}

// Document is one parsed VCALENDAR block.
type Document interface {
	Events() []Component
}

// Tokenizer turns a single VCALENDAR block into components. Any error is
// treated by the importer as an invalid document.
type Tokenizer interface {
	Parse(block string) (Document, error)
}

// Tokenizer names accepted in configuration.
const (
	TokenizerGolangICal = "golang-ical"
	TokenizerGoICal     = "go-ical"
)

// NewTokenizer returns the tokenizer registered under name. Unknown names
// fall back to golang-ical.
func NewTokenizer(name string) Tokenizer {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case TokenizerGoICal:
		return GoICal{}
	default:
		return GolangICal{}
	}
}

func recurrenceFromProp(c Component) (*rrule.ROption, error) {
	p, ok := c.Prop("RRULE")
	if !ok {
		return nil, nil
	}
	return rrule.StrToROption(p.Value)
}
