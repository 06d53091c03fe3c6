package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-sms/internal/model"
)

// dateLayout pairs a layout with whether its year is two digits.
type dateLayout struct {
	layout  string
	twoYear bool
}

// Two-digit-year layouts must be tried before four-digit ones.
var dateLayouts = []dateLayout{
	{"2-1-06", true},
	{"2/1/06", true},
	{"2-Jan-06", true},
	{"2Jan06", true},
	{"2 Jan 06", true},
	{"2-1-2006", false},
	{"2/1/2006", false},
	{"2-Jan-2006", false},
	{"2Jan2006", false},
	{"2 Jan 2006", false},
	{"2 January 2006", false},
	{"2006-01-02", false},
	{"2006/01/02", false},
}

// ParseDate parses a captured date string in loc. Two-digit years always land in
// 2000-2099.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s := strings.Join(strings.Fields(strings.ReplaceAll(raw, ",", " ")), " ")
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	for _, l := range dateLayouts {
		t, err := time.ParseInLocation(l.layout, s, loc)
		if err != nil {
			continue
		}
		if l.twoYear {
			t = time.Date(2000+t.Year()%100, t.Month(), t.Day(), 0, 0, 0, 0, loc)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// Date extracts the transaction date, validating every candidate against the
// known layouts. When nothing parses, it returns the SMS timestamp and false.
func (e *Extractor) Date(body string, bank *model.BankRule, fb model.FallbackPatterns, received time.Time) (time.Time, bool) {
	parse := func(raw string) (time.Time, bool) {
		t, err := ParseDate(raw, received.Location())
		return t, err == nil
	}
	if t, ok := firstMatch(e, body, parse, bankPatterns(bank, fieldDate), fb.Date); ok {
		return t, true
	}
	return received, false
}
