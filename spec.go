package cron

import (
	"time"

	"github.com/pkg/errors"
)

// searchYears caps how far Next looks ahead. Eight years is the longest gap
// between two February 29ths, so any satisfiable spec matches within it.
const searchYears = 10

// probeTime anchors the satisfiability check; its horizon spans two leap days.
var probeTime = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// ErrUnsatisfiable is returned for field combinations that can never match,
// such as the 30th of February.
var ErrUnsatisfiable = errors.New("schedule can never fire")

type fieldKind int

const (
	fieldUnset fieldKind = iota
	fieldAny
	fieldValues
	fieldRange
)

// Field is a constraint on one calendar field.
type Field struct {
	kind   fieldKind
	values []int
	lo, hi int
	step   int
}

// Any matches every value of the field.
func Any() Field { return Field{kind: fieldAny} }

// Values matches the listed values only.
func Values(v ...int) Field { return Field{kind: fieldValues, values: v} }

// Range matches lo, lo+step, ... up to and including hi.
func Range(lo, hi, step int) Field { return Field{kind: fieldRange, lo: lo, hi: hi, step: step} }

// Fields groups the constraints of a calendar schedule. Unset fields are
// unrestricted, except Second which defaults to zero.
type Fields struct {
	Second, Minute, Hour, Dom, Month, Dow Field

	// Location pins evaluation to a zone. Nil evaluates in the zone of the
	// time passed to Next.
	Location *time.Location
}

type bounds struct {
	name     string
	min, max int
}

var (
	secondBounds = bounds{"second", 0, 59}
	minuteBounds = bounds{"minute", 0, 59}
	hourBounds   = bounds{"hour", 0, 23}
	domBounds    = bounds{"day-of-month", 1, 31}
	monthBounds  = bounds{"month", 1, 12}
	dowBounds    = bounds{"day-of-week", 0, 7}
)

func (f Field) resolve(b bounds, unset Field) (uint64, bool, error) {
	if f.kind == fieldUnset {
		f = unset
	}

	var bits uint64
	set := func(v int) error {
		if v < b.min || v > b.max {
			return errors.Errorf("%s value %d out of range %d-%d", b.name, v, b.min, b.max)
		}
		if b == dowBounds && v == 7 {
			v = 0
		}
		bits |= 1 << uint(v)
		return nil
	}

	switch f.kind {
	case fieldAny:
		for v := b.min; v <= b.max; v++ {
			_ = set(v)
		}
		return bits, true, nil
	case fieldValues:
		if len(f.values) == 0 {
			return 0, false, errors.Errorf("%s: empty value list", b.name)
		}
		for _, v := range f.values {
			if err := set(v); err != nil {
				return 0, false, err
			}
		}
	case fieldRange:
		if f.step < 1 {
			return 0, false, errors.Errorf("%s: step must be positive, got %d", b.name, f.step)
		}
		if f.lo > f.hi {
			return 0, false, errors.Errorf("%s: range %d-%d is reversed", b.name, f.lo, f.hi)
		}
		for v := f.lo; v <= f.hi; v += f.step {
			if err := set(v); err != nil {
				return 0, false, err
			}
		}
	}
	return bits, false, nil
}

// SpecSchedule is a calendar schedule in the traditional cron sense. Each
// field is a bitset of the values it accepts.
type SpecSchedule struct {
	second, minute, hour, dom, month, dow uint64

	// domStar and dowStar record an unrestricted day field. Only when both
	// day fields are restricted do they combine with OR.
	domStar, dowStar bool

	location *time.Location
}

// NewSpec builds a schedule from field constraints. It fails for values out
// of range and for combinations that never match.
func NewSpec(f Fields) (*SpecSchedule, error) {
	s := &SpecSchedule{location: f.Location}

	var err error
	if s.second, _, err = f.Second.resolve(secondBounds, Values(0)); err != nil {
		return nil, err
	}
	if s.minute, _, err = f.Minute.resolve(minuteBounds, Any()); err != nil {
		return nil, err
	}
	if s.hour, _, err = f.Hour.resolve(hourBounds, Any()); err != nil {
		return nil, err
	}
	if s.dom, s.domStar, err = f.Dom.resolve(domBounds, Any()); err != nil {
		return nil, err
	}
	if s.month, _, err = f.Month.resolve(monthBounds, Any()); err != nil {
		return nil, err
	}
	if s.dow, s.dowStar, err = f.Dow.resolve(dowBounds, Any()); err != nil {
		return nil, err
	}

	if s.Next(probeTime).IsZero() {
		return nil, ErrUnsatisfiable
	}
	return s, nil
}

// Next returns the first matching second strictly after t, or the zero time
// when nothing matches within the search horizon.
func (s *SpecSchedule) Next(t time.Time) time.Time {
	origin := t.Location()
	loc := origin
	if s.location != nil {
		loc = s.location
		t = t.In(loc)
	}

	// Round up to the next whole second: the result is always after t.
	t = t.Add(time.Second - time.Duration(t.Nanosecond()))
	limit := t.Year() + searchYears

	// truncated records whether the finer fields were already zeroed by an
	// advance, so they are not reset again.
	truncated := false

	for t.Year() <= limit {
		if 1<<uint(t.Month())&s.month == 0 {
			if !truncated {
				truncated = true
				t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
			}
			t = t.AddDate(0, 1, 0)
			continue
		}

		if !s.dayMatches(t) {
			// time.Date normalizes the 32nd into the next month, whose
			// validity is checked again on the next pass.
			truncated = true
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}

		if 1<<uint(t.Hour())&s.hour == 0 {
			if !truncated {
				truncated = true
				t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
			}
			t = t.Add(time.Hour)
			continue
		}

		if 1<<uint(t.Minute())&s.minute == 0 {
			if !truncated {
				truncated = true
				t = t.Truncate(time.Minute)
			}
			t = t.Add(time.Minute)
			continue
		}

		if 1<<uint(t.Second())&s.second == 0 {
			truncated = true
			t = t.Add(time.Second)
			continue
		}

		return t.In(origin)
	}
	return time.Time{}
}

func (s *SpecSchedule) dayMatches(t time.Time) bool {
	domMatch := 1<<uint(t.Day())&s.dom > 0
	dowMatch := 1<<uint(t.Weekday())&s.dow > 0
	if s.domStar || s.dowStar {
		return domMatch && dowMatch
	}
	return domMatch || dowMatch
}
